package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"gatekeeper/internal/clientip"
	"gatekeeper/internal/models"
	"gatekeeper/internal/storage"
)

// requireAdmin answers 403 unless the caller carries the admin role.
func (h *Handlers) requireAdmin(w http.ResponseWriter, auth *models.AuthenticatedContext) bool {
	if auth == nil || !auth.User.HasRole(h.adminRole) {
		h.writeErrorResponse(w, http.StatusForbidden, "Admin role required", "")
		return false
	}
	return true
}

// GetBlock reports whether an IP is blocked.
// GET /api/v1/admin/blocks/{ip}
func (h *Handlers) GetBlock(w http.ResponseWriter, r *http.Request, auth *models.AuthenticatedContext, params map[string]string) {
	if !h.requireAdmin(w, auth) {
		return
	}

	ip, ok := clientip.Canonical(params["ip"])
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid IP address", models.ErrorCodeInvalidRequest)
		return
	}

	rec, err := h.blocks.IsBlocked(r.Context(), models.IPSubject(ip))
	if err != nil {
		slog.Error("Failed to read block", "ip", ip, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to read block", models.ErrorCodeInternalError)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, &models.BlockStatusResponse{
		IP:      ip,
		Blocked: rec != nil,
		Block:   rec,
	})
}

// CreateBlock places an administrative block.
// POST /api/v1/admin/blocks
func (h *Handlers) CreateBlock(w http.ResponseWriter, r *http.Request, auth *models.AuthenticatedContext, _ map[string]string) {
	if !h.requireAdmin(w, auth) {
		return
	}

	var req models.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload", models.ErrorCodeInvalidRequest)
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), models.ErrorCodeInvalidRequest)
		return
	}

	duration, _ := req.ParsedDuration()
	ip, _ := clientip.Canonical(req.IP)

	rec, err := h.blocks.Block(r.Context(), models.IPSubject(ip), req.Reason, duration)
	if err != nil {
		slog.Error("Failed to block IP", "ip", ip, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to block IP", models.ErrorCodeInternalError)
		return
	}

	slog.Info("Admin blocked IP", "ip", ip, "duration", duration, "admin", auth.User.ID)
	h.writeJSONResponse(w, http.StatusCreated, &models.BlockStatusResponse{IP: ip, Blocked: true, Block: rec})
}

// DeleteBlock lifts a block.
// DELETE /api/v1/admin/blocks/{ip}
func (h *Handlers) DeleteBlock(w http.ResponseWriter, r *http.Request, auth *models.AuthenticatedContext, params map[string]string) {
	if !h.requireAdmin(w, auth) {
		return
	}

	ip, ok := clientip.Canonical(params["ip"])
	if !ok {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid IP address", models.ErrorCodeInvalidRequest)
		return
	}

	if err := h.blocks.Unblock(r.Context(), models.IPSubject(ip)); err != nil {
		slog.Error("Failed to unblock IP", "ip", ip, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to unblock IP", models.ErrorCodeInternalError)
		return
	}

	slog.Info("Admin unblocked IP", "ip", ip, "admin", auth.User.ID)
	w.WriteHeader(http.StatusNoContent)
}

// GetSuspension reports a user's current suspension state and history.
// GET /api/v1/admin/suspensions/{user_id}
func (h *Handlers) GetSuspension(w http.ResponseWriter, r *http.Request, auth *models.AuthenticatedContext, params map[string]string) {
	if !h.requireAdmin(w, auth) {
		return
	}

	userID := params["user_id"]
	status, err := h.suspensions.Check(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to check suspension", "user_id", userID, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to check suspension", models.ErrorCodeInternalError)
		return
	}

	history, err := h.suspensions.History(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list suspensions", "user_id", userID, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to list suspensions", models.ErrorCodeInternalError)
		return
	}

	resp := &models.SuspensionStatusResponse{
		UserID:    userID,
		Suspended: status.Suspended,
		Reason:    status.Reason,
		ExpiresAt: status.ExpiresAt,
		History:   make([]models.SuspensionRecord, 0, len(history)),
	}
	for _, rec := range history {
		resp.History = append(resp.History, *rec)
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// CreateSuspension suspends a user.
// POST /api/v1/admin/suspensions
func (h *Handlers) CreateSuspension(w http.ResponseWriter, r *http.Request, auth *models.AuthenticatedContext, _ map[string]string) {
	if !h.requireAdmin(w, auth) {
		return
	}

	var req models.SuspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload", models.ErrorCodeInvalidRequest)
		return
	}
	req.Normalize()
	if err := req.Validate(h.now()); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error(), models.ErrorCodeInvalidRequest)
		return
	}

	rec, err := h.suspensions.Suspend(r.Context(), req, auth.User.ID)
	if err != nil {
		slog.Error("Failed to suspend user", "user_id", req.UserID, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to suspend user", models.ErrorCodeInternalError)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, rec)
}

// DeleteSuspension lifts every open suspension of a user.
// DELETE /api/v1/admin/suspensions/{user_id}
func (h *Handlers) DeleteSuspension(w http.ResponseWriter, r *http.Request, auth *models.AuthenticatedContext, params map[string]string) {
	if !h.requireAdmin(w, auth) {
		return
	}

	userID := params["user_id"]
	if _, err := h.suspensions.Lift(r.Context(), userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeErrorResponse(w, http.StatusNotFound, "No active suspension", models.ErrorCodeNotFound)
			return
		}
		slog.Error("Failed to lift suspension", "user_id", userID, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to lift suspension", models.ErrorCodeInternalError)
		return
	}

	slog.Info("Admin lifted suspension", "user_id", userID, "admin", auth.User.ID)
	w.WriteHeader(http.StatusNoContent)
}
