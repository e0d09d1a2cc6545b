package admission

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"gatekeeper/internal/models"
)

// CachePolicy is a route's opt-in to client caching.
type CachePolicy struct {
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration
}

// HeaderValue renders the policy as a Cache-Control value. Responses are
// per-user, so they are always private.
func (p CachePolicy) HeaderValue() string {
	var b strings.Builder
	b.WriteString("private, max-age=")
	b.WriteString(strconv.FormatInt(int64(p.MaxAge/time.Second), 10))
	if p.StaleWhileRevalidate > 0 {
		b.WriteString(", stale-while-revalidate=")
		b.WriteString(strconv.FormatInt(int64(p.StaleWhileRevalidate/time.Second), 10))
	}
	return b.String()
}

// Compose applies policy to a response about to be sent with status for a
// request with method. Only successful reads are marked cacheable.
func Compose(h http.Header, status int, method string, policy *CachePolicy) {
	if policy == nil {
		return
	}
	if models.ClassifyMethod(method) != models.OperationRead {
		return
	}
	if status < 200 || status > 299 {
		return
	}
	h.Set("Cache-Control", policy.HeaderValue())
}

// composingWriter runs Compose when the handler commits its status.
type composingWriter struct {
	http.ResponseWriter
	method      string
	policy      *CachePolicy
	wroteHeader bool
}

func newComposingWriter(w http.ResponseWriter, method string, policy *CachePolicy) http.ResponseWriter {
	if policy == nil {
		return w
	}
	return &composingWriter{ResponseWriter: w, method: method, policy: policy}
}

func (cw *composingWriter) WriteHeader(status int) {
	if !cw.wroteHeader {
		cw.wroteHeader = true
		Compose(cw.Header(), status, cw.method, cw.policy)
	}
	cw.ResponseWriter.WriteHeader(status)
}

func (cw *composingWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}

func (cw *composingWriter) Flush() {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (cw *composingWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}
