package models

// User is the identity returned by the authentication provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (u *User) HasRole(role string) bool {
	return u != nil && role != "" && u.Role == role
}

// AuthenticatedContext is produced once per admitted request and handed to the
// route handler. It is never persisted.
type AuthenticatedContext struct {
	User          *User
	SessionHandle string
}
