package model

// Role distinguishes test-takers from staff.
type Role string

const (
	RoleStudent Role = "student"
	RoleProctor Role = "proctor"
	RoleAdmin   Role = "admin"
)

// Privileged reports whether the role may use diagnostic overrides.
func (r Role) Privileged() bool {
	return r == RoleProctor || r == RoleAdmin
}

// Identity is supplied once at session start and trusted for the session's lifetime.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}
