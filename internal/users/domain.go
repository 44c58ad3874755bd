package users

import "time"

// User is the user-management listing entry.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsActive    bool       `json:"is_active"`
	Roles       []string   `json:"roles"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	// Manageable reports whether the requesting actor outranks this user.
	Manageable bool `json:"manageable"`
}

// RoleChange is the body of a role assignment request.
type RoleChange struct {
	Role string `json:"role" validate:"required,max=64"`
}
