// Package model defines the data structures exchanged with the ShikshaSetu backend.
package model

// Role is the access level a user account carries.
//
// The backend assigns exactly one role per account. Signup accepts
// student and instructor; admin accounts are provisioned server-side.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// User represents a platform account as returned by the backend.
//
// WHY Email string (not *string)?
// OAuth sign-ins may arrive without a visible email. We use an empty
// string as the zero value rather than a nullable pointer — simpler to
// work with and safe to display.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"` // may be empty for OAuth accounts
	Role  Role   `json:"role"`
}
