package models

// Role is the caller's portal role.
type Role string

const (
	RoleDoctor Role = "doctor"
	RoleAdmin  Role = "admin"
)

// Identity is the authenticated caller resolved from a bearer credential.
type Identity struct {
	ID   string `json:"id" bson:"userId"`
	Name string `json:"name" bson:"name"`
	Role Role   `json:"role" bson:"role"`
}

// IsAdmin reports whether the caller holds the elevated role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
