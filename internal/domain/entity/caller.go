package entity

// Role is the caller's platform role.
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
	RoleSystem Role = "system"
)

// Caller identifies who invokes an engine operation.
type Caller struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// SystemCaller is used by the risk assessor and background workers.
var SystemCaller = Caller{ID: 0, Role: RoleSystem}

// IsAdmin reports whether the caller holds an administrative role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin || c.Role == RoleOwner
}

// IsSystem reports whether the caller is an internal actor.
func (c Caller) IsSystem() bool {
	return c.Role == RoleSystem
}

// ParseRole maps a header/config value to a Role. Unknown values become RoleUser.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleOwner, RoleSystem:
		return Role(s)
	default:
		return RoleUser
	}
}
