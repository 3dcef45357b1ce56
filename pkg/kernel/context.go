package kernel

import "slices"

// AuthContext is the authenticated caller, built from a verified bearer token.
type AuthContext struct {
	Subject  string   `json:"sub"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// IsValid reports whether the token identified the caller at all.
func (ac *AuthContext) IsValid() bool {
	return ac != nil && (ac.Email != "" || ac.Username != "")
}

func (ac *AuthContext) HasRole(role string) bool {
	return ac != nil && slices.Contains(ac.Roles, role)
}

// HasAnyRole reports whether the caller holds at least one of roles.
func (ac *AuthContext) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if ac.HasRole(r) {
			return true
		}
	}
	return false
}

type ContextKey string

const (
	// AuthContextKey is the fiber Locals / context key holding *AuthContext
	AuthContextKey ContextKey = "auth"
)
