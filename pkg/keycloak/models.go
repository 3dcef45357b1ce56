package keycloak

// UserRepresentation is the admin API user resource. Pointer booleans let
// partial updates leave a flag untouched.
type UserRepresentation struct {
	ID            string              `json:"id,omitempty"`
	Username      string              `json:"username,omitempty"`
	Email         string              `json:"email,omitempty"`
	FirstName     string              `json:"firstName,omitempty"`
	LastName      string              `json:"lastName,omitempty"`
	Enabled       *bool               `json:"enabled,omitempty"`
	EmailVerified *bool               `json:"emailVerified,omitempty"`
	Attributes    map[string][]string `json:"attributes,omitempty"`
	Credentials   []Credential        `json:"credentials,omitempty"`
}

// Attribute returns the first value of a user attribute.
func (u *UserRepresentation) Attribute(name string) string {
	if u == nil || len(u.Attributes[name]) == 0 {
		return ""
	}
	return u.Attributes[name][0]
}

// Credential is a Keycloak credential representation.
type Credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// PasswordCredential builds a non-temporary password credential.
func PasswordCredential(password string) Credential {
	return Credential{Type: "password", Value: password, Temporary: false}
}

// RoleRepresentation is a realm role.
type RoleRepresentation struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Composite   bool   `json:"composite"`
	ClientRole  bool   `json:"clientRole"`
	ContainerID string `json:"containerId,omitempty"`
}

// TokenBundle is the token endpoint response, returned to clients as is.
type TokenBundle struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	TokenType        string `json:"token_type"`
	IDToken          string `json:"id_token,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// JWK is one entry of the realm certs document.
type JWK struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"`
	Alg string   `json:"alg"`
	Use string   `json:"use"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	X5c []string `json:"x5c"`
}

// JWKS is the realm's certs document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Key returns the key with the given kid.
func (s *JWKS) Key(kid string) (JWK, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}
