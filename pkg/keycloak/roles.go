package keycloak

import (
	"context"
	"net/http"
	"net/url"
)

// GetRealmRole resolves a realm role by name.
func (c *Client) GetRealmRole(ctx context.Context, name string) (*RoleRepresentation, error) {
	var role RoleRepresentation
	if _, err := c.admin(ctx, http.MethodGet, "/roles/"+url.PathEscape(name), nil, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// AssignRealmRole maps a realm role onto a user. Assigning a role the user
// already holds is a no-op on the server.
func (c *Client) AssignRealmRole(ctx context.Context, userID, roleName string) error {
	role, err := c.GetRealmRole(ctx, roleName)
	if err != nil {
		return err
	}
	_, err = c.admin(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/role-mappings/realm", []RoleRepresentation{*role}, nil)
	return err
}
