package keycloak

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/ptrx"
)

// LocalUserAttribute is the user attribute holding the local record id.
const LocalUserAttribute = "userId"

// CreateUser creates a user and returns its id, taken from the Location
// header. A taken username or email yields ErrConflict.
func (c *Client) CreateUser(ctx context.Context, user UserRepresentation) (string, error) {
	resp, err := c.admin(ctx, http.MethodPost, "/users", user, nil)
	if err != nil {
		return "", err
	}

	if loc := resp.header.Get("Location"); loc != "" {
		if u, err := url.Parse(loc); err == nil {
			return path.Base(u.Path), nil
		}
	}

	// Older servers omit Location; fall back to a lookup.
	created, err := c.FindByUsername(ctx, user.Username)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// FindByUsername returns the user with this username, or ErrNotFound.
// Keycloak stores usernames lowercased, so the match ignores case.
func (c *Client) FindByUsername(ctx context.Context, username string) (*UserRepresentation, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("exact", "true")

	var users []UserRepresentation
	if _, err := c.admin(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &users); err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			return &users[i], nil
		}
	}
	return nil, errorRegistry.New(ErrNotFound).WithDetail("username", username)
}

// GetUser returns the user with id, or ErrNotFound.
func (c *Client) GetUser(ctx context.Context, id string) (*UserRepresentation, error) {
	var user UserRepresentation
	if _, err := c.admin(ctx, http.MethodGet, "/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser applies a partial representation; zero-valued fields are
// omitted and left unchanged.
func (c *Client) UpdateUser(ctx context.Context, id string, user UserRepresentation) error {
	_, err := c.admin(ctx, http.MethodPut, "/users/"+url.PathEscape(id), user, nil)
	return err
}

// LinkLocalUser stores the local record id in the user's attributes,
// keeping any other attributes.
func (c *Client) LinkLocalUser(ctx context.Context, id, localUserID string) error {
	current, err := c.GetUser(ctx, id)
	if err != nil {
		return err
	}

	attrs := current.Attributes
	if attrs == nil {
		attrs = map[string][]string{}
	}
	attrs[LocalUserAttribute] = []string{localUserID}

	return c.UpdateUser(ctx, id, UserRepresentation{Attributes: attrs})
}

func (c *Client) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	return c.UpdateUser(ctx, id, UserRepresentation{EmailVerified: ptrx.Bool(verified)})
}

// ResetPassword replaces the user's password credential.
func (c *Client) ResetPassword(ctx context.Context, id, password string) error {
	_, err := c.admin(ctx, http.MethodPut, "/users/"+url.PathEscape(id)+"/reset-password", PasswordCredential(password), nil)
	return err
}

// DeleteUser removes a user. Deleting a user that is already gone succeeds.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.admin(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}
