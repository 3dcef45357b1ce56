package user

import (
	"context"

	"github.com/Abraxas-365/keybridge/pkg/kernel"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
)

// UserRepository persists local user records. Lookups that find nothing
// return iam.ErrUserNotFound; unique violations on create return
// iam.ErrDuplicateEmail or iam.ErrDuplicateUsername.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id kernel.UserID) error
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByIdentifier matches identifier against email or username.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)

	// FindByEmailOrUsername returns a row colliding with either value,
	// preferring the one matching email.
	FindByEmailOrUsername(ctx context.Context, email, username string) (*User, error)

	SetKeycloakUserID(ctx context.Context, id kernel.UserID, keycloakID kernel.IdentityID) error
}

type SettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// IdentityProvider is the slice of the Keycloak client the user services
// depend on.
type IdentityProvider interface {
	CreateUser(ctx context.Context, u keycloak.UserRepresentation) (string, error)
	FindByUsername(ctx context.Context, username string) (*keycloak.UserRepresentation, error)
	GetUser(ctx context.Context, id string) (*keycloak.UserRepresentation, error)
	UpdateUser(ctx context.Context, id string, u keycloak.UserRepresentation) error
	LinkLocalUser(ctx context.Context, id, localUserID string) error
	SetEmailVerified(ctx context.Context, id string, verified bool) error
	ResetPassword(ctx context.Context, id, password string) error
	AssignRealmRole(ctx context.Context, id, role string) error
	DeleteUser(ctx context.Context, id string) error
	PasswordGrant(ctx context.Context, username, password string) (*keycloak.TokenBundle, error)
}
