package userinfra

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
)

// MemoryUserRepository keeps users in a map, enforcing the same unique
// columns as the users table.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[kernel.UserID]user.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[kernel.UserID]user.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		switch {
		case existing.Email == u.Email:
			return iam.ErrDuplicateEmail()
		case existing.Username == user.NormalizeUsername(u.Username):
			return iam.ErrDuplicateUsername()
		case u.IsLinked() && existing.KeycloakUserID == u.KeycloakUserID:
			return errx.New("Identity already linked", errx.TypeConflict)
		}
	}
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUserRepository) Update(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[u.ID]
	if !ok {
		return iam.ErrUserNotFound()
	}
	existing.PhoneNumber = u.PhoneNumber
	existing.Address = u.Address
	existing.Description = u.Description
	existing.UpdatedAt = u.UpdatedAt
	r.users[u.ID] = existing
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id kernel.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) SetKeycloakUserID(_ context.Context, id kernel.UserID, keycloakID kernel.IdentityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[id]
	if !ok {
		return iam.ErrUserNotFound()
	}
	existing.KeycloakUserID = keycloakID
	existing.UpdatedAt = time.Now().UTC()
	r.users[id] = existing
	return nil
}

func (r *MemoryUserRepository) find(match func(user.User) bool) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			cp := u
			return &cp, nil
		}
	}
	return nil, iam.ErrUserNotFound()
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id kernel.UserID) (*user.User, error) {
	return r.find(func(u user.User) bool { return u.ID == id })
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	return r.find(func(u user.User) bool { return u.Email == email })
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*user.User, error) {
	username = user.NormalizeUsername(username)
	return r.find(func(u user.User) bool { return u.Username == username })
}

func (r *MemoryUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*user.User, error) {
	return r.FindByEmailOrUsername(ctx, identifier, identifier)
}

func (r *MemoryUserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*user.User, error) {
	if u, err := r.FindByEmail(ctx, email); err == nil {
		return u, nil
	}
	return r.FindByUsername(ctx, username)
}

// MemorySettingRepository is a map-backed SettingRepository.
type MemorySettingRepository struct {
	mu       sync.RWMutex
	settings map[string]string
}

func NewMemorySettingRepository(initial map[string]string) *MemorySettingRepository {
	s := make(map[string]string, len(initial))
	for k, v := range initial {
		s[k] = v
	}
	return &MemorySettingRepository{settings: s}
}

func (r *MemorySettingRepository) Get(_ context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.settings[key]
	if !ok {
		return "", iam.ErrSettingNotFound(key)
	}
	return v, nil
}

func (r *MemorySettingRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	return nil
}
