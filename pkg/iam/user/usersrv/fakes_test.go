package usersrv_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/Abraxas-365/keybridge/pkg/notifx"
	"github.com/Abraxas-365/keybridge/pkg/ptrx"
	"github.com/golang-jwt/jwt/v5"
)

func codeErr(code *errx.ErrorCode, details map[string]any) error {
	return &errx.Error{Code: code.Code, Message: code.Message, Type: code.Type, HTTPStatus: code.HTTPStatus, Details: details}
}

// fakeIDP is an in-memory realm. Like Keycloak it stores usernames
// lowercased and searches them case-insensitively.
type fakeIDP struct {
	mu        sync.Mutex
	seq       int
	users     map[string]*keycloak.UserRepresentation
	passwords map[string]string
	roles     map[string][]string

	creates       int
	verifiedCalls int
	deleted       []string
	linkErr       error
	// searchMiss makes FindByUsername report every user as missing.
	searchMiss bool
}

func newFakeIDP() *fakeIDP {
	return &fakeIDP{
		users:     make(map[string]*keycloak.UserRepresentation),
		passwords: make(map[string]string),
		roles:     make(map[string][]string),
	}
}

func (f *fakeIDP) CreateUser(_ context.Context, u keycloak.UserRepresentation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u.Username = strings.ToLower(u.Username)
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return "", codeErr(keycloak.ErrConflict, map[string]any{"body": `{"errorMessage":"User exists with same username"}`})
		}
		if existing.Email == u.Email {
			return "", codeErr(keycloak.ErrConflict, map[string]any{"body": `{"errorMessage":"User exists with same email"}`})
		}
	}

	f.seq++
	f.creates++
	u.ID = fmt.Sprintf("kc-%d", f.seq)
	if len(u.Credentials) > 0 {
		f.passwords[u.ID] = u.Credentials[0].Value
	}
	u.Credentials = nil
	f.users[u.ID] = &u
	return u.ID, nil
}

func (f *fakeIDP) FindByUsername(_ context.Context, username string) (*keycloak.UserRepresentation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchMiss {
		return nil, codeErr(keycloak.ErrNotFound, nil)
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, codeErr(keycloak.ErrNotFound, nil)
}

func (f *fakeIDP) GetUser(_ context.Context, id string) (*keycloak.UserRepresentation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, codeErr(keycloak.ErrNotFound, nil)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeIDP) UpdateUser(_ context.Context, id string, u keycloak.UserRepresentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return codeErr(keycloak.ErrNotFound, nil)
	}
	u.ID = id
	f.users[id] = &u
	return nil
}

func (f *fakeIDP) LinkLocalUser(_ context.Context, id, localUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	u, ok := f.users[id]
	if !ok {
		return codeErr(keycloak.ErrNotFound, nil)
	}
	if u.Attributes == nil {
		u.Attributes = map[string][]string{}
	}
	u.Attributes[keycloak.LocalUserAttribute] = []string{localUserID}
	return nil
}

func (f *fakeIDP) SetEmailVerified(_ context.Context, id string, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return codeErr(keycloak.ErrNotFound, nil)
	}
	f.verifiedCalls++
	u.EmailVerified = ptrx.Bool(verified)
	return nil
}

func (f *fakeIDP) ResetPassword(_ context.Context, id, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return codeErr(keycloak.ErrNotFound, nil)
	}
	f.passwords[id] = password
	return nil
}

func (f *fakeIDP) AssignRealmRole(_ context.Context, id, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[id] = append(f.roles[id], role)
	return nil
}

func (f *fakeIDP) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	f.deleted = append(f.deleted, id)
	return nil
}

// PasswordGrant signs an HS256 token carrying the user's email_verified
// flag; the service only decodes it.
func (f *fakeIDP) PasswordGrant(_ context.Context, username, password string) (*keycloak.TokenBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, u := range f.users {
		if !strings.EqualFold(u.Username, username) && u.Email != strings.ToLower(username) {
			continue
		}
		if f.passwords[id] != password {
			break
		}
		claims := keycloak.AccessClaims{
			PreferredUsername: u.Username,
			Email:             u.Email,
			EmailVerified:     ptrx.BoolValue(u.EmailVerified),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   id,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("realm"))
		if err != nil {
			return nil, err
		}
		return &keycloak.TokenBundle{AccessToken: signed, RefreshToken: "refresh-" + id, ExpiresIn: 300, TokenType: "Bearer"}, nil
	}
	return nil, codeErr(keycloak.ErrInvalidGrant, nil)
}

func (f *fakeIDP) user(id string) *keycloak.UserRepresentation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id]
}

// fakeSender records rendered mails instead of sending them.
type fakeSender struct {
	mu   sync.Mutex
	sent []usersrv.EmailJob
}

func (s *fakeSender) SendTemplatedEmail(_ context.Context, _ string, data any, _ notifx.EmailMessage, _ ...notifx.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data.(usersrv.EmailJob))
	return nil
}

func (s *fakeSender) last() (usersrv.EmailJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return usersrv.EmailJob{}, false
	}
	return s.sent[len(s.sent)-1], true
}
