package keycloak_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRealm struct {
	*httptest.Server
	tokenCalls  atomic.Int32
	rejectAdmin atomic.Int32
	// omitLocation answers user creation without a Location header.
	omitLocation atomic.Bool
	users       map[string]keycloak.UserRepresentation
	roleMapped  []keycloak.RoleRepresentation
}

func newFakeRealm(t *testing.T) *fakeRealm {
	t.Helper()
	f := &fakeRealm{users: map[string]keycloak.UserRepresentation{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/demo/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		_ = r.ParseForm()
		if r.Form.Get("password") != "secret" && r.Form.Get("password") != "admin-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(keycloak.TokenBundle{
			AccessToken: "tok-" + r.Form.Get("username"),
			ExpiresIn:   300,
			TokenType:   "Bearer",
		})
	})
	mux.HandleFunc("POST /admin/realms/demo/users", func(w http.ResponseWriter, r *http.Request) {
		if f.rejectAdmin.Load() > 0 {
			f.rejectAdmin.Add(-1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var u keycloak.UserRepresentation
		_ = json.NewDecoder(r.Body).Decode(&u)
		u.Username = strings.ToLower(u.Username)
		for _, existing := range f.users {
			if existing.Username == u.Username {
				w.WriteHeader(http.StatusConflict)
				return
			}
		}
		u.ID = "kc-" + u.Username
		f.users[u.ID] = u
		if !f.omitLocation.Load() {
			w.Header().Set("Location", f.URL+"/admin/realms/demo/users/"+u.ID)
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /admin/realms/demo/users", func(w http.ResponseWriter, r *http.Request) {
		// exact=true still matches case-insensitively in Keycloak.
		want := r.URL.Query().Get("username")
		found := []keycloak.UserRepresentation{}
		for _, u := range f.users {
			if strings.EqualFold(u.Username, want) {
				found = append(found, u)
			}
		}
		_ = json.NewEncoder(w).Encode(found)
	})
	mux.HandleFunc("GET /admin/realms/demo/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		u, ok := f.users[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(u)
	})
	mux.HandleFunc("PUT /admin/realms/demo/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		u, ok := f.users[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var patch keycloak.UserRepresentation
		_ = json.NewDecoder(r.Body).Decode(&patch)
		if patch.Attributes != nil {
			u.Attributes = patch.Attributes
		}
		if patch.EmailVerified != nil {
			u.EmailVerified = patch.EmailVerified
		}
		f.users[u.ID] = u
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /admin/realms/demo/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.users[r.PathValue("id")]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.users, r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /admin/realms/demo/roles/{name}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(keycloak.RoleRepresentation{ID: "role-1", Name: r.PathValue("name")})
	})
	mux.HandleFunc("POST /admin/realms/demo/users/{id}/role-mappings/realm", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&f.roleMapped)
		w.WriteHeader(http.StatusNoContent)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeRealm) client() *keycloak.Client {
	return keycloak.New(keycloak.Config{
		BaseURL:       f.URL,
		Realm:         "demo",
		ClientID:      "app",
		ClientSecret:  "cs",
		AdminUsername: "admin",
		AdminPassword: "admin-pass",
		Timeout:       2 * time.Second,
	})
}

func TestCreateUser_ReturnsIDFromLocationAndCachesAdminToken(t *testing.T) {
	f := newFakeRealm(t)
	c := f.client()
	ctx := context.Background()

	id, err := c.CreateUser(ctx, keycloak.UserRepresentation{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "kc-alice", id)

	_, err = c.CreateUser(ctx, keycloak.UserRepresentation{Username: "bob", Email: "b@x.com"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.tokenCalls.Load(), "admin token should be fetched once")
}

func TestCreateUser_ConflictOnDuplicate(t *testing.T) {
	f := newFakeRealm(t)
	c := f.client()
	ctx := context.Background()

	_, err := c.CreateUser(ctx, keycloak.UserRepresentation{Username: "alice"})
	require.NoError(t, err)

	_, err = c.CreateUser(ctx, keycloak.UserRepresentation{Username: "alice"})
	require.Error(t, err)
	assert.True(t, keycloak.IsConflict(err))
}

func TestAdmin_RejectedTokenIsRefreshedOnce(t *testing.T) {
	f := newFakeRealm(t)
	c := f.client()
	f.rejectAdmin.Store(1)

	_, err := c.CreateUser(context.Background(), keycloak.UserRepresentation{Username: "carol"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestLinkLocalUser_KeepsOtherAttributes(t *testing.T) {
	f := newFakeRealm(t)
	c := f.client()
	ctx := context.Background()

	id, err := c.CreateUser(ctx, keycloak.UserRepresentation{
		Username:   "dave",
		Attributes: map[string][]string{"locale": {"vi"}},
	})
	require.NoError(t, err)

	require.NoError(t, c.LinkLocalUser(ctx, id, "local-1"))

	u, err := c.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "local-1", u.Attribute(keycloak.LocalUserAttribute))
	assert.Equal(t, "vi", u.Attribute("locale"))
}

func TestFindByUsername_IgnoresCase(t *testing.T) {
	f := newFakeRealm(t)
	c := f.client()
	ctx := context.Background()

	id, err := c.CreateUser(ctx, keycloak.UserRepresentation{Username: "Alice", Email: "a@x.com"})
	require.NoError(t, err)

	for _, name := range []string{"Alice", "alice", "ALICE"} {
		u, err := c.FindByUsername(ctx, name)
		require.NoError(t, err, name)
		assert.Equal(t, id, u.ID)
		assert.Equal(t, "alice", u.Username)
	}

	_, err = c.FindByUsername(ctx, "bob")
	assert.True(t, keycloak.IsNotFound(err))
}

func TestCreateUser_MixedCaseWithoutLocationFallsBackToSearch(t *testing.T) {
	f := newFakeRealm(t)
	f.omitLocation.Store(true)

	id, err := f.client().CreateUser(context.Background(), keycloak.UserRepresentation{Username: "Frank"})
	require.NoError(t, err)
	assert.Equal(t, "kc-frank", id)
}

func TestDeleteUser_MissingUserSucceeds(t *testing.T) {
	f := newFakeRealm(t)
	assert.NoError(t, f.client().DeleteUser(context.Background(), "ghost"))
}

func TestGetUser_NotFound(t *testing.T) {
	f := newFakeRealm(t)
	_, err := f.client().GetUser(context.Background(), "ghost")
	assert.True(t, keycloak.IsNotFound(err))
}

func TestAssignRealmRole_PostsResolvedRole(t *testing.T) {
	f := newFakeRealm(t)
	c := f.client()
	ctx := context.Background()

	id, err := c.CreateUser(ctx, keycloak.UserRepresentation{Username: "erin"})
	require.NoError(t, err)
	require.NoError(t, c.AssignRealmRole(ctx, id, "user-vip"))

	require.Len(t, f.roleMapped, 1)
	assert.Equal(t, "role-1", f.roleMapped[0].ID)
	assert.Equal(t, "user-vip", f.roleMapped[0].Name)
}

func TestPasswordGrant_RejectedCredentials(t *testing.T) {
	f := newFakeRealm(t)

	_, err := f.client().PasswordGrant(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, keycloak.IsInvalidGrant(err))

	bundle, err := f.client().PasswordGrant(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-alice", bundle.AccessToken)
}

func TestDecodeClaims_ReadsEmailVerified(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"preferred_username": "alice",
		"email":              "a@x.com",
		"email_verified":     true,
		"realm_access":       map[string]any{"roles": []string{"user"}},
	})
	raw, err := tok.SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	claims, err := keycloak.DecodeClaims(raw)
	require.NoError(t, err)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "alice", claims.PreferredUsername)
	assert.Equal(t, []string{"user"}, claims.RealmAccess.Roles)

	_, err = keycloak.DecodeClaims("not-a-jwt")
	assert.Error(t, err)
}
