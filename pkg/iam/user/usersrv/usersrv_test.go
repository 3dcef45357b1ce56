package usersrv_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/keybridge/pkg/iam/oauth"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/keybridge/pkg/iam/user/usersrv"
	"github.com/Abraxas-365/keybridge/pkg/jobx"
	"github.com/Abraxas-365/keybridge/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/Abraxas-365/keybridge/pkg/ptrx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	authURL     = "http://auth.test"
	frontendURL = "http://app.test"
	defaultPass = "sso-default-pass"
)

type harness struct {
	svc    *usersrv.UserService
	users  *userinfra.MemoryUserRepository
	idp    *fakeIDP
	sender *fakeSender
	queue  *jobxmem.Queue
	tokens *auth.EmailTokenService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		users:  userinfra.NewMemoryUserRepository(),
		idp:    newFakeIDP(),
		sender: &fakeSender{},
		queue:  jobxmem.New(),
		tokens: auth.NewEmailTokenService("test-secret", time.Hour, time.Hour),
	}
	jobs := jobx.NewClient(h.queue, jobx.WithQueues("iam"))

	h.svc = usersrv.NewUserService(usersrv.Deps{
		Users:    h.users,
		Settings: userinfra.NewMemorySettingRepository(map[string]string{user.SettingPasswordDefault: defaultPass}),
		Identity: h.idp,
		Tokens:   h.tokens,
		// mails are delivered inline so tests can read the links
		Mailer: usersrv.NewMailer(h.sender, nil, authURL, frontendURL),
		Jobs:   jobs,
		Audit:  authinfra.NewLogxAuditService(prometheus.NewRegistry()),
	}, usersrv.Config{VIPRole: "user-vip"})
	return h
}

func alice() user.Registration {
	return user.Registration{Username: "alice", Email: "alice@x.com", Password: "p", FirstName: "A", LastName: "L"}
}

func (h *harness) activationToken(t *testing.T) string {
	t.Helper()
	mail, ok := h.sender.last()
	require.True(t, ok, "expected a mail")
	require.Equal(t, usersrv.EmailActivation, mail.Kind)
	return strings.TrimPrefix(mail.Link, authURL+"/user/activate/")
}

func TestRegister_RoundTripProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	u, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)
	assert.True(t, u.IsLinked())

	profile, err := h.svc.GetProfile(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "alice@x.com", profile.Email)
	assert.Equal(t, "A", profile.FirstName)
	assert.Nil(t, profile.SSOProvider)

	ext := h.idp.user(u.KeycloakUserID.String())
	require.NotNil(t, ext)
	assert.Equal(t, u.ID.String(), ext.Attribute(keycloak.LocalUserAttribute))
	assert.False(t, ptrx.BoolValue(ext.EmailVerified))

	mail, ok := h.sender.last()
	require.True(t, ok)
	assert.Equal(t, "alice@x.com", mail.To)
	assert.True(t, strings.HasPrefix(mail.Link, authURL+"/user/activate/"))

	assert.Len(t, h.queue.Pending(usersrv.JobReconcileIdentity), 1)
}

func TestRegister_MissingFieldIsValidationError(t *testing.T) {
	h := newHarness(t)
	reg := alice()
	reg.LastName = ""

	_, err := h.svc.Register(context.Background(), reg)
	assert.True(t, errx.IsCode(err, iam.CodeValidation))
	assert.Zero(t, h.idp.creates)
}

func TestRegister_DuplicateEmailRejectedBeforeExternalCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)
	require.Equal(t, 1, h.idp.creates)

	for _, reg := range []user.Registration{
		{Username: "bob", Email: "alice@x.com", Password: "p", FirstName: "B", LastName: "L"},
		{Username: "alice", Email: "ALICE@x.com", Password: "p", FirstName: "B", LastName: "L"},
	} {
		_, err := h.svc.Register(ctx, reg)
		assert.True(t, errx.IsCode(err, iam.CodeDuplicateEmail), "got %v", err)
	}

	_, err = h.svc.Register(ctx, user.Registration{Username: "alice", Email: "other@x.com", Password: "p", FirstName: "B", LastName: "L"})
	assert.True(t, errx.IsCode(err, iam.CodeDuplicateUsername), "got %v", err)

	assert.Equal(t, 1, h.idp.creates)
}

func TestRegister_ExternalConflictMapsToDuplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// identity exists in Keycloak only
	_, err := h.idp.CreateUser(ctx, keycloak.UserRepresentation{Username: "ghost", Email: "alice@x.com"})
	require.NoError(t, err)

	_, err = h.svc.Register(ctx, alice())
	assert.True(t, errx.IsCode(err, iam.CodeDuplicateEmail), "got %v", err)
}

func TestRegister_LinkFailureRollsBackBothRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.idp.linkErr = errors.New("keycloak down")

	_, err := h.svc.Register(ctx, alice())
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, keycloak.ErrProvider))

	_, err = h.users.FindByEmail(ctx, "alice@x.com")
	assert.True(t, errx.IsCode(err, iam.CodeUserNotFound))
	assert.Len(t, h.idp.deleted, 1)

	_, ok := h.sender.last()
	assert.False(t, ok, "no activation mail after a failed registration")
}

func TestVerifyActivation_SetsVerifiedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	require.NoError(t, h.svc.VerifyActivation(ctx, h.activationToken(t)))
	assert.Equal(t, 1, h.idp.verifiedCalls)
	assert.True(t, ptrx.BoolValue(h.idp.user(u.KeycloakUserID.String()).EmailVerified))
}

func TestVerifyActivation_RejectsExpiredAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	old := auth.NewEmailTokenService("test-secret", time.Hour, time.Hour).
		WithClock(func() time.Time { return time.Now().Add(-61 * time.Minute) })
	expired, err := old.Issue("alice@x.com", auth.PurposeActivation)
	require.NoError(t, err)

	reset, err := h.tokens.Issue("alice@x.com", auth.PurposePasswordReset)
	require.NoError(t, err)

	for _, token := range []string{expired, reset, "garbage"} {
		err := h.svc.VerifyActivation(ctx, token)
		assert.True(t, errx.IsCode(err, iam.CodeInvalidToken), "got %v", err)
	}
	assert.Zero(t, h.idp.verifiedCalls)
}

func TestVerifyActivation_UnknownUser(t *testing.T) {
	h := newHarness(t)
	token, err := h.tokens.Issue("nobody@x.com", auth.PurposeActivation)
	require.NoError(t, err)

	err = h.svc.VerifyActivation(context.Background(), token)
	assert.True(t, errx.IsCode(err, iam.CodeUserNotFound))
}

func TestLogin_UnverifiedThenVerified(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, "alice", "p", false)
	assert.True(t, errx.IsCode(err, iam.CodeAccountNotVerified), "got %v", err)

	require.NoError(t, h.svc.VerifyActivation(ctx, h.activationToken(t)))

	bundle, err := h.svc.Login(ctx, "alice@x.com", "p", false)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.AccessToken)
	assert.NotEmpty(t, bundle.RefreshToken)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, "alice", "wrong", false)
	assert.True(t, errx.IsCode(err, iam.CodeInvalidCredentials))

	_, err = h.svc.Login(ctx, "nobody", "p", false)
	assert.True(t, errx.IsCode(err, iam.CodeInvalidCredentials))

	_, err = h.svc.Login(ctx, "", "p", false)
	assert.True(t, errx.IsCode(err, iam.CodeValidation))
}

func TestLogin_SSOAccountRejectedWithoutBypass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	u, err := h.svc.ProvisionSSOUser(ctx, usersrv.SSOIdentity{
		Username: "carol@gmail.com",
		Email:    "carol@gmail.com",
		Provider: iam.SSOProviderGoogle,
	})
	require.NoError(t, err)
	assert.True(t, ptrx.BoolValue(h.idp.user(u.KeycloakUserID.String()).EmailVerified))
	assert.Equal(t, ".", h.idp.user(u.KeycloakUserID.String()).FirstName)

	for _, password := range []string{defaultPass, "wrong"} {
		_, err := h.svc.Login(ctx, "carol@gmail.com", password, false)
		assert.True(t, errx.IsCode(err, iam.CodeInvalidCredentials), "password %q: %v", password, err)
	}

	bundle, err := h.svc.LoginSSO(ctx, u)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.AccessToken)
}

func TestReconcile_DeletesOrphanExternalUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.idp.CreateUser(ctx, keycloak.UserRepresentation{Username: "alice", Email: "alice@x.com"})
	require.NoError(t, err)

	require.NoError(t, h.svc.Reconcile(ctx, usersrv.ReconcileIntent{Username: "alice", Email: "alice@x.com"}))
	assert.Nil(t, h.idp.user(id))
}

func TestReconcile_KeepsExternalUserOfAnotherEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.idp.CreateUser(ctx, keycloak.UserRepresentation{Username: "alice", Email: "someone@x.com"})
	require.NoError(t, err)

	require.NoError(t, h.svc.Reconcile(ctx, usersrv.ReconcileIntent{Username: "alice", Email: "alice@x.com"}))
	assert.NotNil(t, h.idp.user(id))
}

func TestReconcile_RestoresBackReference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id, err := h.idp.CreateUser(ctx, keycloak.UserRepresentation{Username: "alice", Email: "alice@x.com"})
	require.NoError(t, err)

	u := user.NewUser("alice@x.com", "alice", iam.SSOProviderNone)
	u.KeycloakUserID = "kc-1"
	require.Equal(t, "kc-1", id)
	require.NoError(t, h.users.Create(ctx, u))

	require.NoError(t, h.svc.Reconcile(ctx, usersrv.ReconcileIntent{Username: "alice", Email: "alice@x.com"}))
	assert.Equal(t, u.ID.String(), h.idp.user(id).Attribute(keycloak.LocalUserAttribute))
}

func TestReconcile_DeletesLocalRecordWithoutExternalUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := user.NewUser("alice@x.com", "alice", iam.SSOProviderNone)
	u.KeycloakUserID = "kc-gone"
	require.NoError(t, h.users.Create(ctx, u))

	require.NoError(t, h.svc.Reconcile(ctx, usersrv.ReconcileIntent{Username: "alice", Email: "alice@x.com"}))
	_, err := h.users.FindByID(ctx, u.ID)
	assert.True(t, errx.IsCode(err, iam.CodeUserNotFound))
}

func TestReconcile_ConsistentIdentityIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	require.NoError(t, h.svc.Reconcile(ctx, usersrv.ReconcileIntent{Username: "alice", Email: "alice@x.com"}))
	assert.Empty(t, h.idp.deleted)
	_, err = h.users.FindByID(ctx, u.ID)
	assert.NoError(t, err)
}

func TestRegister_MixedCaseUsernameSurvivesReconcile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	reg := alice()
	reg.Username = "Alice"

	u, err := h.svc.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	require.NoError(t, h.svc.Reconcile(ctx, usersrv.ReconcileIntent{Username: "Alice", Email: "alice@x.com"}))

	_, err = h.users.FindByID(ctx, u.ID)
	require.NoError(t, err, "registration lost its local record")
	assert.Empty(t, h.idp.deleted)

	require.NoError(t, h.svc.VerifyActivation(ctx, h.activationToken(t)))
	for _, identifier := range []string{"alice", "ALICE", " Alice "} {
		_, err := h.svc.Login(ctx, identifier, "p", false)
		assert.NoError(t, err, identifier)
	}
}

func TestRegister_UsernameDifferingOnlyInCaseIsDuplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	reg := alice()
	reg.Username = "ALICE"
	reg.Email = "other@x.com"
	_, err = h.svc.Register(ctx, reg)
	assert.True(t, errx.IsCode(err, iam.CodeDuplicateUsername), "got %v", err)
	assert.Equal(t, 1, h.idp.creates)
}

func TestReconcile_KeepsLocalRecordWhileLinkedIdentityExists(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	h.idp.searchMiss = true
	require.NoError(t, h.svc.Reconcile(ctx, usersrv.ReconcileIntent{Username: "alice", Email: "alice@x.com"}))

	_, err = h.users.FindByID(ctx, u.ID)
	assert.NoError(t, err)
}

func TestSSOSignIn_MixedCaseGitHubLoginAcrossReconcile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	bridge := oauth.NewBridge(h.users, h.svc, authinfra.NewMemoryStateStore(), time.Minute)
	profile := &oauth.Profile{Provider: iam.SSOProviderGitHub, Login: "Octo", Email: "octo@x.com"}

	_, err := bridge.SignIn(ctx, profile)
	require.NoError(t, err)
	require.Equal(t, 1, h.idp.creates)

	require.NoError(t, h.svc.Reconcile(ctx, usersrv.ReconcileIntent{Username: "Octo", Email: "octo@x.com"}))

	bundle, err := bridge.SignIn(ctx, profile)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.AccessToken)
	assert.Equal(t, 1, h.idp.creates, "second sign-in reuses the account")
	assert.Empty(t, h.idp.deleted)
}

func TestForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)
	activation := h.activationToken(t)
	require.NoError(t, h.svc.VerifyActivation(ctx, activation))

	require.NoError(t, h.svc.ForgotPassword(ctx, "nobody@x.com"))
	mail, _ := h.sender.last()
	assert.Equal(t, usersrv.EmailActivation, mail.Kind, "no mail for an unknown address")

	require.NoError(t, h.svc.ForgotPassword(ctx, "alice@x.com"))
	mail, _ = h.sender.last()
	require.Equal(t, usersrv.EmailPasswordReset, mail.Kind)
	require.True(t, strings.HasPrefix(mail.Link, frontendURL+"/reset-password/"))
	token := strings.TrimPrefix(mail.Link, frontendURL+"/reset-password/")

	err = h.svc.ResetPassword(ctx, activation, "new-pass")
	assert.True(t, errx.IsCode(err, iam.CodeInvalidToken), "activation token must not reset")

	require.NoError(t, h.svc.ResetPassword(ctx, token, "new-pass"))
	_, err = h.svc.Login(ctx, "alice", "new-pass", false)
	assert.NoError(t, err)
}

func TestUpdateProfile_SplitsNamesAndLocalFields(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	profile, err := h.svc.UpdateProfile(ctx, "alice@x.com", user.ProfileUpdate{
		FirstName:   ptrx.String("Alicia"),
		PhoneNumber: ptrx.String("0900"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", profile.FirstName)
	assert.Equal(t, "L", profile.LastName)
	assert.Equal(t, "0900", profile.PhoneNumber)
	assert.Equal(t, "alice", profile.Username)
}

func TestUpgradeVIP(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u, err := h.svc.Register(ctx, alice())
	require.NoError(t, err)

	require.NoError(t, h.svc.UpgradeVIP(ctx, "alice@x.com", "admin"))
	assert.Equal(t, []string{"user-vip"}, h.idp.roles[u.KeycloakUserID.String()])

	err = h.svc.UpgradeVIP(ctx, "nobody@x.com", "admin")
	assert.True(t, errx.IsCode(err, iam.CodeUserNotFound))
}

func TestRegisterJobs_ProcessesQueuedMail(t *testing.T) {
	ctx := context.Background()
	queue := jobxmem.New()
	jobs := jobx.NewClient(queue, jobx.WithQueues("iam"))
	sender := &fakeSender{}
	mailer := usersrv.NewMailer(sender, jobs, authURL, frontendURL)

	svc := usersrv.NewUserService(usersrv.Deps{Mailer: mailer, Jobs: jobs}, usersrv.Config{})
	svc.RegisterJobs(jobs)

	require.NoError(t, mailer.SendActivation(ctx, "alice@x.com", "alice", "tok"))
	_, sent := sender.last()
	assert.False(t, sent, "mail is queued, not sent inline")

	info, err := queue.Dequeue(ctx, []string{"iam"}, time.Millisecond)
	require.NoError(t, err)
	jobs.Process(ctx, info)

	mail, ok := sender.last()
	require.True(t, ok)
	assert.Equal(t, authURL+"/user/activate/tok", mail.Link)
}
