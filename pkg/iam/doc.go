// Package iam (Identity and Access Management) fronts a Keycloak realm with a
// local user store. Keycloak owns credentials and tokens; the local store owns
// profile fields and the link between the two records.
//
// # Overview
//
// The iam package is organized into sub-packages:
//
//   - iam/user     User entity, repositories, registration saga, login, profile
//   - iam/auth     Access-token verification (JWKS), email tokens, middleware, audit
//   - iam/oauth    Google and GitHub sign-in bridged onto Keycloak accounts
//
// # Architecture
//
//	HTTP Handler  →  Service Layer  →  Repository / IdentityProvider  →  Postgres, Keycloak
//
// Every sub-domain exposes its own error registry ("IAM", "OAUTH") so handlers
// can map failures to HTTP statuses without knowing the service internals.
//
// # Registration
//
// Registration creates the Keycloak user first, then the local record, then
// stores the local id on the Keycloak user as the "userId" attribute. A failed
// step undoes the earlier ones. A delayed reconcile job is queued before the
// first external write so a crash between steps still converges.
//
// # Social sign-in
//
// Accounts created from Google or GitHub get the shared PASSWORD_DEFAULT
// setting as their Keycloak password and are logged in with it. Such accounts
// cannot sign in through the password endpoint, and an existing password
// account is never taken over by a social login.
//
// # ──────────────────────────────────────────────────────
// # ENDPOINT REFERENCE
// # ──────────────────────────────────────────────────────
//
//	POST /user/register              create account, send activation mail
//	POST /user/login                 password grant
//	GET  /user/activate/:token       activation page
//	POST /user/resend-activation
//	POST /user/forgot-password
//	POST /user/reset-password
//	GET  /user/profile               (Bearer)
//	PUT  /user/profile               (Bearer)
//	POST /user/upgrade-vip           (Bearer, admin role)
//	GET  /user/auth/google           redirect to Google
//	GET  /user/callback              Google callback
//	GET  /user/auth/github           redirect to GitHub
//	GET  /user/auth/github/callback  GitHub callback
package iam
