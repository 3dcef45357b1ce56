// Package iam holds what the identity bounded context shares across its
// subpackages: the error registry and the SSO provider tag.
package iam

import (
	"net/http"

	"github.com/Abraxas-365/keybridge/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeValidation            = ErrRegistry.Register("VALIDATION", errx.TypeValidation, http.StatusBadRequest, "Missing required user information.")
	CodeDuplicateEmail        = ErrRegistry.Register("DUPLICATE_EMAIL", errx.TypeValidation, http.StatusBadRequest, "Email already exists.")
	CodeDuplicateUsername     = ErrRegistry.Register("DUPLICATE_USERNAME", errx.TypeValidation, http.StatusBadRequest, "Username already exists.")
	CodeInvalidCredentials    = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid username or password.")
	CodeAccountNotVerified    = ErrRegistry.Register("ACCOUNT_NOT_VERIFIED", errx.TypeAuthorization, http.StatusUnauthorized, "Account is not verified. Please check your email.")
	CodeUserNotFound          = ErrRegistry.Register("USER_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found.")
	CodeInvalidToken          = ErrRegistry.Register("INVALID_TOKEN", errx.TypeValidation, http.StatusBadRequest, "Invalid or expired token")
	CodeUnauthorized          = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Access token is missing or invalid.")
	CodeAccessDenied          = ErrRegistry.Register("ACCESS_DENIED", errx.TypeAuthorization, http.StatusForbidden, "Access denied")
	CodePasswordAccountExists = ErrRegistry.Register("PASSWORD_ACCOUNT_EXISTS", errx.TypeConflict, http.StatusConflict, "Email is already registered with password authentication")
	CodeSettingNotFound       = ErrRegistry.Register("SETTING_NOT_FOUND", errx.TypeInternal, http.StatusInternalServerError, "Application setting not provisioned")
)

func ErrValidation(message string) *errx.Error {
	if message == "" {
		return ErrRegistry.New(CodeValidation)
	}
	return ErrRegistry.NewWithMessage(CodeValidation, message)
}

func ErrDuplicateEmail() *errx.Error        { return ErrRegistry.New(CodeDuplicateEmail) }
func ErrDuplicateUsername() *errx.Error     { return ErrRegistry.New(CodeDuplicateUsername) }
func ErrInvalidCredentials() *errx.Error    { return ErrRegistry.New(CodeInvalidCredentials) }
func ErrAccountNotVerified() *errx.Error    { return ErrRegistry.New(CodeAccountNotVerified) }
func ErrUserNotFound() *errx.Error          { return ErrRegistry.New(CodeUserNotFound) }
func ErrInvalidToken() *errx.Error          { return ErrRegistry.New(CodeInvalidToken) }
func ErrUnauthorized() *errx.Error          { return ErrRegistry.New(CodeUnauthorized) }
func ErrAccessDenied() *errx.Error          { return ErrRegistry.New(CodeAccessDenied) }
func ErrPasswordAccountExists() *errx.Error { return ErrRegistry.New(CodePasswordAccountExists) }

func ErrSettingNotFound(key string) *errx.Error {
	return ErrRegistry.New(CodeSettingNotFound).WithDetail("key", key)
}

// SSOProvider tags a local account created through third-party OAuth. The
// empty value means a password account.
type SSOProvider string

const (
	SSOProviderNone   SSOProvider = ""
	SSOProviderGoogle SSOProvider = "GOOGLE"
	SSOProviderGitHub SSOProvider = "GITHUB"
)

func (p SSOProvider) IsSSO() bool { return p != SSOProviderNone }

func (p SSOProvider) IsValid() bool {
	switch p {
	case SSOProviderNone, SSOProviderGoogle, SSOProviderGitHub:
		return true
	}
	return false
}

// DisplayName returns the human-readable provider name.
func (p SSOProvider) DisplayName() string {
	switch p {
	case SSOProviderGoogle:
		return "Google"
	case SSOProviderGitHub:
		return "GitHub"
	case SSOProviderNone:
		return "Password"
	default:
		return "Unknown"
	}
}

// Domain is the mail domain used to synthesize an address when the
// provider profile has none.
func (p SSOProvider) Domain() string {
	switch p {
	case SSOProviderGoogle:
		return "google.com"
	case SSOProviderGitHub:
		return "github.com"
	}
	return ""
}
