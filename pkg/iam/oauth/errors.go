package oauth

import (
	"net/http"

	"github.com/Abraxas-365/keybridge/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("OAUTH")

var (
	CodeInvalidProvider     = ErrRegistry.Register("INVALID_PROVIDER", errx.TypeValidation, http.StatusBadRequest, "Invalid OAuth provider")
	CodeAuthorizationFailed = ErrRegistry.Register("AUTHORIZATION_FAILED", errx.TypeExternal, http.StatusBadRequest, "OAuth authorization failed")
	CodeInvalidState        = ErrRegistry.Register("INVALID_STATE", errx.TypeValidation, http.StatusBadRequest, "Invalid OAuth state")
	CodeProfileUnavailable  = ErrRegistry.Register("PROFILE_UNAVAILABLE", errx.TypeExternal, http.StatusBadGateway, "Could not read the OAuth profile")
)

func ErrInvalidProvider(name string) *errx.Error {
	return ErrRegistry.New(CodeInvalidProvider).WithDetail("provider", name)
}

func ErrAuthorizationFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeAuthorizationFailed, cause)
}

func ErrInvalidState() *errx.Error { return ErrRegistry.New(CodeInvalidState) }

func ErrProfileUnavailable(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeProfileUnavailable, cause)
}
