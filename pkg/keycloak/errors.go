package keycloak

import (
	"errors"
	"net/http"

	"github.com/Abraxas-365/keybridge/pkg/errx"
)

var errorRegistry = errx.NewRegistry("KEYCLOAK")

var (
	ErrRequest = errorRegistry.Register(
		"REQUEST_FAILED",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Identity provider request failed",
	)

	ErrUnexpectedStatus = errorRegistry.Register(
		"UNEXPECTED_STATUS",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Identity provider returned an unexpected status",
	)

	ErrAdminAuth = errorRegistry.Register(
		"ADMIN_AUTH_FAILED",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Could not obtain an admin token",
	)

	ErrInvalidGrant = errorRegistry.Register(
		"INVALID_GRANT",
		errx.TypeAuthorization,
		http.StatusUnauthorized,
		"Credentials rejected by identity provider",
	)

	ErrConflict = errorRegistry.Register(
		"CONFLICT",
		errx.TypeConflict,
		http.StatusConflict,
		"User already exists in identity provider",
	)

	ErrNotFound = errorRegistry.Register(
		"NOT_FOUND",
		errx.TypeNotFound,
		http.StatusNotFound,
		"Resource not found in identity provider",
	)

	ErrDecode = errorRegistry.Register(
		"DECODE_FAILED",
		errx.TypeExternal,
		http.StatusBadGateway,
		"Invalid response from identity provider",
	)
)

func statusError(code *errx.ErrorCode, status int, body []byte) *errx.Error {
	e := errorRegistry.New(code).WithDetail("status_code", status)
	if len(body) > 0 {
		if len(body) > 512 {
			body = body[:512]
		}
		e.WithDetail("body", string(body))
	}
	return e
}

// ErrProvider is the opaque failure surfaced to callers when an identity
// provider call fails for reasons other than a definite answer.
var ErrProvider = errorRegistry.Register(
	"PROVIDER_ERROR",
	errx.TypeExternal,
	http.StatusInternalServerError,
	"Identity provider error",
)

// ProviderError wraps cause as ErrProvider unless it already carries that code.
func ProviderError(cause error) *errx.Error {
	if errx.IsCode(cause, ErrProvider) {
		var e *errx.Error
		if errors.As(cause, &e) {
			return e
		}
	}
	return errorRegistry.NewWithCause(ErrProvider, cause)
}
