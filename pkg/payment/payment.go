// Package payment holds what the VIP payment flow shares across its
// subpackages.
package payment

import (
	"net/http"

	"github.com/Abraxas-365/keybridge/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("PAYMENT")

var (
	CodeInvalidSignature = ErrRegistry.Register("INVALID_SIGNATURE", errx.TypeValidation, http.StatusBadRequest, "Invalid signature")
	CodeInvalidPayload   = ErrRegistry.Register("INVALID_PAYLOAD", errx.TypeValidation, http.StatusBadRequest, "Invalid payment payload")
	CodeGateway          = ErrRegistry.Register("GATEWAY_ERROR", errx.TypeExternal, http.StatusBadGateway, "Payment gateway error")
	CodeNotConfigured    = ErrRegistry.Register("NOT_CONFIGURED", errx.TypeInternal, http.StatusServiceUnavailable, "Payments are not configured")
)

func ErrInvalidSignature() *errx.Error { return ErrRegistry.New(CodeInvalidSignature) }

func ErrInvalidPayload(reason string) *errx.Error {
	return ErrRegistry.New(CodeInvalidPayload).WithDetail("reason", reason)
}

func ErrGateway(cause error) *errx.Error { return ErrRegistry.NewWithCause(CodeGateway, cause) }

func ErrNotConfigured() *errx.Error { return ErrRegistry.New(CodeNotConfigured) }

// State is where a payment callback ended up.
//
//	PENDING -> VERIFIED -> APPLIED
//	                    -> REJECTED
type State string

const (
	StatePending  State = "PENDING"
	StateVerified State = "VERIFIED"
	StateApplied  State = "APPLIED"
	StateRejected State = "REJECTED"
)
