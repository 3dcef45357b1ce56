// Package paymentsrv runs the VIP payment flow: opening a MoMo payment and
// applying its notification.
package paymentsrv

import (
	"context"

	"github.com/Abraxas-365/keybridge/pkg/iam/auth"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/Abraxas-365/keybridge/pkg/payment"
	"github.com/Abraxas-365/keybridge/pkg/payment/momo"
)

// Gateway opens payments at the provider. momo.Client implements it.
type Gateway interface {
	CreatePayment(ctx context.Context, email string) (*momo.CreateResponse, error)
}

// Verifier checks the signature of a payment notification.
type Verifier interface {
	VerifyIPN(n momo.IPN) error
}

// RoleUpgrader grants the VIP role. usersrv.UserService implements it.
type RoleUpgrader interface {
	UpgradeVIP(ctx context.Context, email, source string) error
}

// Service opens VIP payments and applies their notifications.
type Service struct {
	gateway  Gateway
	verifier Verifier
	upgrader RoleUpgrader
	audit    auth.AuditService
}

// NewService creates a payment Service.
func NewService(gateway Gateway, verifier Verifier, upgrader RoleUpgrader, audit auth.AuditService) *Service {
	return &Service{gateway: gateway, verifier: verifier, upgrader: upgrader, audit: audit}
}

// CreatePayment returns the MoMo page where the caller pays for VIP.
func (s *Service) CreatePayment(ctx context.Context, email string) (*momo.CreateResponse, error) {
	if email == "" {
		return nil, payment.ErrInvalidPayload("missing email")
	}
	return s.gateway.CreatePayment(ctx, email)
}

// HandleCallback verifies n and, for a successful payment, upgrades the
// payer. A bad signature never reaches the upgrade. Replayed notifications
// re-apply the upgrade, which is idempotent on the Keycloak side.
func (s *Service) HandleCallback(ctx context.Context, n momo.IPN) (payment.State, error) {
	state := payment.StatePending
	log := logx.WithContext(ctx).WithFields(logx.Fields{"order_id": n.OrderID, "result_code": n.ResultCode})
	transition := func(to payment.State) {
		log.WithFields(logx.Fields{"from": state, "to": to}).Info("payment: state changed")
		state = to
		s.audit.LogPaymentCallback(ctx, n.OrderID, string(to))
	}

	if err := s.verifier.VerifyIPN(n); err != nil {
		transition(payment.StateRejected)
		log.Warn("payment: signature mismatch")
		return state, err
	}
	transition(payment.StateVerified)

	if !n.Succeeded() {
		transition(payment.StateRejected)
		return state, nil
	}

	extra, err := momo.DecodeExtraData(n.ExtraData)
	if err != nil {
		transition(payment.StateRejected)
		return state, err
	}

	if err := s.upgrader.UpgradeVIP(ctx, extra.Email, "momo"); err != nil {
		log.WithError(err).WithField("email", extra.Email).Error("payment: upgrade failed")
		return state, err
	}
	transition(payment.StateApplied)
	return state, nil
}
