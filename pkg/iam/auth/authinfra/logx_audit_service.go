package authinfra

import (
	"context"
	"errors"

	"github.com/Abraxas-365/keybridge/pkg/logx"
	"github.com/prometheus/client_golang/prometheus"
)

// LogxAuditService writes one structured line per authentication event and
// counts events by kind and outcome.
type LogxAuditService struct {
	events *prometheus.CounterVec
}

// NewLogxAuditService registers its counter with reg. A nil reg skips
// registration.
func NewLogxAuditService(reg prometheus.Registerer) *LogxAuditService {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keybridge",
		Subsystem: "auth",
		Name:      "events_total",
		Help:      "Authentication events by kind and outcome.",
	}, []string{"event", "outcome"})

	if reg != nil {
		if err := reg.Register(events); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				events = already.ExistingCollector.(*prometheus.CounterVec)
			} else {
				logx.WithError(err).Warn("audit: metrics registration failed")
			}
		}
	}
	return &LogxAuditService{events: events}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (s *LogxAuditService) emit(ctx context.Context, event string, success bool, fields logx.Fields, msg string) {
	s.events.WithLabelValues(event, outcome(success)).Inc()

	fields["audit_event"] = event
	fields["outcome"] = outcome(success)
	entry := logx.WithContext(ctx).WithFields(fields)
	if success {
		entry.Info(msg)
		return
	}
	entry.Warn(msg)
}

func (s *LogxAuditService) LogRegistration(ctx context.Context, email, method string, success bool, reason string) {
	s.emit(ctx, "registration", success, logx.Fields{
		"email":  email,
		"method": method,
		"reason": reason,
	}, "Audit: registration")
}

func (s *LogxAuditService) LogLoginAttempt(ctx context.Context, identifier, method string, success bool, reason string) {
	s.emit(ctx, "login", success, logx.Fields{
		"identifier": identifier,
		"method":     method,
		"reason":     reason,
	}, "Audit: login attempt")
}

func (s *LogxAuditService) LogActivation(ctx context.Context, email string, success bool) {
	s.emit(ctx, "activation", success, logx.Fields{"email": email}, "Audit: account activation")
}

func (s *LogxAuditService) LogPasswordReset(ctx context.Context, email, stage string, success bool) {
	s.emit(ctx, "password_reset", success, logx.Fields{
		"email": email,
		"stage": stage,
	}, "Audit: password reset")
}

func (s *LogxAuditService) LogRoleGranted(ctx context.Context, email, role, source string, success bool) {
	s.emit(ctx, "role_granted", success, logx.Fields{
		"email":  email,
		"role":   role,
		"source": source,
	}, "Audit: role granted")
}

// LogPaymentCallback counts REJECTED as a failure and every other state as
// a success.
func (s *LogxAuditService) LogPaymentCallback(ctx context.Context, orderID, state string) {
	s.emit(ctx, "payment_callback", state != "REJECTED", logx.Fields{
		"order_id": orderID,
		"state":    state,
	}, "Audit: payment callback")
}
