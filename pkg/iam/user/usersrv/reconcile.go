package usersrv

import (
	"context"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/iam/user"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
	"github.com/Abraxas-365/keybridge/pkg/keycloak"
	"github.com/Abraxas-365/keybridge/pkg/logx"
)

// Reconcile brings the local store and Keycloak back in line for the
// identity a provisioning attempt targeted. It is the JobReconcileIdentity
// handler and is safe to run on a consistent identity.
//
//   - external only: the external user is deleted
//   - both, back-reference missing: the back-reference is set
//   - local only, its external user gone: the local record is deleted
//
// A local record is only deleted once Keycloak reports its linked id as
// missing; a failed username search alone is not enough.
func (s *UserService) Reconcile(ctx context.Context, intent ReconcileIntent) error {
	intent.Username = user.NormalizeUsername(intent.Username)
	log := logx.WithContext(ctx).WithField("username", intent.Username)

	ext, err := s.idp.FindByUsername(ctx, intent.Username)
	if err != nil && !keycloak.IsNotFound(err) {
		return err
	}
	if keycloak.IsNotFound(err) {
		ext = nil
	}

	local, err := s.users.FindByUsername(ctx, intent.Username)
	if err != nil && !errx.IsCode(err, iam.CodeUserNotFound) {
		return err
	}
	if errx.IsCode(err, iam.CodeUserNotFound) {
		local = nil
	}

	switch {
	case ext != nil && local == nil:
		return s.reconcileOrphanExternal(ctx, intent, ext)

	case ext != nil && local != nil:
		if local.KeycloakUserID.String() != ext.ID {
			log.WithField("keycloak_user_id", ext.ID).Warn("reconcile: local record points at another identity")
			return nil
		}
		if ext.Attribute(keycloak.LocalUserAttribute) == local.ID.String() {
			return nil
		}
		log.Info("reconcile: restoring back-reference")
		return s.idp.LinkLocalUser(ctx, ext.ID, local.ID.String())

	case ext == nil && local != nil:
		if !local.IsLinked() || user.NormalizeEmail(intent.Email) != local.Email {
			return nil
		}
		_, err := s.idp.GetUser(ctx, local.KeycloakUserID.String())
		if err == nil {
			log.WithField("keycloak_user_id", local.KeycloakUserID.String()).
				Warn("reconcile: username search missed a linked identity, keeping local record")
			return nil
		}
		if !keycloak.IsNotFound(err) {
			return err
		}
		log.Warn("reconcile: deleting local record without external identity")
		return s.users.Delete(ctx, local.ID)
	}

	return nil
}

// reconcileOrphanExternal deletes an external user with no local record,
// unless it does not belong to the intent or still references a local
// record under another username.
func (s *UserService) reconcileOrphanExternal(ctx context.Context, intent ReconcileIntent, ext *keycloak.UserRepresentation) error {
	log := logx.WithContext(ctx).WithFields(logx.Fields{"username": intent.Username, "keycloak_user_id": ext.ID})

	if user.NormalizeEmail(ext.Email) != user.NormalizeEmail(intent.Email) {
		log.Debug("reconcile: external user belongs to another email, skipping")
		return nil
	}

	if ref := ext.Attribute(keycloak.LocalUserAttribute); ref != "" {
		_, err := s.users.FindByID(ctx, kernel.UserID(ref))
		if err == nil {
			return nil
		}
		if !errx.IsCode(err, iam.CodeUserNotFound) {
			return err
		}
	}

	log.Warn("reconcile: deleting external user without local record")
	return s.idp.DeleteUser(ctx, ext.ID)
}
