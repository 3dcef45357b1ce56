package usersrv

const (
	JobSendEmail         = "iam.email.send"
	JobReconcileIdentity = "iam.identity.reconcile"
)

// EmailKind names a mail template.
type EmailKind string

const (
	EmailActivation    EmailKind = "activation"
	EmailPasswordReset EmailKind = "password_reset"
)

// EmailJob is the payload of JobSendEmail.
type EmailJob struct {
	Kind     EmailKind `json:"kind"`
	To       string    `json:"to"`
	Username string    `json:"username"`
	Link     string    `json:"link"`
}

// ReconcileIntent is the payload of JobReconcileIdentity: the identity a
// provisioning attempt meant to create in both stores.
type ReconcileIntent struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}
