package jobx

import "github.com/Abraxas-365/keybridge/pkg/errx"

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrInvalidJob     = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, 400, "Invalid job definition")
	ErrAlreadyRunning = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Worker is already running")
	ErrDecodePayload  = jobxErrors.Register("DECODE_PAYLOAD", errx.TypeInternal, 500, "Failed to decode job payload")
)
