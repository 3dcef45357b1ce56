package jobxredis

import "github.com/Abraxas-365/keybridge/pkg/errx"

var redisErrors = errx.NewRegistry("JOBX_REDIS")

var (
	ErrEnqueue   = redisErrors.Register("ENQUEUE", errx.TypeExternal, 500, "Enqueue failed")
	ErrDequeue   = redisErrors.Register("DEQUEUE", errx.TypeExternal, 500, "Dequeue failed")
	ErrGetJob    = redisErrors.Register("GET_JOB", errx.TypeExternal, 500, "Loading job failed")
	ErrComplete  = redisErrors.Register("COMPLETE", errx.TypeExternal, 500, "Marking job completed failed")
	ErrFail      = redisErrors.Register("FAIL", errx.TypeExternal, 500, "Marking job failed failed")
	ErrRetry     = redisErrors.Register("RETRY", errx.TypeExternal, 500, "Scheduling retry failed")
	ErrPromote   = redisErrors.Register("PROMOTE", errx.TypeExternal, 500, "Promoting scheduled jobs failed")
	ErrNotFound  = redisErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrMarshal   = redisErrors.Register("MARSHAL", errx.TypeInternal, 500, "Encoding job failed")
	ErrUnmarshal = redisErrors.Register("UNMARSHAL", errx.TypeInternal, 500, "Decoding job failed")
)
