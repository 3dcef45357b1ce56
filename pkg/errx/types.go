package errx

// Type categorizes an error.
type Type string

const (
	TypeInternal      Type = "INTERNAL"
	TypeValidation    Type = "VALIDATION"
	TypeAuthorization Type = "AUTHORIZATION"
	TypeNotFound      Type = "NOT_FOUND"
	TypeConflict      Type = "CONFLICT"
	TypeBusiness      Type = "BUSINESS"

	// TypeExternal covers failures of downstream services (identity
	// provider, mail, payment gateway).
	TypeExternal Type = "EXTERNAL"
)

func (t Type) String() string {
	return string(t)
}
