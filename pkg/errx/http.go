package errx

import "errors"

const redactedMessage = "Internal server error"

// HTTPErrorResponse is the body written for a failed request.
type HTTPErrorResponse struct {
	Success    bool           `json:"success"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Type       string         `json:"type"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
}

// ToHTTPResponse converts e to a response body. Server-side failures
// (status >= 500) are redacted: no message, details or cause are exposed.
func (e *Error) ToHTTPResponse() HTTPErrorResponse {
	status := e.HTTPStatus
	if status == 0 {
		status = typeToHTTPStatus(e.Type)
	}
	if status >= 500 {
		return HTTPErrorResponse{
			Code:       "INTERNAL_ERROR",
			Message:    redactedMessage,
			Type:       string(TypeInternal),
			StatusCode: status,
		}
	}
	return HTTPErrorResponse{
		Code:       e.Code,
		Message:    e.Message,
		Type:       string(e.Type),
		Details:    e.Details,
		StatusCode: status,
	}
}

// ResponseFor maps any error to a response; non-errx errors become a
// redacted 500.
func ResponseFor(err error) HTTPErrorResponse {
	var e *Error
	if errors.As(err, &e) {
		return e.ToHTTPResponse()
	}
	return New(redactedMessage, TypeInternal).ToHTTPResponse()
}
