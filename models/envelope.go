package models

// ErrorInfo carries the error portion of a response envelope.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ResponseEnvelope is the uniform wire structure returned by every gateway
// operation. Status reports whether the call succeeded; Error.Code is only
// non-zero when Status is false.
type ResponseEnvelope struct {
	Status   bool           `json:"status"`
	Error    ErrorInfo      `json:"error"`
	Response map[string]any `json:"response"`
}

// NewEnvelope returns an envelope in its initial state: failed, error code 0,
// empty response payload.
func NewEnvelope() *ResponseEnvelope {
	return &ResponseEnvelope{
		Response: map[string]any{},
	}
}

// SetOK marks the envelope successful and stores the response payload.
func (e *ResponseEnvelope) SetOK(response map[string]any) {
	e.Status = true
	e.Error = ErrorInfo{}
	if response != nil {
		e.Response = response
	}
}

// SetError marks the envelope failed with the given code and message.
func (e *ResponseEnvelope) SetError(code int, message string) {
	e.Status = false
	e.Error = ErrorInfo{Code: code, Message: message}
}
