// Package result is the uniform success/error wrapper returned by every
// FTP endpoint.
package result

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the body of every FTP API response.
type Envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Success wraps payload, which may be nil.
func Success(payload any) Envelope {
	return Envelope{Status: StatusSuccess, Data: payload}
}

// Error reports a failure by its stable code.
func Error(code string) Envelope {
	return Envelope{Status: StatusError, Code: code}
}

// WithDetail attaches a human-readable message to an error envelope.
func (e Envelope) WithDetail(detail string) Envelope {
	e.Detail = detail
	return e
}

// OK reports whether e is a success envelope.
func (e Envelope) OK() bool {
	return e.Status == StatusSuccess
}
