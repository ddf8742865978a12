package domain

import "strings"

// SendResult is the outcome of a single channel provider call.
// Exactly one side is populated: Ok carries the provider's message id
// (possibly empty when the provider does not return one), Err carries the failure text.
type SendResult struct {
	ok      bool
	id      string
	message string
}

func SendOk(id string) SendResult {
	return SendResult{ok: true, id: strings.TrimSpace(id)}
}

func SendErr(message string) SendResult {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown provider error"
	}
	return SendResult{message: message}
}

func (r SendResult) IsOk() bool { return r.ok }

// ID returns the provider message id and whether the result is Ok.
func (r SendResult) ID() (string, bool) {
	return r.id, r.ok
}

// Error returns the failure message and whether the result is Err.
func (r SendResult) Error() (string, bool) {
	return r.message, !r.ok
}

// Detail is the text stored in the audit trail for this result.
func (r SendResult) Detail() string {
	if r.ok {
		return r.id
	}
	return r.message
}
