package llm

import (
	"fmt"
	"strings"
)

// TransportError covers connection failures and request timeouts: the backend
// was never reached, or no complete response arrived in time.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e == nil || e.Err == nil {
		return "llm transport error"
	}
	return "llm transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("llm http %d", e.Code)
	}
	return fmt.Sprintf("llm http %d: %s", e.Code, body)
}

// MalformedResponseError is a 2xx response whose body does not carry
// choices[0].message.content as a string.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		return "llm malformed response"
	}
	return "llm malformed response: " + reason
}
