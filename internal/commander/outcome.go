package commander

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OutcomeKind classifies the terminal result of an async command.
type OutcomeKind int

const (
	// KindSuccess means the remote command ran and reported success.
	KindSuccess OutcomeKind = iota

	// KindRemoteError means the remote command ran and reported failure.
	// The remote message is surfaced verbatim; the command is not retried.
	KindRemoteError

	// KindTimeout means the bounded wait elapsed without a terminal status.
	// The caller may retry with a fresh submission.
	KindTimeout

	// KindSubmissionFailed means the remote job could not be started.
	KindSubmissionFailed

	// KindTransportError means a network or HTTP-stack fault, including a
	// response body that does not match the result schema. Surfaced
	// immediately, never retried inside the client.
	KindTransportError
)

// String returns the metric/log label for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRemoteError:
		return "remote_error"
	case KindTimeout:
		return "timeout"
	case KindSubmissionFailed:
		return "submission_failed"
	case KindTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified terminal result of one async command. Exactly
// one kind applies; callers switch on Kind instead of catching errors.
type Outcome struct {
	Kind OutcomeKind

	// Data is the raw payload from a successful result, if any.
	Data json.RawMessage

	// Message is the remote output or error text, joined to one string.
	Message string

	// HTTPStatus is set for SubmissionFailed and for RemoteError outcomes
	// produced by an HTTP 400 poll response.
	HTTPStatus int

	// Err holds the underlying fault for TransportError outcomes.
	Err error
}

// OK reports whether the command completed successfully.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// ErrorText returns a human-readable description of a failed outcome.
func (o Outcome) ErrorText() string {
	switch o.Kind {
	case KindSuccess:
		return ""
	case KindRemoteError:
		if o.Message != "" {
			return o.Message
		}
		return "command execution failed"
	case KindTimeout:
		return "command timed out"
	case KindSubmissionFailed:
		return fmt.Sprintf("failed to submit command: HTTP %d", o.HTTPStatus)
	case KindTransportError:
		if o.Err != nil {
			return o.Err.Error()
		}
		return "transport error"
	default:
		return "unknown outcome"
	}
}

const (
	statusPending = "pending"
	statusRunning = "running"
	statusSuccess = "success"
	statusError   = "error"
)

// resultEnvelope is the schema of GET /result/{request_id} bodies. Parsing
// is strict: a body that does not match fails closed as a transport-class
// fault rather than silently defaulting.
type resultEnvelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message Lines           `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// errorText returns the error description of a failed envelope, preferring
// the explicit error field over the message output.
func (e resultEnvelope) errorText() string {
	if e.Error != "" {
		return e.Error
	}
	if text := e.Message.Join(); text != "" {
		return text
	}
	return "unknown error"
}

// Lines holds remote command output, which the service emits either as a
// single string or as a list of strings.
type Lines []string

// UnmarshalJSON accepts a JSON string, array of strings, or null. Any other
// shape is an error.
func (l *Lines) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("message list: %w", err)
		}
		*l = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	*l = Lines{s}
	return nil
}

// Join returns the output as a single newline-joined string.
func (l Lines) Join() string {
	return strings.Join(l, "\n")
}
