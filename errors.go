package edgedash

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrAlreadyInitialized is returned by [Init] when the process-wide registry
// already exists.
var ErrAlreadyInitialized = errors.New("edgedash: registry already initialized")

// FailureKind classifies why a refresh failed. All kinds are handled the same
// way by the stores; the kind is kept for logs, metrics and callers that want
// to tell them apart.
type FailureKind int

const (
	// TransportFailure covers unreachable hosts, DNS errors and timeouts.
	TransportFailure FailureKind = iota + 1

	// StatusFailure is any non-2xx response, regardless of body.
	StatusFailure

	// ParseFailure is a 2xx response whose body could not be decoded, or an
	// extractor that panicked.
	ParseFailure
)

// String returns a short label for the kind.
func (k FailureKind) String() string {
	switch k {
	case TransportFailure:
		return "transport"
	case StatusFailure:
		return "status"
	case ParseFailure:
		return "parse"
	default:
		return "unknown"
	}
}

// FetchError is the error stored in a failed [State].
//
// Its message is what the UI shows: the HTTP status text for status
// failures, the transport error text otherwise.
type FetchError struct {
	Kind       FailureKind
	Resource   string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s failure", e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or [TransportFailure] for errors
// that are not a [*FetchError].
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return TransportFailure
}

// classify wraps err as a [*FetchError] for resource. Errors that already are
// FetchErrors keep their kind; anything else is a transport failure.
func classify(resource string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		if fe.Resource == "" {
			cp := *fe
			cp.Resource = resource
			return &cp
		}
		return fe
	}
	return &FetchError{Kind: TransportFailure, Resource: resource, Err: err}
}

func statusError(statusCode int, statusText string) *FetchError {
	msg := statusText
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", statusCode)
	}
	return &FetchError{Kind: StatusFailure, StatusCode: statusCode, Message: msg}
}

// maxDecodeMessage bounds the decoder detail shown to users. The full error
// stays available through Unwrap and is logged.
const maxDecodeMessage = 120

func parseError(err error) *FetchError {
	return &FetchError{Kind: ParseFailure, Message: "invalid response body: " + decodeSummary(err), Err: err}
}

// decodeSummary shortens a decoder error to its first line, without the
// excerpts of the raw body that jsoniter appends.
func decodeSummary(err error) string {
	var msg string
	var me *mapstructure.Error
	if errors.As(err, &me) && len(me.Errors) > 0 {
		msg = me.Errors[0]
		if n := len(me.Errors) - 1; n > 0 {
			msg += fmt.Sprintf(" (and %d more)", n)
		}
	} else {
		msg = err.Error()
		const marker = ", error found in #"
		if i := strings.Index(msg, marker); i >= 0 {
			offset := msg[i+len(marker):]
			msg = msg[:i]
			if j := strings.Index(offset, " byte"); j > 0 {
				msg += " at byte " + offset[:j]
			}
		}
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
	}
	if r := []rune(msg); len(r) > maxDecodeMessage {
		msg = string(r[:maxDecodeMessage]) + "..."
	}
	return msg
}
