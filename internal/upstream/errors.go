package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a gateway failure for presentation and recovery hints.
type Kind string

const (
	// KindTimeout marks a call that exceeded the client-side deadline.
	KindTimeout Kind = "TIMEOUT"
	// KindTransport marks a non-2xx HTTP response from the upstream.
	KindTransport Kind = "TRANSPORT"
	// KindLogical marks a 2xx response whose envelope indicates failure.
	KindLogical Kind = "LOGICAL"
	// KindNetwork marks a dial or connection-level failure.
	KindNetwork Kind = "NETWORK"
)

func (k Kind) String() string { return string(k) }

// Error is the gateway's classified failure type.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("upstream %s error", strings.ToLower(string(e.Kind))))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTimeout reports whether the call died on the 30-second client deadline.
func IsTimeout(err error) bool {
	var upstreamErr *Error
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Kind == KindTimeout
	}
	return false
}

// IsLogical reports whether the upstream answered 2xx with a failure envelope.
func IsLogical(err error) bool {
	var upstreamErr *Error
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Kind == KindLogical
	}
	return false
}

// KindOf extracts the classification, defaulting to KindNetwork for
// unclassified transport-level failures.
func KindOf(err error) Kind {
	var upstreamErr *Error
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Kind
	}
	return KindNetwork
}

// classifyRequestError converts a resty transport error into a classified
// Error. Deadline expiry maps to KindTimeout regardless of how the HTTP
// stack reports it.
func classifyRequestError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "upstream call exceeded deadline", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "upstream call exceeded deadline", Cause: err}
	}

	return &Error{Kind: KindNetwork, Message: "upstream request failed", Cause: err}
}
