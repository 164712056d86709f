package services

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when fewer than two blocks are available
// for hashrate estimation.
var ErrInsufficientData = errors.New("insufficient block data for hashrate calculation")

// TransportError is a network or connection failure talking to an upstream.
type TransportError struct {
	Source string // "monerod" or "p2pool"
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is an upstream response that arrived but cannot be used:
// a non-2xx status, a malformed body, or a JSON-RPC error member.
type ProtocolError struct {
	Source     string
	Op         string
	StatusCode int    // HTTP status, 0 when the HTTP exchange succeeded
	Code       int    // JSON-RPC error code, 0 when not an RPC error
	Message    string // upstream-reported message
	Err        error
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Code != 0 || (e.StatusCode == 0 && e.Message != ""):
		return fmt.Sprintf("%s %s: rpc error %d: %s", e.Source, e.Op, e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: http error %d", e.Source, e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
	}
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// isRetryable reports whether a failed call may succeed if attempted again.
func isRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.StatusCode >= 500 || pe.StatusCode == 429
	}
	return false
}
