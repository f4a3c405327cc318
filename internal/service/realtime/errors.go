package realtime

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrOfferRequired       = errors.New("sdp offer is required")
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrIllegalTransition   = errors.New("illegal session state transition")
	ErrDuplicateSession    = errors.New("session id already registered")
)

// ProviderError is a non-success response from the provider, kept verbatim.
type ProviderError struct {
	Operation   string
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed with status %d: %s", e.Operation, e.StatusCode, truncate(string(e.Body), 200))
}

// NegotiationError is a failure while building the local peer connection.
type NegotiationError struct {
	Step string
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("local negotiation failed at %s: %v", e.Step, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

// truncate caps s at n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
