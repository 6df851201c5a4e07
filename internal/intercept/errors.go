package intercept

import (
	"errors"
	"fmt"
)

// ErrNetworkFailure reports a transport failure with no cached or synthetic
// fallback available.
var ErrNetworkFailure = errors.New("network request failed")

// NetworkError is returned when an API GET fails in transport, misses the
// cache, and matches no offline resource marker.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Method, e.URL, ErrNetworkFailure, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, ErrNetworkFailure)
}

// Unwrap exposes both ErrNetworkFailure and the transport error to errors.Is/As.
func (e *NetworkError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNetworkFailure}
	}
	return []error{ErrNetworkFailure, e.Err}
}

// IsNetworkFailure reports whether err is (or wraps) ErrNetworkFailure.
func IsNetworkFailure(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}
