package provider

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeNetwork     = "network_error"
	CodeTimeout     = "timeout"
	CodeCanceled    = "canceled"
	CodeCrossOrigin = "cross_origin"
	CodeRequest     = "request_error"
)

// Error is a transport-level failure: no HTTP response was received.
type Error struct {
	Provider  string
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Provider != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: error", e.Provider)
	}
	return "error"
}

func (e *Error) Unwrap() error { return e.Cause }

// crossOriginMarkers are the fragments a blocked cross-origin request puts
// in its error text.
var crossOriginMarkers = []string{"CORS", "cross-origin", "Cross-Origin"}

func HasCrossOriginMarker(msg string) bool {
	for _, m := range crossOriginMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsCrossOrigin reports whether err was caused by a cross-origin restriction.
func IsCrossOrigin(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Code == CodeCrossOrigin {
		return true
	}
	return HasCrossOriginMarker(err.Error())
}
