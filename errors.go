package t2i

import (
	"context"
	"errors"
)

// Kind is why a generation ended without an image.
type Kind string

const (
	KindNoCredential         Kind = "no_credential"
	KindNoPrompt             Kind = "no_prompt"
	KindAlreadyInFlight      Kind = "already_in_flight"
	KindModelUnavailable     Kind = "model_unavailable"
	KindCrossOriginBlocked   Kind = "cross_origin_blocked"
	KindServerErrorExhausted Kind = "server_error_exhausted"
	KindModelLoading         Kind = "model_loading"
	KindInvalidCredential    Kind = "invalid_credential"
	KindAPIReportedError     Kind = "api_reported_error"
	KindUnclassified         Kind = "unclassified"
)

type Error struct {
	Kind    Kind
	Model   string
	Status  int
	Message string
	// Link is a page the user can open directly when the browser-style
	// request was blocked.
	Link  string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Model != "" && e.Message != "" {
		return e.Model + ": " + e.Message
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return string(e.Kind)
	}
	return "error"
}

func (e *Error) Unwrap() error { return e.Cause }

func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func IsAuth(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Kind == KindInvalidCredential || e.Kind == KindNoCredential || e.Status == 401 || e.Status == 403)
}

func IsCrossOrigin(err error) bool { return IsKind(err, KindCrossOriginBlocked) }

func IsLoading(err error) bool {
	var e *Error
	return errors.As(err, &e) && (e.Kind == KindModelLoading || e.Status == 503)
}

func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
