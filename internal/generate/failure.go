package generate

import (
	"fmt"
	"strings"
)

// Kind is why a generation ended without an image.
type Kind int

const (
	KindUnclassified Kind = iota
	KindNoCredential
	KindNoPrompt
	KindAlreadyInFlight
	KindModelUnavailable
	KindCrossOriginBlocked
	KindServerErrorExhausted
	KindModelLoading
	KindInvalidCredential
	KindAPIReportedError
)

func (k Kind) String() string {
	switch k {
	case KindNoCredential:
		return "no_credential"
	case KindNoPrompt:
		return "no_prompt"
	case KindAlreadyInFlight:
		return "already_in_flight"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindCrossOriginBlocked:
		return "cross_origin_blocked"
	case KindServerErrorExhausted:
		return "server_error_exhausted"
	case KindModelLoading:
		return "model_loading"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindAPIReportedError:
		return "api_reported_error"
	default:
		return "unclassified"
	}
}

// Failure is the terminal reason of a generation that produced no image.
type Failure struct {
	Kind    Kind
	Model   string
	Message string
	// Status is the last HTTP status seen, 0 when no response arrived.
	Status int
	// Link is the direct-access page offered with KindCrossOriginBlocked.
	Link  string
	Cause error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Message != "" {
		return f.Message
	}
	return f.Kind.String()
}

func (f *Failure) Unwrap() error { return f.Cause }

// Advice is the text for the error panel.
func (f *Failure) Advice() string {
	switch f.Kind {
	case KindCrossOriginBlocked:
		return "CORS error detected. Check that your CORS extension is enabled and properly configured. Try toggling it off and on, then try again."
	case KindInvalidCredential:
		return "API token invalid or expired. Please re-enter your Hugging Face API token."
	case KindModelLoading:
		return f.Message
	case KindNoCredential, KindNoPrompt, KindAlreadyInFlight:
		return f.Message
	}
	if SuggestsOutage(f) {
		return "Hugging Face API appears to be down. This is a service issue, not a problem with your setup."
	}
	return fmt.Sprintf("Error: %s", f.Message)
}

var outagePatterns = []string{
	"Failed to fetch",
	"NetworkError",
	"Server error",
	"connection refused",
	"no such host",
	"network is unreachable",
}

// SuggestsOutage reports whether f looks like the service itself is down
// rather than anything the user can fix.
func SuggestsOutage(f *Failure) bool {
	if f == nil {
		return false
	}
	switch f.Kind {
	case KindServerErrorExhausted:
		return true
	case KindUnclassified:
		for _, p := range outagePatterns {
			if strings.Contains(f.Message, p) {
				return true
			}
		}
	}
	return false
}
