// Package notify defines the user-facing reporting surface: status line,
// error panel, per-model error panels, suggestions, the direct-access link,
// the outage advisory and image display.
package notify

import (
	"github.com/bitop-dev/t2i/internal/catalog"
)

type CrossOriginState int

const (
	CrossOriginUncertain CrossOriginState = iota
	CrossOriginDetected
	CrossOriginNotDetected
)

func (s CrossOriginState) String() string {
	switch s {
	case CrossOriginDetected:
		return "detected"
	case CrossOriginNotDetected:
		return "not_detected"
	default:
		return "uncertain"
	}
}

// Image is a decoded generation result. Handle identifies it to the display
// side for as long as the display keeps it.
type Image struct {
	Handle    string
	Bytes     []byte
	MediaType string
	Format    string
	Width     int
	Height    int
}

// Sink receives everything the core wants shown to the user. Calls may come
// from several goroutines.
type Sink interface {
	Status(msg string, isError bool)
	ShowError(msg string)
	ClearError()

	ModelError(modelID, title, msg string)
	ClearModelError(modelID string)
	Suggestions(modelIDs []string)
	ClearSuggestions()

	DirectLink(url string)
	APIDown(statusURL string)
	CrossOrigin(state CrossOriginState, hint string)

	Models(models []catalog.Model, selected int)
	Image(img Image)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Status(string, bool) {}
func (Discard) ShowError(string) {}
func (Discard) ClearError() {}
func (Discard) ModelError(string, string, string) {}
func (Discard) ClearModelError(string) {}
func (Discard) Suggestions([]string) {}
func (Discard) ClearSuggestions() {}
func (Discard) DirectLink(string) {}
func (Discard) APIDown(string) {}
func (Discard) CrossOrigin(CrossOriginState, string) {}
func (Discard) Models([]catalog.Model, int) {}
func (Discard) Image(Image) {}

var _ Sink = Discard{}
