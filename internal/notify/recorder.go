package notify

import (
	"sync"

	"github.com/bitop-dev/t2i/internal/catalog"
)

type Event struct {
	Kind    string
	Message string
	IsError bool
	ModelID string
	URL     string
	State   CrossOriginState
	Models  []catalog.Model
	Image   *Image
}

// Recorder keeps every notification in order. Tests and embedders that poll
// for state use it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of one kind, oldest first.
func (r *Recorder) OfKind(kind string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the newest event of kind.
func (r *Recorder) Last(kind string) (Event, bool) {
	evs := r.OfKind(kind)
	if len(evs) == 0 {
		return Event{}, false
	}
	return evs[len(evs)-1], true
}

func (r *Recorder) Status(msg string, isError bool) {
	r.add(Event{Kind: "status", Message: msg, IsError: isError})
}
func (r *Recorder) ShowError(msg string) { r.add(Event{Kind: "error", Message: msg, IsError: true}) }
func (r *Recorder) ClearError() { r.add(Event{Kind: "clear_error"}) }
func (r *Recorder) ModelError(modelID, title, msg string) {
	r.add(Event{Kind: "model_error", ModelID: modelID, Message: title + ": " + msg, IsError: true})
}
func (r *Recorder) ClearModelError(modelID string) {
	r.add(Event{Kind: "clear_model_error", ModelID: modelID})
}
func (r *Recorder) Suggestions(modelIDs []string) {
	r.add(Event{Kind: "suggestions", Models: idsToModels(modelIDs)})
}
func (r *Recorder) ClearSuggestions() { r.add(Event{Kind: "clear_suggestions"}) }
func (r *Recorder) DirectLink(url string) { r.add(Event{Kind: "direct_link", URL: url}) }
func (r *Recorder) APIDown(statusURL string) {
	r.add(Event{Kind: "api_down", URL: statusURL, IsError: true})
}
func (r *Recorder) CrossOrigin(state CrossOriginState, hint string) {
	r.add(Event{Kind: "cross_origin", State: state, Message: hint})
}
func (r *Recorder) Models(models []catalog.Model, selected int) {
	r.add(Event{Kind: "models", Models: append([]catalog.Model(nil), models...), Message: models[selected].ID})
}
func (r *Recorder) Image(img Image) { r.add(Event{Kind: "image", Image: &img}) }

func idsToModels(ids []string) []catalog.Model {
	out := make([]catalog.Model, len(ids))
	for i, id := range ids {
		out[i] = catalog.Model{ID: id}
	}
	return out
}

var _ Sink = (*Recorder)(nil)
