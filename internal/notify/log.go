package notify

import (
	"github.com/rs/zerolog"

	"github.com/bitop-dev/t2i/internal/catalog"
)

// LogSink writes notifications as structured log events. The CLI uses it as
// its only display.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "notify").Logger()}
}

func (s *LogSink) Status(msg string, isError bool) {
	ev := s.log.Info()
	if isError {
		ev = s.log.Warn()
	}
	ev.Str("kind", "status").Msg(msg)
}

func (s *LogSink) ShowError(msg string) {
	s.log.Error().Str("kind", "error_panel").Msg(msg)
}

func (s *LogSink) ClearError() {
	s.log.Debug().Str("kind", "error_panel").Msg("cleared")
}

func (s *LogSink) ModelError(modelID, title, msg string) {
	s.log.Warn().Str("kind", "model_error").Str("model", modelID).Str("title", title).Msg(msg)
}

func (s *LogSink) ClearModelError(modelID string) {
	s.log.Debug().Str("kind", "model_error").Str("model", modelID).Msg("cleared")
}

func (s *LogSink) Suggestions(modelIDs []string) {
	s.log.Info().Str("kind", "suggestions").Strs("models", modelIDs).Msg("try these reliable models instead")
}

func (s *LogSink) ClearSuggestions() {
	s.log.Debug().Str("kind", "suggestions").Msg("cleared")
}

func (s *LogSink) DirectLink(url string) {
	s.log.Warn().Str("kind", "direct_link").Str("url", url).Msg("open the model page and run the prompt there")
}

func (s *LogSink) APIDown(statusURL string) {
	s.log.Error().Str("kind", "api_down").Str("status_url", statusURL).
		Msg("the inference API appears to be unavailable; this is a service issue, not a problem with your setup")
}

func (s *LogSink) CrossOrigin(state CrossOriginState, hint string) {
	s.log.Debug().Str("kind", "cross_origin").Stringer("state", state).Msg(hint)
}

func (s *LogSink) Models(models []catalog.Model, selected int) {
	arr := zerolog.Arr()
	for _, m := range models {
		arr.Str(m.ID + "=" + m.Status.String())
	}
	s.log.Debug().Str("kind", "models").Array("models", arr).Int("selected", selected).Msg("catalog updated")
}

func (s *LogSink) Image(img Image) {
	s.log.Info().Str("kind", "image").Str("handle", img.Handle).Str("format", img.Format).
		Int("width", img.Width).Int("height", img.Height).Int("bytes", len(img.Bytes)).Msg("image ready")
}

var _ Sink = (*LogSink)(nil)
