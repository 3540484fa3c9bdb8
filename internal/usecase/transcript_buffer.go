package usecase

import (
	"strings"

	"tadwir/internal/ports"
)

// transcriptBuffer holds the finalized text of a voice session plus the
// latest interim hypothesis. Final text is only ever appended.
type transcriptBuffer struct {
	final   string
	interim string
}

func (b *transcriptBuffer) Reset() {
	b.final = ""
	b.interim = ""
}

// Apply folds one result batch into the buffer and reports whether the
// visible transcript changed.
func (b *transcriptBuffer) Apply(results []ports.RecognitionResult) bool {
	before := b.Visible()

	var interim strings.Builder
	for _, result := range results {
		if result.IsFinal {
			if text := strings.TrimSpace(result.Text); text != "" {
				b.final += text + " "
			}
			continue
		}
		interim.WriteString(result.Text)
	}
	b.interim = interim.String()

	return b.Visible() != before
}

// Visible is the accumulated final transcript followed by the pending interim.
func (b *transcriptBuffer) Visible() string {
	return b.final + b.interim
}

func consumeRecognitionEvents(sessionID string, session ports.RecognitionSession, deliver func(ports.RecognitionEvent), done chan struct{}) {
	defer close(done)

	for event := range session.Events() {
		event.SessionID = sessionID
		deliver(event)
	}
}
