package transcript

import "time"

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerUser      Speaker = "User"
	SpeakerAssistant Speaker = "Assistant"
)

// Utterance is one speaker-tagged line of a reconstructed transcript.
type Utterance struct {
	Sender    Speaker   `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
