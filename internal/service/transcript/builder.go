package transcript

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/realtime-relay/backend/internal/model/transcript"
)

// Result is the structured form of one raw channel payload.
type Result struct {
	ConversationID string                 `json:"conversationId"`
	Utterances     []transcript.Utterance `json:"messages"`
}

// Option customises a Builder.
type Option func(*Builder)

// WithClock overrides the wall clock used to stamp utterances.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides conversation identifier generation.
func WithIDGenerator(newID func() string) Option {
	return func(b *Builder) {
		if newID != nil {
			b.newID = newID
		}
	}
}

// Builder turns newline-delimited provider text into speaker-tagged utterances.
//
// Speakers are assigned by position: the first surviving line is the user, the
// second the assistant, and so on. The provider's own speaker metadata is not
// consulted.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// NewBuilder returns a Builder stamping with time.Now and minting UUIDs.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewConversationID mints a fresh conversation identifier.
func (b *Builder) NewConversationID() string {
	return b.newID()
}

// Parse structures raw under a freshly generated conversation identifier.
// It never fails: input without usable lines yields an empty utterance slice.
func (b *Builder) Parse(raw string) Result {
	return b.Continue(b.NewConversationID(), raw)
}

// Continue structures raw under an existing conversation identifier.
func (b *Builder) Continue(conversationID, raw string) Result {
	lines := strings.Split(raw, "\n")
	stamp := b.now().UTC()

	utterances := make([]transcript.Utterance, 0, len(lines))
	for _, line := range lines {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		utterances = append(utterances, transcript.Utterance{
			Sender:    speakerAt(len(utterances)),
			Message:   text,
			Timestamp: stamp,
		})
	}

	return Result{ConversationID: conversationID, Utterances: utterances}
}

func speakerAt(index int) transcript.Speaker {
	if index%2 == 0 {
		return transcript.SpeakerUser
	}
	return transcript.SpeakerAssistant
}
