package transcript

// Conversation accumulates utterances under an opaque identifier.
type Conversation struct {
	ID       string      `json:"id"`
	Messages []Utterance `json:"messages"`
}
