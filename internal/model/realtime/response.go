package realtime

// SessionDescription mirrors the browser RTCSessionDescriptionInit shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// AnswerResponse is returned by the offer relay endpoint.
type AnswerResponse struct {
	ConversationID string             `json:"conversationId"`
	SDP            SessionDescription `json:"sdp"`
	ProviderSDP    string             `json:"providerSdp,omitempty"`
}
