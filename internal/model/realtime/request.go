package realtime

// SessionRequest asks the provider for an ephemeral credential.
type SessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
}

// OfferRequest carries a browser SDP offer to be relayed.
type OfferRequest struct {
	Model string `json:"model"`
	SDP   string `json:"sdp"` // raw offer SDP
}
