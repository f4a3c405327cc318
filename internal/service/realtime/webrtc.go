package realtime

import "context"

// DataChannel is the ordered, bidirectional event stream of a peer connection.
// Handlers must be registered before the description exchange starts.
type DataChannel interface {
	Label() string
	OnOpen(func())
	OnMessage(func(data []byte))
	OnClose(func())
	OnError(func(err error))
	SendText(text string) error
	Close() error
}

// PeerConnection is the subset of a WebRTC peer connection the negotiator drives.
type PeerConnection interface {
	CreateDataChannel(label string) (DataChannel, error)
	// OnDataChannel is called for each channel the remote peer opens.
	OnDataChannel(func(DataChannel))
	SetRemoteDescription(offerSDP string) error
	CreateAnswer() (string, error)
	// SetLocalDescription applies the answer and returns the local description
	// once candidate gathering has finished.
	SetLocalDescription(ctx context.Context, answerSDP string) (string, error)
	Close() error
}

// PeerFactory creates peer connections.
type PeerFactory interface {
	NewPeerConnection() (PeerConnection, error)
}
