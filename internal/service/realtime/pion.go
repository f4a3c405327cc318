package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// PionFactory builds peer connections backed by pion/webrtc.
type PionFactory struct {
	config webrtc.Configuration
}

// NewPionFactory returns a factory using the given STUN/TURN URLs.
func NewPionFactory(iceServers []string) *PionFactory {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &PionFactory{config: cfg}
}

// NewPeerConnection implements PeerFactory.
func (f *PionFactory) NewPeerConnection() (PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) CreateDataChannel(label string) (DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	return &pionChannel{dc: dc}, nil
}

func (p *pionPeer) OnDataChannel(f func(DataChannel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		f(&pionChannel{dc: dc})
	})
}

func (p *pionPeer) SetRemoteDescription(offerSDP string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	})
}

func (p *pionPeer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (p *pionPeer) SetLocalDescription(ctx context.Context, answerSDP string) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)

	err := p.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	})
	if err != nil {
		return "", err
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description unavailable")
	}
	return local.SDP, nil
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (c *pionChannel) Label() string { return c.dc.Label() }

func (c *pionChannel) OnOpen(f func()) { c.dc.OnOpen(f) }

func (c *pionChannel) OnMessage(f func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f(msg.Data)
	})
}

func (c *pionChannel) OnClose(f func()) { c.dc.OnClose(f) }

func (c *pionChannel) OnError(f func(err error)) { c.dc.OnError(f) }

func (c *pionChannel) SendText(text string) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("data channel %q not open", c.dc.Label())
	}
	return c.dc.SendText(text)
}

func (c *pionChannel) Close() error { return c.dc.Close() }
