package realtime

import (
	"context"
	"errors"
	"sync"

	realtimemodel "github.com/zhouzirui/realtime-relay/backend/internal/model/realtime"
	"github.com/zhouzirui/realtime-relay/backend/internal/model/transcript"
)

// callLog records the order of peer and channel operations.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeChannel struct {
	label string
	log   *callLog

	mu      sync.Mutex
	onOpen  func()
	onMsg   func([]byte)
	onClose func()
	onErr   func(error)
	sent    []string
	sendErr error
	closes  int
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) OnOpen(f func()) {
	c.log.add("dc.OnOpen")
	c.mu.Lock()
	c.onOpen = f
	c.mu.Unlock()
}

func (c *fakeChannel) OnMessage(f func([]byte)) {
	c.log.add("dc.OnMessage")
	c.mu.Lock()
	c.onMsg = f
	c.mu.Unlock()
}

func (c *fakeChannel) OnClose(f func()) {
	c.log.add("dc.OnClose")
	c.mu.Lock()
	c.onClose = f
	c.mu.Unlock()
}

func (c *fakeChannel) OnError(f func(error)) {
	c.log.add("dc.OnError")
	c.mu.Lock()
	c.onErr = f
	c.mu.Unlock()
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeChannel) bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onMsg != nil
}

func (c *fakeChannel) open() { c.onOpen() }
func (c *fakeChannel) message(data string) { c.onMsg([]byte(data)) }
func (c *fakeChannel) closed() { c.onClose() }
func (c *fakeChannel) failed(err error) { c.onErr(err) }

func (c *fakeChannel) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakePeer struct {
	log     *callLog
	channel *fakeChannel

	remoteErr error
	answerErr error
	localErr  error

	onRemote func(DataChannel)

	closeMu sync.Mutex
	closed  int
}

func (p *fakePeer) CreateDataChannel(label string) (DataChannel, error) {
	p.log.add("pc.CreateDataChannel")
	p.channel = &fakeChannel{label: label, log: p.log}
	return p.channel, nil
}

func (p *fakePeer) OnDataChannel(f func(DataChannel)) {
	p.log.add("pc.OnDataChannel")
	p.onRemote = f
}

// remote simulates the answering side opening a channel of its own.
func (p *fakePeer) remote(label string) *fakeChannel {
	dc := &fakeChannel{label: label, log: &callLog{}}
	p.onRemote(dc)
	return dc
}

func (p *fakePeer) SetRemoteDescription(offer string) error {
	p.log.add("pc.SetRemoteDescription")
	return p.remoteErr
}

func (p *fakePeer) CreateAnswer() (string, error) {
	p.log.add("pc.CreateAnswer")
	if p.answerErr != nil {
		return "", p.answerErr
	}
	return "local-answer", nil
}

func (p *fakePeer) SetLocalDescription(ctx context.Context, answer string) (string, error) {
	p.log.add("pc.SetLocalDescription")
	if p.localErr != nil {
		return "", p.localErr
	}
	return answer + "+candidates", nil
}

func (p *fakePeer) Close() error {
	p.closeMu.Lock()
	p.closed++
	p.closeMu.Unlock()
	return nil
}

func (p *fakePeer) closeCount() int {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closed
}

type fakeFactory struct {
	log   *callLog
	peers []*fakePeer
	err   error

	// configure lets a test tweak each peer before use.
	configure func(*fakePeer)
}

func (f *fakeFactory) NewPeerConnection() (PeerConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.log.add("factory.NewPeerConnection")
	p := &fakePeer{log: f.log}
	if f.configure != nil {
		f.configure(p)
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) last() *fakePeer {
	return f.peers[len(f.peers)-1]
}

type fakeProvider struct {
	log *callLog

	sessionReq  realtimemodel.SessionRequest
	sessionResp *Payload
	sessionErr  error

	exchangeModel string
	exchangeOffer string
	answer        string
	exchangeErr   error
}

func (p *fakeProvider) CreateSession(ctx context.Context, req realtimemodel.SessionRequest) (*Payload, error) {
	p.sessionReq = req
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	return p.sessionResp, nil
}

func (p *fakeProvider) ExchangeSDP(ctx context.Context, model, offer string) (string, error) {
	if p.log != nil {
		p.log.add("provider.ExchangeSDP")
	}
	p.exchangeModel = model
	p.exchangeOffer = offer
	if p.exchangeErr != nil {
		return "", p.exchangeErr
	}
	return p.answer, nil
}

type appendCall struct {
	conversationID string
	utterances     []transcript.Utterance
}

type fakeSink struct {
	mu    sync.Mutex
	calls []appendCall
	err   error
}

func (s *fakeSink) Append(ctx context.Context, id string, utterances []transcript.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, appendCall{conversationID: id, utterances: utterances})
	return nil
}

func (s *fakeSink) snapshot() []appendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appendCall(nil), s.calls...)
}

var errBoom = errors.New("boom")
