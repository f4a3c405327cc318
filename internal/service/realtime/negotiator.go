package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/realtime-relay/backend/internal/metrics"
	realtimemodel "github.com/zhouzirui/realtime-relay/backend/internal/model/realtime"
	"github.com/zhouzirui/realtime-relay/backend/internal/model/transcript"
	transcriptsvc "github.com/zhouzirui/realtime-relay/backend/internal/service/transcript"
)

// TranscriptSink receives structured utterances for a conversation.
type TranscriptSink interface {
	Append(ctx context.Context, conversationID string, utterances []transcript.Utterance) error
}

// TerminalHook is told when a session reaches Closed or Errored. Whether to
// reconnect is the hook's decision; the negotiator never retries on its own.
type TerminalHook func(info SessionInfo, cause error)

// Settings are the negotiation defaults.
type Settings struct {
	DefaultModel string
	DefaultVoice string
	DataChannel  string
}

// Answer is the outcome of a successful offer/answer exchange.
type Answer struct {
	SessionID      string
	ConversationID string
	SDP            string
	ProviderSDP    string
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithTerminalHook installs a callback for sessions reaching a terminal state.
func WithTerminalHook(hook TerminalHook) Option {
	return func(n *Negotiator) {
		n.onTerminal = hook
	}
}

// WithClock overrides time.Now for activity tracking.
func WithClock(now func() time.Time) Option {
	return func(n *Negotiator) {
		if now != nil {
			n.now = now
		}
	}
}

// Negotiator mints provider credentials, relays SDP offers and owns the
// resulting peer connections for as long as their channels stay open.
type Negotiator struct {
	provider   ProviderClient
	peers      PeerFactory
	builder    *transcriptsvc.Builder
	sink       TranscriptSink
	registry   *Registry
	settings   Settings
	onTerminal TerminalHook
	now        func() time.Time
	log        zerolog.Logger

	reapDone  chan struct{}
	reapWG    sync.WaitGroup
	reapStart sync.Once
	reapStop  sync.Once
}

// NewNegotiator wires the negotiator to its collaborators.
func NewNegotiator(
	provider ProviderClient,
	peers PeerFactory,
	builder *transcriptsvc.Builder,
	sink TranscriptSink,
	registry *Registry,
	settings Settings,
	log zerolog.Logger,
	opts ...Option,
) *Negotiator {
	if settings.DataChannel == "" {
		settings.DataChannel = "oai-events"
	}
	n := &Negotiator{
		provider: provider,
		peers:    peers,
		builder:  builder,
		sink:     sink,
		registry: registry,
		settings: settings,
		now:      time.Now,
		log:      log.With().Str("component", "negotiator").Logger(),
		reapDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CreateEphemeralSession forwards model and voice to the provider and returns
// its response untouched. The server secret is never part of the result.
func (n *Negotiator) CreateEphemeralSession(ctx context.Context, model, voice string) (*Payload, error) {
	req := realtimemodel.SessionRequest{
		Model: n.modelOrDefault(model),
		Voice: n.voiceOrDefault(voice),
	}

	payload, err := n.provider.CreateSession(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.EphemeralSessionsIssued.Inc()
	return payload, nil
}

// Negotiate relays offerSDP to the provider, then answers it locally with a
// peer connection whose event channel feeds the transcript pipeline.
func (n *Negotiator) Negotiate(ctx context.Context, model, offerSDP string) (*Answer, error) {
	if strings.TrimSpace(offerSDP) == "" {
		return nil, ErrOfferRequired
	}
	model = n.modelOrDefault(model)

	providerSDP, err := n.provider.ExchangeSDP(ctx, model, offerSDP)
	if err != nil {
		return nil, err
	}

	sess, localSDP, err := n.answerLocally(ctx, model, offerSDP)
	if err != nil {
		return nil, err
	}

	metrics.SessionsNegotiated.Inc()
	n.log.Info().
		Str("session_id", sess.ID).
		Str("conversation_id", sess.ConversationID).
		Str("model", model).
		Msg("session negotiated")

	return &Answer{
		SessionID:      sess.ID,
		ConversationID: sess.ConversationID,
		SDP:            localSDP,
		ProviderSDP:    providerSDP,
	}, nil
}

// answerLocally builds the peer connection and channel, registers every
// channel handler, including the one adopting channels the remote peer opens,
// and only then runs the description exchange.
func (n *Negotiator) answerLocally(ctx context.Context, model, offerSDP string) (*Session, string, error) {
	pc, err := n.peers.NewPeerConnection()
	if err != nil {
		return nil, "", &NegotiationError{Step: "create peer connection", Err: err}
	}

	dc, err := pc.CreateDataChannel(n.settings.DataChannel)
	if err != nil {
		_ = pc.Close()
		return nil, "", &NegotiationError{Step: "create data channel", Err: err}
	}

	sess := newSession(uuid.NewString(), n.builder.NewConversationID(), model, n.now())
	sess.peer = pc

	n.bind(sess, dc)
	pc.OnDataChannel(func(remote DataChannel) {
		n.adopt(sess, remote)
	})

	if !n.registry.Add(sess) {
		_, _ = sess.transition(StateErrored)
		_ = sess.close()
		return nil, "", &NegotiationError{Step: "register session", Err: ErrDuplicateSession}
	}

	if err := pc.SetRemoteDescription(offerSDP); err != nil {
		return nil, "", n.abort(sess, "set remote description", err)
	}

	answer, err := pc.CreateAnswer()
	if err != nil {
		return nil, "", n.abort(sess, "create answer", err)
	}

	localSDP, err := pc.SetLocalDescription(ctx, answer)
	if err != nil {
		return nil, "", n.abort(sess, "set local description", err)
	}

	return sess, localSDP, nil
}

// adopt binds a channel opened by the remote peer when it carries the event
// channel label. Other channels are left alone.
func (n *Negotiator) adopt(sess *Session, remote DataChannel) {
	log := n.log.With().
		Str("session_id", sess.ID).
		Str("channel", remote.Label()).
		Logger()

	if remote.Label() != n.settings.DataChannel {
		log.Debug().Msg("ignoring remote data channel")
		return
	}
	if !n.bind(sess, remote) {
		log.Debug().Msg("remote data channel arrived after session end")
		_ = remote.Close()
		return
	}
	log.Debug().Msg("remote data channel adopted")
}

// bind attaches dc to sess and registers its handlers. Every bound channel
// feeds the session's conversation, and the first close or error on any of
// them ends the session.
func (n *Negotiator) bind(sess *Session, dc DataChannel) bool {
	if !sess.attach(dc) {
		return false
	}

	log := n.log.With().
		Str("session_id", sess.ID).
		Str("conversation_id", sess.ConversationID).
		Str("channel", dc.Label()).
		Logger()

	dc.OnOpen(func() {
		from, err := sess.transition(StateOpen)
		switch {
		case err == nil:
			metrics.RecordStateTransition(string(from), string(StateOpen))
		case from == StateOpen:
			// a second channel of an already open session
		default:
			log.Warn().Str("state", string(from)).Msg("open event ignored")
			return
		}
		sess.touch(n.now())
		log.Info().Msg("data channel open")
	})

	dc.OnMessage(func(data []byte) {
		n.handleMessage(sess, dc, data, log)
	})

	// Close and error callbacks run on the WebRTC stack's goroutines, so the
	// peer connection is released asynchronously from there.
	dc.OnClose(func() {
		log.Info().Msg("data channel closed")
		n.finish(sess, StateClosed, nil, true)
	})

	dc.OnError(func(err error) {
		log.Error().Err(err).Msg("data channel error")
		n.finish(sess, StateErrored, err, true)
	})
	return true
}

// handleMessage runs parse, append and re-broadcast for one channel message,
// synchronously with respect to that message. The structured utterances go
// back down the channel the message arrived on.
func (n *Negotiator) handleMessage(sess *Session, dc DataChannel, data []byte, log zerolog.Logger) {
	sess.touch(n.now())
	metrics.ChannelMessages.Inc()

	result := n.builder.Continue(sess.ConversationID, string(data))
	if len(result.Utterances) == 0 {
		return
	}

	if err := n.sink.Append(sess.ctx, sess.ConversationID, result.Utterances); err != nil {
		log.Error().Err(err).Msg("failed to append utterances")
		return
	}
	metrics.UtterancesAppended.Add(float64(len(result.Utterances)))

	payload, err := json.Marshal(result.Utterances)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode utterances")
		return
	}
	if err := dc.SendText(string(payload)); err != nil {
		log.Warn().Err(err).Msg("failed to send structured utterances")
	}
}

func (n *Negotiator) abort(sess *Session, step string, cause error) error {
	n.finish(sess, StateErrored, cause, false)
	return &NegotiationError{Step: step, Err: cause}
}

// finish moves sess to a terminal state exactly once, drops it from the
// registry, releases the peer connection and notifies the terminal hook.
func (n *Negotiator) finish(sess *Session, to State, cause error, async bool) {
	from, err := sess.transition(to)
	if err != nil {
		return
	}
	metrics.RecordStateTransition(string(from), string(to))
	n.registry.Remove(sess.ID)

	release := func() {
		if err := sess.close(); err != nil {
			n.log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to close peer connection")
		}
	}
	if async {
		go release()
	} else {
		release()
	}

	if n.onTerminal != nil {
		n.onTerminal(sess.Info(), cause)
	}
}

// ReapIdle closes sessions with no channel activity for longer than idle.
func (n *Negotiator) ReapIdle(now time.Time, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	stale := n.registry.Idle(now.Add(-idle))
	for _, sess := range stale {
		n.log.Info().Str("session_id", sess.ID).Dur("idle", idle).Msg("closing idle session")
		n.finish(sess, StateClosed, nil, false)
	}
	return len(stale)
}

// StartReaper launches the idle reaper; a non-positive idle disables it.
func (n *Negotiator) StartReaper(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	n.reapStart.Do(func() {
		n.reapWG.Add(1)
		go func() {
			defer n.reapWG.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-n.reapDone:
					return
				case now := <-ticker.C:
					n.ReapIdle(now, idle)
				}
			}
		}()
		n.log.Info().Dur("idle_timeout", idle).Msg("session reaper started")
	})
}

// Shutdown stops the reaper and closes every live session.
func (n *Negotiator) Shutdown() {
	n.reapStop.Do(func() {
		close(n.reapDone)
		n.reapWG.Wait()
	})
	for _, sess := range n.registry.All() {
		n.finish(sess, StateClosed, nil, false)
	}
}

func (n *Negotiator) modelOrDefault(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return n.settings.DefaultModel
}

func (n *Negotiator) voiceOrDefault(voice string) string {
	if v := strings.TrimSpace(voice); v != "" {
		return v
	}
	return n.settings.DefaultVoice
}
