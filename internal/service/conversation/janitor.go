package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/realtime-relay/backend/internal/metrics"
)

// Janitor periodically evicts conversations idle for longer than ttl.
type Janitor struct {
	store    *Service
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
	done     chan struct{}
	wg       sync.WaitGroup
	start    sync.Once
	stop     sync.Once
}

// NewJanitor builds a janitor; a non-positive ttl makes Start a no-op.
func NewJanitor(store *Service, ttl, interval time.Duration, log zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		store:    store,
		ttl:      ttl,
		interval: interval,
		log:      log.With().Str("component", "conversation-janitor").Logger(),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop once.
func (j *Janitor) Start(ctx context.Context) {
	if j.ttl <= 0 {
		j.log.Debug().Msg("conversation expiry disabled")
		return
	}
	j.start.Do(func() {
		j.wg.Add(1)
		go j.run(ctx)
		j.log.Info().Dur("ttl", j.ttl).Dur("interval", j.interval).Msg("conversation janitor started")
	})
}

// Stop ends the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.stop.Do(func() {
		close(j.done)
		j.wg.Wait()
	})
}

// Sweep evicts every conversation idle since before now-ttl.
func (j *Janitor) Sweep(now time.Time) int {
	if j.ttl <= 0 {
		return 0
	}
	evicted := j.store.Evict(now.Add(-j.ttl))
	if evicted > 0 {
		metrics.ConversationsEvicted.Add(float64(evicted))
		j.log.Info().Int("evicted", evicted).Int("remaining", j.store.Len()).Msg("evicted idle conversations")
	}
	return evicted
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.done:
			return
		case now := <-ticker.C:
			j.Sweep(now)
		}
	}
}
