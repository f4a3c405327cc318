package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zhouzirui/realtime-relay/backend/internal/model/transcript"
)

var (
	ErrConversationIDRequired = errors.New("conversation id is required")
	ErrConversationNotFound   = errors.New("conversation not found")
)

// subscriberBuffer bounds how far a live feed may lag before it is dropped.
const subscriberBuffer = 64

type record struct {
	messages  []transcript.Utterance
	updatedAt time.Time
}

// Service is the append-only conversation store shared by every session.
//
// The map is guarded by an RWMutex because channel callbacks and HTTP
// handlers run on separate goroutines. Appends to one id are serialized by
// the lock, so the order in which a caller appends is the order readers see.
type Service struct {
	mu          sync.RWMutex
	records     map[string]*record
	subscribers map[string]map[int]chan transcript.Utterance
	nextSubID   int
	now         func() time.Time
}

// NewService returns an empty, unbounded in-memory store.
func NewService() *Service {
	return &Service{
		records:     make(map[string]*record),
		subscribers: make(map[string]map[int]chan transcript.Utterance),
		now:         time.Now,
	}
}

// Append concatenates utterances onto the conversation, creating it on first use.
// An empty batch is a no-op and does not create a record.
func (s *Service) Append(_ context.Context, conversationID string, utterances []transcript.Utterance) error {
	if conversationID == "" {
		return ErrConversationIDRequired
	}
	if len(utterances) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[conversationID]
	if !ok {
		rec = &record{messages: make([]transcript.Utterance, 0, len(utterances))}
		s.records[conversationID] = rec
	}
	rec.messages = append(rec.messages, utterances...)
	rec.updatedAt = s.now()

	s.publishLocked(conversationID, utterances)
	return nil
}

// Get returns a copy of the conversation or ErrConversationNotFound.
func (s *Service) Get(_ context.Context, conversationID string) (transcript.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[conversationID]
	if !ok {
		return transcript.Conversation{}, ErrConversationNotFound
	}

	copied := make([]transcript.Utterance, len(rec.messages))
	copy(copied, rec.messages)
	return transcript.Conversation{ID: conversationID, Messages: copied}, nil
}

// Len reports how many conversations are held.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Subscribe streams utterances appended to conversationID after the call.
// The returned channel is closed by cancel, or by the store when the
// subscriber falls more than subscriberBuffer utterances behind.
func (s *Service) Subscribe(conversationID string) (<-chan transcript.Utterance, func()) {
	ch := make(chan transcript.Utterance, subscriberBuffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	subs, ok := s.subscribers[conversationID]
	if !ok {
		subs = make(map[int]chan transcript.Utterance)
		s.subscribers[conversationID] = subs
	}
	subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.dropSubscriberLocked(conversationID, id)
		})
	}
	return ch, cancel
}

// Evict removes conversations not appended to since cutoff and returns how many went.
func (s *Service) Evict(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, rec := range s.records {
		if rec.updatedAt.Before(cutoff) {
			delete(s.records, id)
			for subID := range s.subscribers[id] {
				s.dropSubscriberLocked(id, subID)
			}
			evicted++
		}
	}
	return evicted
}

func (s *Service) publishLocked(conversationID string, utterances []transcript.Utterance) {
	for subID, ch := range s.subscribers[conversationID] {
		for _, u := range utterances {
			select {
			case ch <- u:
			default:
				s.dropSubscriberLocked(conversationID, subID)
			}
			if _, live := s.subscribers[conversationID][subID]; !live {
				break
			}
		}
	}
}

func (s *Service) dropSubscriberLocked(conversationID string, subID int) {
	subs, ok := s.subscribers[conversationID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	close(ch)
	delete(subs, subID)
	if len(subs) == 0 {
		delete(s.subscribers, conversationID)
	}
}
