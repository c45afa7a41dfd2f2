package orchestrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a squad state-change event.
type EventType string

const (
	EventNewMessage     EventType = "new_message"
	EventMemberJoined   EventType = "member_joined"
	EventMemberLeft     EventType = "member_left"
	EventCommitProposed EventType = "commit_proposed"
	EventVoteCast       EventType = "vote_cast"
	EventCommitResolved EventType = "commit_resolved"
	EventContextUpdated EventType = "context_updated"
)

// Event is a single squad state change. Seq is assigned under the squad's
// write lock, so it reflects the exact order mutations were applied.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	SquadID   string    `json:"squad_id"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber is one observer's cursor over a squad's event stream. Events
// arrive on a buffered channel owned by the subscriber; a subscriber that
// stops draining is disconnected rather than blocking the mutation path.
type Subscriber struct {
	ch     chan Event
	b      *Broadcaster
	closed bool // guarded by b.mu
}

// Events returns the channel to drain. It is closed when the subscriber
// is dropped or the squad is deleted.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber.
func (s *Subscriber) Close() {
	s.b.unsubscribe(s)
}

// Broadcaster fans out every mutation of one squad to all its observers
// in mutation order.
type Broadcaster struct {
	squadID string
	logger  zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	subs   map[*Subscriber]struct{}
	closed bool
}

// NewBroadcaster creates a broadcaster for one squad.
func NewBroadcaster(squadID string, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		squadID: squadID,
		logger:  logger,
		subs:    make(map[*Subscriber]struct{}),
	}
}

// Subscribe attaches a new observer. buffer bounds how far the observer
// may fall behind before it is dropped.
func (b *Broadcaster) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 256
	}
	sub := &Subscriber{ch: make(chan Event, buffer), b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		sub.closed = true
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *Broadcaster) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
		sub.closed = true
	}
}

// Publish delivers an event to every live subscriber. Callers hold the
// squad's write lock, which makes the seq ordering authoritative. Delivery
// is non-blocking: a full subscriber buffer drops that subscriber only,
// never the mutation.
func (b *Broadcaster) Publish(eventType EventType, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.seq++
	event := Event{
		Seq:       b.seq,
		Type:      eventType,
		SquadID:   b.squadID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn().
				Str("squad_id", b.squadID).
				Str("event", string(eventType)).
				Msg("dropping slow event subscriber")
			delete(b.subs, sub)
			close(sub.ch)
			sub.closed = true
		}
	}
}

// Close drops all subscribers. Used on squad deletion.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
		sub.closed = true
	}
}
