package orchestrator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, sub *Subscriber, n int) []Event {
	t.Helper()
	var events []Event
	for len(events) < n {
		select {
		case e, ok := <-sub.Events():
			require.True(t, ok, "channel closed after %d events", len(events))
			events = append(events, e)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", len(events))
		}
	}
	return events
}

func TestBroadcasterAssignsMonotonicSeq(t *testing.T) {
	b := NewBroadcaster("sq1", zerolog.Nop())
	defer b.Close()

	sub := b.Subscribe(8)
	defer sub.Close()

	b.Publish(EventNewMessage, "one")
	b.Publish(EventVoteCast, "two")
	b.Publish(EventContextUpdated, "three")

	events := collect(t, sub, 3)
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, uint64(2), events[1].Seq)
	assert.Equal(t, uint64(3), events[2].Seq)
	assert.Equal(t, "sq1", events[0].SquadID)
	assert.Equal(t, EventVoteCast, events[1].Type)
}

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster("sq1", zerolog.Nop())
	defer b.Close()

	first := b.Subscribe(4)
	second := b.Subscribe(4)
	defer first.Close()
	defer second.Close()

	b.Publish(EventMemberJoined, "alice")

	assert.Equal(t, EventMemberJoined, collect(t, first, 1)[0].Type)
	assert.Equal(t, EventMemberJoined, collect(t, second, 1)[0].Type)
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster("sq1", zerolog.Nop())
	defer b.Close()

	slow := b.Subscribe(1)
	healthy := b.Subscribe(8)
	defer healthy.Close()

	// Second publish overflows the slow buffer; the subscriber is cut
	// loose instead of stalling the squad.
	b.Publish(EventNewMessage, "one")
	b.Publish(EventNewMessage, "two")
	b.Publish(EventNewMessage, "three")

	events := collect(t, healthy, 3)
	assert.Len(t, events, 3)

	drained := 0
	for range slow.Events() {
		drained++
	}
	assert.Equal(t, 1, drained, "slow subscriber keeps only what fit before the drop")
}

func TestBroadcasterCloseClosesSubscribers(t *testing.T) {
	b := NewBroadcaster("sq1", zerolog.Nop())
	sub := b.Subscribe(4)

	b.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after close is a no-op, not a panic.
	b.Publish(EventNewMessage, "late")

	// Subscribing after close yields an already-closed channel.
	late := b.Subscribe(4)
	_, ok = <-late.Events()
	assert.False(t, ok)
}

func TestSubscriberCloseIsIdempotent(t *testing.T) {
	b := NewBroadcaster("sq1", zerolog.Nop())
	defer b.Close()

	sub := b.Subscribe(4)
	sub.Close()
	sub.Close()

	b.Publish(EventNewMessage, "after close")
	_, ok := <-sub.Events()
	assert.False(t, ok)
}
