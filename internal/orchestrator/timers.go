package orchestrator

import (
	"sync"
	"time"
)

// timerSet tracks the deferred expiry checks for a squad's no-objection
// proposals, keyed by proposal ID. Cancellation on resolve and firing are
// both serialized with the resolution path through the squad's write lock,
// so a late vote and a firing timeout can never both resolve a proposal.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// schedule registers fn to run after d, replacing any existing timer for
// the same proposal.
func (ts *timerSet) schedule(proposalID string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[proposalID]; ok {
		t.Stop()
	}
	ts.timers[proposalID] = time.AfterFunc(d, func() {
		ts.remove(proposalID)
		fn()
	})
}

// cancel stops the timer for a proposal, if one is pending. A timer that
// already fired is a no-op: the expiry handler re-checks proposal status
// under the squad lock.
func (ts *timerSet) cancel(proposalID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[proposalID]; ok {
		t.Stop()
		delete(ts.timers, proposalID)
	}
}

func (ts *timerSet) remove(proposalID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.timers, proposalID)
}

// cancelAll stops every pending timer. Used on squad deletion.
func (ts *timerSet) cancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for id, t := range ts.timers {
		t.Stop()
		delete(ts.timers, id)
	}
}
