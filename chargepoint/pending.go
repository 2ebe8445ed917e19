package chargepoint

import (
	"sync"
	"time"

	"vcpsim/ocpp"
)

// DefaultCallTimeout is how long an outbound call may stay unanswered before
// its table entry is evicted.
const DefaultCallTimeout = 120 * time.Second

type callOutcome struct {
	response ocpp.Response
	err      error
}

type pendingCall struct {
	action  string
	request ocpp.Request
	outcome chan callOutcome
	timer   *time.Timer
}

// pendingTable correlates outbound message ids with their awaiters. Each
// entry carries its own eviction timer so a silent central system cannot grow
// the table without bound.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingCall
	timeout time.Duration
}

func newPendingTable(timeout time.Duration) *pendingTable {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &pendingTable{
		entries: make(map[string]*pendingCall),
		timeout: timeout,
	}
}

func (t *pendingTable) add(uniqueId, action string, request ocpp.Request) *pendingCall {
	pc := &pendingCall{
		action:  action,
		request: request,
		outcome: make(chan callOutcome, 1),
	}
	t.mu.Lock()
	t.entries[uniqueId] = pc
	t.mu.Unlock()
	pc.timer = time.AfterFunc(t.timeout, func() {
		if evicted, ok := t.take(uniqueId); ok {
			evicted.outcome <- callOutcome{err: ErrCallTimeout}
		}
	})
	return pc
}

func (t *pendingTable) take(uniqueId string) (*pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pc, ok := t.entries[uniqueId]
	if !ok {
		return nil, false
	}
	delete(t.entries, uniqueId)
	if pc.timer != nil {
		pc.timer.Stop()
	}
	return pc, true
}

func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingCall)
	t.mu.Unlock()
	for _, pc := range entries {
		if pc.timer != nil {
			pc.timer.Stop()
		}
		pc.outcome <- callOutcome{err: err}
	}
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
