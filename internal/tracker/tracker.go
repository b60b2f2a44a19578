// Package tracker aggregates the settlement of a fixed number of concurrent
// loads into a single completion signal.
//
// A Tracker is created with the number of loads it waits for. Each load
// settles exactly once, successfully or not, and the settlement that brings
// the outstanding count to zero fires the completion callback. The callback
// runs at most once no matter how many goroutines settle concurrently, and
// the count never goes below zero.
package tracker

import (
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/dataimport/internal/module"
	"github.com/Iron-Ham/dataimport/internal/request"
)

// Settlement is the outcome of one load.
type Settlement struct {
	Key    request.Key
	URI    string
	Name   string        // Display name; empty on failure
	Module module.Module // Nil on failure
	Err    error         // Nil on success
}

// Failed reports whether the load settled with an error.
func (s Settlement) Failed() bool {
	return s.Err != nil
}

// Tracker counts outstanding loads.
type Tracker struct {
	total     int
	remaining atomic.Int64
	failed    atomic.Int64
	onDone    func(Settlement)
	once      sync.Once
	done      chan struct{}
	last      Settlement
}

// New creates a Tracker waiting for total settlements. onDone may be nil.
// A Tracker with nothing to wait for completes immediately, calling onDone
// with a zero Settlement before New returns.
func New(total int, onDone func(Settlement)) *Tracker {
	if total < 0 {
		total = 0
	}
	t := &Tracker{
		total:  total,
		onDone: onDone,
		done:   make(chan struct{}),
	}
	t.remaining.Store(int64(total))
	if total == 0 {
		t.complete(Settlement{})
	}
	return t
}

// Settle records one settlement. It returns true for the call that completed
// the tracker. Settlements after completion are ignored.
func (t *Tracker) Settle(s Settlement) bool {
	for {
		n := t.remaining.Load()
		if n <= 0 {
			return false
		}
		if t.remaining.CompareAndSwap(n, n-1) {
			if s.Failed() {
				t.failed.Add(1)
			}
			if n == 1 {
				t.complete(s)
				return true
			}
			return false
		}
	}
}

func (t *Tracker) complete(s Settlement) {
	t.once.Do(func() {
		t.last = s
		if t.onDone != nil {
			t.onDone(s)
		}
		close(t.done)
	})
}

// Remaining returns the number of outstanding settlements.
func (t *Tracker) Remaining() int {
	return int(t.remaining.Load())
}

// Total returns the number of settlements the tracker was created with.
func (t *Tracker) Total() int {
	return t.total
}

// Failed returns the number of settlements that carried an error.
func (t *Tracker) Failed() int {
	return int(t.failed.Load())
}

// Done returns a channel closed once the tracker completes, after onDone has
// returned.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Last returns the settlement that completed the tracker. It is only
// meaningful once Done is closed.
func (t *Tracker) Last() Settlement {
	<-t.done
	return t.last
}
