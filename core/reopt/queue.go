package reopt

import (
	"sync"
	"time"
)

// TriggerKind classifies the disruption that prompted a reoptimization.
type TriggerKind string

const (
	TriggerETAChange    TriggerKind = "eta_change"
	TriggerCancellation TriggerKind = "cancellation"
	TriggerResourceLoss TriggerKind = "resource_loss"
)

// Trigger is one disruption event. ETA changes carry NewETA; resource losses
// carry ResourceID.
type Trigger struct {
	VesselID   string
	Kind       TriggerKind
	NewETA     time.Time
	ResourceID string
	At         time.Time
}

// key groups triggers that should coalesce while debouncing: successive ETA
// updates for one vessel collapse to the latest.
func (t Trigger) key() string {
	if t.Kind == TriggerResourceLoss {
		return "resource:" + t.ResourceID
	}
	return "vessel:" + t.VesselID
}

// queue buffers triggers between arrival and the debounced drain. Later
// triggers for the same key replace earlier ones; a cancellation always wins
// over an ETA update since the vessel is leaving anyway.
type queue struct {
	mu      sync.Mutex
	pending map[string]Trigger
	order   []string
	wake    chan struct{}
}

func newQueue() *queue {
	return &queue{
		pending: make(map[string]Trigger),
		wake:    make(chan struct{}, 1),
	}
}

func (q *queue) push(t Trigger) {
	q.mu.Lock()
	k := t.key()
	if prev, ok := q.pending[k]; ok {
		t = coalesce(prev, t)
	} else {
		q.order = append(q.order, k)
	}
	q.pending[k] = t
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain returns the coalesced triggers in arrival order and resets the queue.
func (q *queue) drain() []Trigger {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Trigger, 0, len(q.order))
	for _, k := range q.order {
		out = append(out, q.pending[k])
	}
	q.pending = make(map[string]Trigger)
	q.order = nil
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func coalesce(prev, next Trigger) Trigger {
	if prev.Kind == TriggerCancellation {
		return prev
	}
	return next
}
