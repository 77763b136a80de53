// Package garden implements the irrigation orchestrator: it owns the program
// document, queues immediate watering requests, drives scheduled triggers
// into that queue, polls the hardware line and accounts every run into the
// CSV log and the notification coalescer.
package garden

import (
	"sync"

	"github.com/gardend/gardend/internal/program"
	"github.com/google/uuid"
)

// Request is one queued watering request, either user-initiated or produced
// by a scheduled trigger.
type Request struct {
	ID    uuid.UUID
	Name  string
	Steps []program.ZoneStep
}

// IsEmpty reports a request with no effective watering time.
func (r Request) IsEmpty() bool {
	for _, s := range r.Steps {
		if s.Minutes > 0 {
			return false
		}
	}
	return true
}

// Minutes returns the total programmed minutes.
func (r Request) Minutes() int {
	total := 0
	for _, s := range r.Steps {
		if s.Minutes > 0 {
			total += s.Minutes
		}
	}
	return total
}

// requestQueue is the FIFO of pending requests. Scheduled triggers and
// manual requests share it with no priority between them.
type requestQueue struct {
	mu    sync.Mutex
	items []Request
}

func (q *requestQueue) Enqueue(r Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, r)
}

// PushFront re-inserts a request at the head, used when hardware programming
// fails after dequeue.
func (q *requestQueue) PushFront(r Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]Request{r}, q.items...)
}

func (q *requestQueue) Dequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Request{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, true
}

func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the pending requests in FIFO order.
func (q *requestQueue) Snapshot() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, len(q.items))
	copy(out, q.items)
	return out
}
