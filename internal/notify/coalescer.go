// Package notify batches run notifications so users are not messaged once
// per cycle. Finished and suspended notices accumulate until either no more
// activity is expected soon, or a safety timer forces the batch out.
package notify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/metrics"
	"github.com/gardend/gardend/internal/program"
)

// The flush thresholds come from the field-tuned behavior of the original
// controller: batch while more cycles are expected within flushHorizon, but
// never hold a batch longer than safetyDelay.
const (
	flushHorizon = 65 * time.Minute
	safetyDelay  = 66 * time.Minute
)

// Sender delivers a composed notification. Fire and forget: delivery errors
// are the sender's own business.
type Sender interface {
	Send(title, body string)
}

// Source reports scheduling pressure, used to decide between flushing now
// and deferring.
type Source interface {
	// NextScheduled returns the next scheduled trigger instant, if any.
	NextScheduled(now time.Time) (time.Time, bool)
	// Busy reports whether a run is in progress or queued.
	Busy() bool
}

// Entry is one buffered notice.
type Entry struct {
	Name      string
	Suspended bool
	// Executed notices carry the run totals and per-step breakdown.
	Liters  float64
	Minutes int
	Results []program.ZoneResult
}

// Coalescer accumulates notices and flushes them as a single message.
type Coalescer struct {
	logger  *logger.Logger
	sender  Sender
	source  Source
	metrics *metrics.Metrics
	title   string
	header  string
	// zoneNames renders a zone index list for display.
	zoneNames func([]int) string

	flushHorizon time.Duration
	safetyDelay  time.Duration

	mu     sync.Mutex
	queue  []Entry
	safety *time.Timer
}

// NewCoalescer creates a coalescer delivering through sender and consulting
// source for the flush decision.
func NewCoalescer(log *logger.Logger, sender Sender, source Source, m *metrics.Metrics, zoneNames func([]int) string) *Coalescer {
	return &Coalescer{
		logger:       log,
		sender:       sender,
		source:       source,
		metrics:      m,
		title:        "Garden watered",
		header:       "Completed cycles:",
		zoneNames:    zoneNames,
		flushHorizon: flushHorizon,
		safetyDelay:  safetyDelay,
	}
}

// AddExecuted buffers a finished-run notice and runs the flush decision.
func (c *Coalescer) AddExecuted(name string, liters float64, minutes int, results []program.ZoneResult) {
	c.add(Entry{Name: name, Liters: liters, Minutes: minutes, Results: results})
}

// AddSuspended buffers a suspended-cycle reminder and runs the flush decision.
func (c *Coalescer) AddSuspended(name string) {
	c.add(Entry{Name: name, Suspended: true})
}

func (c *Coalescer) add(e Entry) {
	c.mu.Lock()
	c.queue = append(c.queue, e)
	c.mu.Unlock()
	c.check(time.Now())
}

// check flushes immediately when no further cycle is expected within
// flushHorizon and nothing is running or queued. Otherwise it re-arms the
// single safety timer so the batch never waits longer than safetyDelay past
// the latest entry.
func (c *Coalescer) check(now time.Time) {
	next, ok := c.source.NextScheduled(now)
	if (!ok || next.After(now.Add(c.flushHorizon))) && !c.source.Busy() {
		c.Flush()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.safety != nil {
		c.safety.Stop()
	}
	c.safety = time.AfterFunc(c.safetyDelay, c.Flush)
	c.metrics.Notifications.WithLabelValues("deferred").Inc()
	c.logger.Debug("notification deferred",
		logger.Field{Key: "queued", Value: len(c.queue)})
}

// Flush sends all buffered notices as one message and clears the buffer and
// any pending safety timer. A flush with an empty buffer is a no-op.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if c.safety != nil {
		c.safety.Stop()
		c.safety = nil
	}
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	entries := c.queue
	c.queue = nil
	c.mu.Unlock()

	body := c.render(entries)
	c.sender.Send(c.title, body)
	c.metrics.Notifications.WithLabelValues("sent").Inc()
	c.logger.Info("notification sent",
		logger.Field{Key: "entries", Value: len(entries)})
}

// Stop cancels a pending safety timer without flushing.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.safety != nil {
		c.safety.Stop()
		c.safety = nil
	}
}

// Pending returns the number of buffered notices.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Coalescer) render(entries []Entry) string {
	lines := []string{c.header}
	for _, e := range entries {
		if e.Suspended {
			lines = append(lines, fmt.Sprintf("%s: cycle suspended", e.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %d min (%.0f L)", e.Name, e.Minutes, e.Liters))
		for _, r := range e.Results {
			lines = append(lines, fmt.Sprintf("  %s: %d min (%d L)", c.zoneNames(r.Zones), r.Minutes, r.QuantityL))
		}
	}
	return strings.Join(lines, "\n")
}
