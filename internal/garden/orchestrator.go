package garden

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gardend/gardend/internal/csvlog"
	"github.com/gardend/gardend/internal/hardware"
	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/metrics"
	"github.com/gardend/gardend/internal/program"
	"github.com/gardend/gardend/internal/schedule"
)

// maxLoggedPollErrors caps consecutive poll failure logging; the hardware
// line being down for hours must not flood the log.
const maxLoggedPollErrors = 5

// defaultPollPeriod is the hardware poll cadence.
const defaultPollPeriod = 3 * time.Second

// maxUpcoming bounds the upcoming list in a status report.
const maxUpcoming = 4

var (
	// ErrEmptyProgram rejects immediate requests with no watering time.
	// The message is part of the API surface.
	ErrEmptyProgram = errors.New("Empty program")

	// ErrNoSink rejects a stop request when no hardware is configured.
	ErrNoSink = errors.New("Cannot stop, no sink")

	// ErrDocumentStore marks a failure to persist a valid program document,
	// so callers can tell it apart from a rejected document.
	ErrDocumentStore = errors.New("failed to store program document")

	ErrAlreadyStarted = errors.New("orchestrator is already started")
)

// Notifier receives run outcomes for batched delivery.
type Notifier interface {
	AddExecuted(name string, liters float64, minutes int, results []program.ZoneResult)
	AddSuspended(name string)
}

// Upcoming is one entry of the status report's activity list.
type Upcoming struct {
	Name string `json:"name"`
	// Status is one of "running", "queued", "scheduled".
	Status string     `json:"status"`
	At     *time.Time `json:"at,omitempty"`
}

// Status is a point-in-time report of the irrigation line.
type Status struct {
	Online              bool              `json:"online"`
	Running             bool              `json:"running"`
	FlowLitersPerMinute float64           `json:"flowLMin"`
	TotalCubicMeters    float64           `json:"totalQtyMc"`
	Config              *program.Document `json:"config"`
	Upcoming            []Upcoming        `json:"upcoming"`
}

// Options configures an Orchestrator. Sink and Flow may be nil when no
// hardware is attached; scheduling and configuration keep working, watering
// requests stay queued.
type Options struct {
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
	Scheduler    *schedule.Scheduler
	Sink         hardware.Sink
	Flow         hardware.FlowMeter
	RunLog       *csvlog.Log
	DocumentPath string
	PollPeriod   time.Duration
}

// Orchestrator owns the program document and drives the watering pipeline:
// queued requests are programmed into the sink one at a time, polled while
// they run and accounted when they finish.
type Orchestrator struct {
	logger     *logger.Logger
	metrics    *metrics.Metrics
	scheduler  *schedule.Scheduler
	sink       hardware.Sink
	flow       hardware.FlowMeter
	runLog     *csvlog.Log
	docPath    string
	pollPeriod time.Duration

	queue requestQueue

	mu       sync.Mutex
	doc      *program.Document
	tracker  *runTracker
	notifier Notifier
	online   bool
	pollErrs int
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an orchestrator. Call EnsureDocument and Start afterwards.
func New(opts Options) *Orchestrator {
	if opts.PollPeriod <= 0 {
		opts.PollPeriod = defaultPollPeriod
	}
	return &Orchestrator{
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		scheduler:  opts.Scheduler,
		sink:       opts.Sink,
		flow:       opts.Flow,
		runLog:     opts.RunLog,
		docPath:    opts.DocumentPath,
		pollPeriod: opts.PollPeriod,
		doc:        program.Default(),
	}
}

// SetNotifier wires the notification sink. The notifier consults the
// orchestrator for scheduling pressure, so it is created after New and
// attached here.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifier = n
}

// EnsureDocument loads the program document, writing an empty default at
// first start, and arms the scheduler with its program.
func (o *Orchestrator) EnsureDocument() error {
	doc, err := program.LoadDocument(o.docPath)
	if errors.Is(err, os.ErrNotExist) {
		o.logger.Info("program document missing, writing default",
			logger.Field{Key: "path", Value: o.docPath})
		doc = program.Default()
		if err := doc.Save(o.docPath); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if err := o.scheduler.SetProgram(doc.Program); err != nil {
		return fmt.Errorf("invalid program document: %w", err)
	}

	o.mu.Lock()
	o.doc = doc
	o.mu.Unlock()
	return nil
}

// Start launches the poll loop and the trigger consumer.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return ErrAlreadyStarted
	}
	ctx, o.cancel = context.WithCancel(ctx)
	o.started = true
	o.done = make(chan struct{})

	go o.run(ctx)

	o.logger.Info("orchestrator started",
		logger.Field{Key: "poll_period", Value: o.pollPeriod.String()})
	return nil
}

// Shutdown stops the loops. In-progress hardware runs keep running; the
// device counts down on its own.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	o.cancel()
	done := o.done
	o.mu.Unlock()

	<-done
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(o.pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case trig := <-o.scheduler.Triggers():
			o.handleTrigger(trig)
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// handleTrigger turns a scheduled firing into a queued request, or a
// reminder when the cycle is suspended.
func (o *Orchestrator) handleTrigger(trig schedule.Trigger) {
	o.mu.Lock()
	notifier := o.notifier
	o.mu.Unlock()

	if trig.Cycle.Suspended {
		o.logger.Info("suspended cycle fired",
			logger.Field{Key: "cycle", Value: trig.Cycle.Name})
		o.metrics.TriggersFired.WithLabelValues("suspended").Inc()
		if notifier != nil {
			notifier.AddSuspended(trig.Cycle.Name)
		}
		return
	}

	o.logger.Info("cycle triggered",
		logger.Field{Key: "cycle", Value: trig.Cycle.Name},
		logger.Field{Key: "at", Value: trig.At.Format(time.RFC3339)})
	o.metrics.TriggersFired.WithLabelValues("enqueued").Inc()
	o.enqueue(Request{
		ID:    uuid.New(),
		Name:  trig.Cycle.Name,
		Steps: trig.Cycle.Steps(),
	})
}

func (o *Orchestrator) enqueue(r Request) {
	o.queue.Enqueue(r)
	o.metrics.QueueLength.Set(float64(o.queue.Len()))
}

// RequestImmediate queues a user-initiated watering of the given zones.
func (o *Orchestrator) RequestImmediate(zones []int, minutes int) error {
	req := Request{
		ID:    uuid.New(),
		Name:  "Immediate: " + o.DisplayZoneNames(zones),
		Steps: []program.ZoneStep{{Zones: zones, Minutes: minutes}},
	}
	if req.IsEmpty() {
		o.metrics.ImmediateReject.Inc()
		return ErrEmptyProgram
	}

	o.logger.Info("immediate request queued",
		logger.Field{Key: "name", Value: req.Name},
		logger.Field{Key: "minutes", Value: minutes})
	o.enqueue(req)
	return nil
}

// Stop aborts the current run by resetting the sink. The poll loop observes
// the idle device on its next tick and finalizes the run; the running record
// is never touched from here. Pending requests stay queued.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.sink == nil {
		return ErrNoSink
	}

	o.logger.Info("stop requested")
	o.sink.Reset(ctx)
	return nil
}

// tick is one poll iteration. It only touches the hardware when a run is
// owned or requests are pending.
func (o *Orchestrator) tick(ctx context.Context) {
	o.mu.Lock()
	tracker := o.tracker
	notifier := o.notifier
	o.mu.Unlock()

	if tracker == nil && o.queue.Len() == 0 {
		return
	}
	if o.sink == nil {
		return
	}

	state, err := o.sink.ReadState(ctx)
	if err != nil {
		o.pollFailed(err)
		return
	}
	o.pollRecovered()

	switch {
	case state.Available && tracker != nil:
		o.mu.Lock()
		o.tracker = nil
		o.mu.Unlock()
		o.finalize(ctx, tracker, notifier)

	case state.Available:
		req, ok := o.queue.Dequeue()
		if !ok {
			return
		}
		o.metrics.QueueLength.Set(float64(o.queue.Len()))
		o.startRun(ctx, req)

	case tracker != nil:
		tracker.step(ctx, time.Now(), state)
	}
}

// startRun programs the sink and begins tracking. On programming failure the
// request goes back to the head of the queue for the next tick.
func (o *Orchestrator) startRun(ctx context.Context, req Request) {
	steps := make([]hardware.ZoneProgram, 0, len(req.Steps))
	for _, s := range req.Steps {
		if s.Minutes > 0 {
			steps = append(steps, hardware.ZoneProgram{
				ZoneMask: program.ZoneMask(s.Zones),
				Minutes:  s.Minutes,
			})
		}
	}

	if err := o.sink.ProgramZones(ctx, steps); err != nil {
		o.logger.Error("failed to program zones", err,
			logger.Field{Key: "name", Value: req.Name})
		o.queue.PushFront(req)
		o.metrics.QueueLength.Set(float64(o.queue.Len()))
		return
	}

	tracker := newRunTracker(o.logger, o.flow, o.runLog, req)
	tracker.start(ctx, time.Now())
	o.metrics.RunsStarted.Inc()

	o.mu.Lock()
	o.tracker = tracker
	o.mu.Unlock()
}

func (o *Orchestrator) finalize(ctx context.Context, tracker *runTracker, notifier Notifier) {
	summary := tracker.stop(ctx, time.Now())
	o.metrics.RunsCompleted.Inc()
	o.metrics.RunLiters.Add(summary.Liters)
	if notifier != nil {
		notifier.AddExecuted(summary.Name, summary.Liters, summary.Minutes, summary.Results)
	}
}

func (o *Orchestrator) pollFailed(err error) {
	o.metrics.PollErrors.Inc()
	o.mu.Lock()
	o.online = false
	o.pollErrs++
	count := o.pollErrs
	o.mu.Unlock()

	o.metrics.HardwareOnline.Set(0)
	if count <= maxLoggedPollErrors {
		o.logger.Error("hardware poll failed", err,
			logger.Field{Key: "consecutive", Value: count})
	}
}

func (o *Orchestrator) pollRecovered() {
	o.mu.Lock()
	wasDown := o.pollErrs > maxLoggedPollErrors
	o.online = true
	o.pollErrs = 0
	o.mu.Unlock()

	o.metrics.HardwareOnline.Set(1)
	if wasDown {
		o.logger.Info("hardware poll recovered")
	}
}

// Status reports the line state with a live hardware read and the next
// activity, most imminent first: the running cycle, then queued requests,
// then scheduled cycles.
func (o *Orchestrator) Status(ctx context.Context) Status {
	var st Status

	if o.sink != nil {
		if _, err := o.sink.ReadState(ctx); err == nil {
			st.Online = true
		}
	}
	if o.flow != nil {
		if sample := o.flow.ReadTotal(ctx); sample != nil {
			st.FlowLitersPerMinute = sample.FlowLitersPerMinute
			st.TotalCubicMeters = sample.TotalCubicMeters
		}
	}

	o.mu.Lock()
	tracker := o.tracker
	doc := *o.doc
	o.mu.Unlock()
	st.Config = &doc

	// The request is immutable once tracking starts; nothing else of the
	// tracker is read off the poll goroutine.
	if tracker != nil {
		st.Running = true
		st.Upcoming = append(st.Upcoming, Upcoming{Name: tracker.req.Name, Status: "running"})
	}
	for _, req := range o.queue.Snapshot() {
		if len(st.Upcoming) >= maxUpcoming {
			break
		}
		st.Upcoming = append(st.Upcoming, Upcoming{Name: req.Name, Status: "queued"})
	}
	for c, at := range o.scheduler.NextCycles(time.Now()) {
		if len(st.Upcoming) >= maxUpcoming {
			break
		}
		if c.Suspended {
			continue
		}
		instant := at
		st.Upcoming = append(st.Upcoming, Upcoming{Name: c.Name, Status: "scheduled", At: &instant})
	}
	return st
}

// NextScheduled reports the next trigger instant, suspended cycles included:
// a suspended firing still produces a notification, so batching waits for it.
func (o *Orchestrator) NextScheduled(now time.Time) (time.Time, bool) {
	for _, at := range o.scheduler.NextCycles(now) {
		return at, true
	}
	return time.Time{}, false
}

// Busy reports whether a run is in progress or requests are queued.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	running := o.tracker != nil
	o.mu.Unlock()
	return running || o.queue.Len() > 0
}

// Document returns the current program document.
func (o *Orchestrator) Document() *program.Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	doc := *o.doc
	return &doc
}

// SetConfig validates, persists and applies a new program document. On
// validation failure the previous document stays active and on disk.
func (o *Orchestrator) SetConfig(doc *program.Document) error {
	if err := doc.Program.Validate(); err != nil {
		return err
	}
	if err := doc.Save(o.docPath); err != nil {
		return fmt.Errorf("%w: %w", ErrDocumentStore, err)
	}
	if err := o.scheduler.SetProgram(doc.Program); err != nil {
		return err
	}

	o.mu.Lock()
	o.doc = doc
	o.mu.Unlock()

	o.logger.Info("program document applied",
		logger.Field{Key: "cycles", Value: len(doc.Program.Cycles)})
	return nil
}

// ReloadConfig re-reads the document from disk, applied only when valid.
// Used by the file watcher when the document is edited out of band.
func (o *Orchestrator) ReloadConfig() {
	doc, err := program.LoadDocument(o.docPath)
	if err == nil {
		err = doc.Program.Validate()
	}
	if err != nil {
		o.metrics.ConfigReloads.WithLabelValues("rejected").Inc()
		o.logger.Error("program document reload rejected, keeping previous", err,
			logger.Field{Key: "path", Value: o.docPath})
		return
	}

	if err := o.scheduler.SetProgram(doc.Program); err != nil {
		o.metrics.ConfigReloads.WithLabelValues("rejected").Inc()
		o.logger.Error("program document reload rejected, keeping previous", err)
		return
	}

	o.mu.Lock()
	o.doc = doc
	o.mu.Unlock()

	o.metrics.ConfigReloads.WithLabelValues("applied").Inc()
	o.logger.Info("program document reloaded",
		logger.Field{Key: "cycles", Value: len(doc.Program.Cycles)})
}

// DisplayZoneNames renders a zone index list for user-facing text.
func (o *Orchestrator) DisplayZoneNames(zones []int) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc.CycleName(zones)
}
