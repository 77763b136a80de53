// Package report sends the nightly watering digest: one message per day
// summarizing every run the CSV log recorded.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gardend/gardend/internal/csvlog"
	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/notify"
)

var ErrAlreadyStarted = errors.New("reporter is already started")

// Reporter schedules and composes the daily digest.
type Reporter struct {
	logger   *logger.Logger
	runLog   *csvlog.Log
	sender   notify.Sender
	schedule string

	cron    *cron.Cron
	started bool
}

// New creates a reporter firing on the given cron expression, standard
// five-field syntax.
func New(log *logger.Logger, runLog *csvlog.Log, sender notify.Sender, schedule string) *Reporter {
	return &Reporter{
		logger:   log,
		runLog:   runLog,
		sender:   sender,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start validates the schedule and arms the job.
func (r *Reporter) Start() error {
	if r.started {
		return ErrAlreadyStarted
	}
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(time.Now()) }); err != nil {
		return fmt.Errorf("invalid report schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.started = true
	r.logger.Info("daily report scheduled",
		logger.Field{Key: "schedule", Value: r.schedule})
	return nil
}

// Stop cancels the scheduled job, waiting for a running one to finish.
func (r *Reporter) Stop() {
	if !r.started {
		return
	}
	r.started = false
	<-r.cron.Stop().Done()
	r.logger.Info("daily report stopped")
}

// RunOnce composes and sends the digest for the given day. A day without
// finished runs sends nothing.
func (r *Reporter) RunOnce(day time.Time) {
	rows, err := r.runLog.ReadDay(day)
	if err != nil {
		r.logger.Error("failed to read run log for daily report", err)
		return
	}

	body, runs := Compose(rows)
	if runs == 0 {
		r.logger.Debug("no finished runs, skipping daily report")
		return
	}

	r.sender.Send("Garden daily report", body)
	r.logger.Info("daily report sent",
		logger.Field{Key: "runs", Value: runs})
}

// Compose renders the digest from one day of log rows and returns it with
// the number of finished runs. Only Stopped rows count: they carry the final
// totals of a run.
func Compose(rows []csvlog.Record) (string, int) {
	type agg struct {
		name   string
		runs   int
		liters float64
	}

	var order []string
	byCycle := make(map[string]*agg)
	total := 0.0
	for _, row := range rows {
		if row.State != csvlog.StateStopped {
			continue
		}
		a, ok := byCycle[row.Cycle]
		if !ok {
			a = &agg{name: row.Cycle}
			byCycle[row.Cycle] = a
			order = append(order, row.Cycle)
		}
		a.runs++
		if row.QtyL > 0 {
			a.liters += row.QtyL
			total += row.QtyL
		}
	}

	runs := 0
	lines := []string{"Watering today:"}
	for _, name := range order {
		a := byCycle[name]
		runs += a.runs
		lines = append(lines, fmt.Sprintf("%s: %d run(s), %.0f L", a.name, a.runs, a.liters))
	}
	lines = append(lines, fmt.Sprintf("Total: %.0f L", total))
	return strings.Join(lines, "\n"), runs
}
