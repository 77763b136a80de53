package report

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardend/gardend/internal/csvlog"
	"github.com/gardend/gardend/internal/logger"
)

type fakeSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (s *fakeSender) Send(title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, body)
}

func TestComposeAggregatesStoppedRows(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := []csvlog.Record{
		{Timestamp: day.Add(6 * time.Hour), Cycle: "morning", State: csvlog.StateStarted},
		{Timestamp: day.Add(6*time.Hour + time.Minute), Cycle: "morning", State: csvlog.StateFlowing, QtyL: 10},
		{Timestamp: day.Add(6*time.Hour + 10*time.Minute), Cycle: "morning", State: csvlog.StateStopped, QtyL: 42},
		{Timestamp: day.Add(20 * time.Hour), Cycle: "evening", State: csvlog.StateStopped, QtyL: 18},
		{Timestamp: day.Add(21 * time.Hour), Cycle: "evening", State: csvlog.StateStopped, QtyL: 20},
	}

	body, runs := Compose(rows)
	assert.Equal(t, 3, runs)
	assert.Contains(t, body, "morning: 1 run(s), 42 L")
	assert.Contains(t, body, "evening: 2 run(s), 38 L")
	assert.Contains(t, body, "Total: 100 L")
}

func TestComposeNoFinishedRuns(t *testing.T) {
	rows := []csvlog.Record{
		{Cycle: "morning", State: csvlog.StateStarted},
		{Cycle: "morning", State: csvlog.StateFlowing},
	}
	_, runs := Compose(rows)
	assert.Zero(t, runs)
}

func TestRunOnce(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Output: "stderr"})
	require.NoError(t, err)

	runLog, err := csvlog.Open(filepath.Join(t.TempDir(), "garden.csv"))
	require.NoError(t, err)

	day := time.Date(2024, 1, 2, 22, 0, 0, 0, time.UTC)
	require.NoError(t, runLog.Append(csvlog.Record{
		Timestamp: day, Cycle: "morning", State: csvlog.StateStopped, QtyL: 15,
	}))

	sender := &fakeSender{}
	r := New(log, runLog, sender, "55 23 * * *")
	r.RunOnce(day)

	require.Len(t, sender.bodies, 1)
	assert.Equal(t, "Garden daily report", sender.titles[0])
	assert.Contains(t, sender.bodies[0], "morning: 1 run(s), 15 L")
}

func TestRunOnceEmptyDaySendsNothing(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Output: "stderr"})
	require.NoError(t, err)

	runLog, err := csvlog.Open(filepath.Join(t.TempDir(), "garden.csv"))
	require.NoError(t, err)

	sender := &fakeSender{}
	r := New(log, runLog, sender, "55 23 * * *")
	r.RunOnce(time.Now())

	assert.Empty(t, sender.bodies)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Output: "stderr"})
	require.NoError(t, err)

	runLog, err := csvlog.Open(filepath.Join(t.TempDir(), "garden.csv"))
	require.NoError(t, err)

	r := New(log, runLog, &fakeSender{}, "not a schedule")
	assert.Error(t, r.Start())
}

func TestStartStop(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Output: "stderr"})
	require.NoError(t, err)

	runLog, err := csvlog.Open(filepath.Join(t.TempDir(), "garden.csv"))
	require.NoError(t, err)

	r := New(log, runLog, &fakeSender{}, "55 23 * * *")
	require.NoError(t, r.Start())
	assert.ErrorIs(t, r.Start(), ErrAlreadyStarted)
	r.Stop()
	r.Stop()
}