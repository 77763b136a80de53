package csvlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "garden.csv")

	_, err := Open(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Date,Time,Cycle,Zones,State,FlowLMin,QtyL,TotalQtyMc\n", string(data))
}

func TestOpenExistingKeepsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garden.csv")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Record{
		Timestamp: time.Date(2024, 6, 1, 6, 0, 0, 0, time.Local),
		Cycle:     "lawn",
		State:     StateStarted,
	}))

	// Reopen must not rewrite the header
	_, err = Open(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestAppendFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garden.csv")
	l, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, l.Append(Record{
		Timestamp:  time.Date(2024, 6, 1, 6, 30, 15, 0, time.Local),
		Cycle:      "morning",
		Zones:      "0x05=10",
		State:      StateFlowing,
		FlowLMin:   12.34,
		QtyL:       5.06,
		TotalQtyMc: 10.00549,
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-06-01,06:30:15,morning,0x05=10,2,12.3,5.1,10.005", lines[1])
}

func TestReadDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garden.csv")
	l, err := Open(path)
	require.NoError(t, err)

	day1 := time.Date(2024, 6, 1, 7, 0, 0, 0, time.Local)
	day2 := time.Date(2024, 6, 2, 7, 0, 0, 0, time.Local)

	require.NoError(t, l.Append(Record{Timestamp: day1, Cycle: "a", State: StateStarted}))
	require.NoError(t, l.Append(Record{Timestamp: day1.Add(10 * time.Minute), Cycle: "a", State: StateStopped, QtyL: 42.5}))
	require.NoError(t, l.Append(Record{Timestamp: day2, Cycle: "b", State: StateStarted}))

	records, err := l.ReadDay(day1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Cycle)
	assert.Equal(t, StateStopped, records[1].State)
	assert.Equal(t, 42.5, records[1].QtyL)
	assert.Equal(t, day1.Add(10*time.Minute), records[1].Timestamp)
}
