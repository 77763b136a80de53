// Package csvlog maintains the append-only CSV run log of watering cycles.
// The file carries a fixed header followed by one row per run transition;
// writes are serialized with a file-scoped lock because other diagnostic
// writers share the same directory.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Run states recorded in the State column.
const (
	StateStopped = 0
	StateStarted = 1
	StateFlowing = 2
)

var header = []string{"Date", "Time", "Cycle", "Zones", "State", "FlowLMin", "QtyL", "TotalQtyMc"}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Record is one run log row.
type Record struct {
	Timestamp time.Time
	Cycle     string
	Zones     string
	State     int
	// FlowLMin is the instantaneous flow in liters per minute.
	FlowLMin float64
	// QtyL is the water used by the cycle so far, in liters.
	QtyL float64
	// TotalQtyMc is the lifetime counter in cubic meters.
	TotalQtyMc float64
}

// Log is an append-only CSV file.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open prepares the log at path, creating the file with its header when
// missing.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}

	l := &Log{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := l.writeHeader(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat run log: %w", err)
	}
	return l, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

func (l *Log) writeHeader() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendRowLocked(header)
}

// Append writes one record.
func (l *Log) Append(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendRowLocked([]string{
		r.Timestamp.Format(dateLayout),
		r.Timestamp.Format(timeLayout),
		r.Cycle,
		r.Zones,
		strconv.Itoa(r.State),
		strconv.FormatFloat(r.FlowLMin, 'f', 1, 64),
		strconv.FormatFloat(r.QtyL, 'f', 1, 64),
		strconv.FormatFloat(r.TotalQtyMc, 'f', 3, 64),
	})
}

func (l *Log) appendRowLocked(row []string) error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write run log row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// ReadDay returns all records of the given calendar day.
func (l *Log) ReadDay(day time.Time) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(header)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}

	wantDate := day.Format(dateLayout)
	var records []Record
	for i, row := range rows {
		if i == 0 && row[0] == header[0] {
			continue
		}
		if row[0] != wantDate {
			continue
		}
		rec, err := parseRow(row, day.Location())
		if err != nil {
			return nil, fmt.Errorf("run log row %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, loc *time.Location) (Record, error) {
	ts, err := time.ParseInLocation(dateLayout+" "+timeLayout, row[0]+" "+row[1], loc)
	if err != nil {
		return Record{}, err
	}
	state, err := strconv.Atoi(row[4])
	if err != nil {
		return Record{}, err
	}
	flow, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return Record{}, err
	}
	qty, err := strconv.ParseFloat(row[6], 64)
	if err != nil {
		return Record{}, err
	}
	total, err := strconv.ParseFloat(row[7], 64)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Timestamp:  ts,
		Cycle:      row[2],
		Zones:      row[3],
		State:      state,
		FlowLMin:   flow,
		QtyL:       qty,
		TotalQtyMc: total,
	}, nil
}
