// Package trace collects per-entity statistics during a run and writes the
// CSV outputs: `<entity>.csv` event rows, `<entity>_Fin.csv` accounting
// rows, and `<router>_Buffers.csv` buffer samples when enabled.
package trace

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// EventRecord is one `<entity>.csv` row.
type EventRecord struct {
	Entity    string
	Event     string
	GridletID int
	Resource  string
	Status    string
	Time      float64
}

// FinRecord is one `<entity>_Fin.csv` row.
type FinRecord struct {
	Entity    string
	User      int
	GridletID int
	Resource  string
	Cost      float64
	CPU       float64
	Time      float64
}

// BufferRecord is one `<router>_Buffers.csv` row.
type BufferRecord struct {
	Router string
	Time   float64
	Queue  int
	Drops  int
}

// Recorder accumulates statistics rows for one simulation run. The
// simulation is single-threaded, so no locking is needed.
type Recorder struct {
	RunID string

	events  []EventRecord
	fins    []FinRecord
	buffers []BufferRecord
}

// NewRecorder stamps a fresh run id.
func NewRecorder() *Recorder {
	return &Recorder{RunID: uuid.NewString()}
}

// RecordEvent appends an event row.
func (r *Recorder) RecordEvent(entity, event string, gridletID int, resource, status string, time float64) {
	r.events = append(r.events, EventRecord{
		Entity: entity, Event: event, GridletID: gridletID,
		Resource: resource, Status: status, Time: time,
	})
}

// RecordFin appends an accounting row for a finished gridlet.
func (r *Recorder) RecordFin(entity string, user, gridletID int, resource string, cost, cpu, time float64) {
	r.fins = append(r.fins, FinRecord{
		Entity: entity, User: user, GridletID: gridletID,
		Resource: resource, Cost: cost, CPU: cpu, Time: time,
	})
}

// RecordBuffer appends a router buffer sample.
func (r *Recorder) RecordBuffer(router string, time float64, queue, drops int) {
	r.buffers = append(r.buffers, BufferRecord{Router: router, Time: time, Queue: queue, Drops: drops})
}

// Events returns the collected event rows.
func (r *Recorder) Events() []EventRecord { return r.events }

// Fins returns the collected accounting rows.
func (r *Recorder) Fins() []FinRecord { return r.fins }

// WriteCSV emits one file per entity into dir, creating it if needed.
func (r *Recorder) WriteCSV(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating stats dir: %w", err)
	}

	byEntity := map[string][][]string{}
	order := []string{}
	for _, e := range r.events {
		if _, seen := byEntity[e.Entity]; !seen {
			order = append(order, e.Entity)
		}
		byEntity[e.Entity] = append(byEntity[e.Entity], []string{
			e.Event, strconv.Itoa(e.GridletID), e.Resource, e.Status, formatTime(e.Time),
		})
	}
	for _, entity := range order {
		path := filepath.Join(dir, entity+".csv")
		if err := writeFile(path, []string{"event", "gridletId", "resource", "status", "time"}, byEntity[entity]); err != nil {
			return err
		}
	}

	finByEntity := map[string][][]string{}
	finOrder := []string{}
	for _, f := range r.fins {
		if _, seen := finByEntity[f.Entity]; !seen {
			finOrder = append(finOrder, f.Entity)
		}
		finByEntity[f.Entity] = append(finByEntity[f.Entity], []string{
			strconv.Itoa(f.User), strconv.Itoa(f.GridletID), f.Resource,
			formatTime(f.Cost), formatTime(f.CPU), formatTime(f.Time),
		})
	}
	for _, entity := range finOrder {
		path := filepath.Join(dir, entity+"_Fin.csv")
		if err := writeFile(path, []string{"user", "gridletId", "resource", "cost", "cpu", "time"}, finByEntity[entity]); err != nil {
			return err
		}
	}

	bufByRouter := map[string][][]string{}
	bufOrder := []string{}
	for _, b := range r.buffers {
		if _, seen := bufByRouter[b.Router]; !seen {
			bufOrder = append(bufOrder, b.Router)
		}
		bufByRouter[b.Router] = append(bufByRouter[b.Router], []string{
			formatTime(b.Time), strconv.Itoa(b.Queue), strconv.Itoa(b.Drops),
		})
	}
	for _, router := range bufOrder {
		path := filepath.Join(dir, router+"_Buffers.csv")
		if err := writeFile(path, []string{"time", "queue", "drops"}, bufByRouter[router]); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close() //nolint:errcheck // the write error is reported instead
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}

func formatTime(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
