package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"optionPool/internal/model"
)

var ErrInvalidEvent = errors.New("invalid event record")

// EventLog appends pool events to a JSONL file, one record per line. Records
// are keyed by ID: a batch the keeper retries after a failed write appends
// only what the file does not hold yet, including lines written by an
// earlier process.
type EventLog struct {
	path string

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// PutEvents appends the batch in order, skipping records already logged.
// Nothing is written when any record of the batch is malformed.
func (l *EventLog) PutEvents(events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	for _, record := range events {
		if err := checkEvent(record); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen == nil {
		seen, err := loggedIDs(l.path)
		if err != nil {
			return err
		}
		l.seen = seen
	}

	fresh := make([]model.EventRecord, 0, len(events))
	batch := make(map[string]struct{}, len(events))
	for _, record := range events {
		if _, ok := l.seen[record.ID]; ok {
			continue
		}
		if _, ok := batch[record.ID]; ok {
			continue
		}
		batch[record.ID] = struct{}{}
		fresh = append(fresh, record)
	}
	if len(fresh) == 0 {
		return nil
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create event log dir: %w", err)
		}
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for _, record := range fresh {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("encode %s event %s: %w", record.Kind, record.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}
	for id := range batch {
		l.seen[id] = struct{}{}
	}
	return nil
}

func checkEvent(record model.EventRecord) error {
	switch {
	case record.ID == "":
		return fmt.Errorf("%w: %s event without id", ErrInvalidEvent, record.Kind)
	case !model.KnownKind(record.Kind):
		return fmt.Errorf("%w: event %s has kind %q", ErrInvalidEvent, record.ID, record.Kind)
	case record.Data == nil:
		return fmt.Errorf("%w: %s event %s has no payload", ErrInvalidEvent, record.Kind, record.ID)
	}
	return nil
}

// loggedIDs collects the IDs already present in the log. A missing file is
// an empty log.
func loggedIDs(path string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return seen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer file.Close()

	scanner := newLineScanner(file)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var key struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &key); err != nil {
			return nil, fmt.Errorf("event log line %d: %w", line, err)
		}
		seen[key.ID] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return seen, nil
}

func newLineScanner(file *os.File) *bufio.Scanner {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}

// ReadEvents loads the records of an event log in file order. A record whose
// ID repeats an earlier line is dropped.
func ReadEvents(path string) ([]model.EventRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer file.Close()

	var out []model.EventRecord
	seen := make(map[string]struct{})
	scanner := newLineScanner(file)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record model.EventRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("event log line %d: %w", line, err)
		}
		if _, ok := seen[record.ID]; ok {
			continue
		}
		seen[record.ID] = struct{}{}
		out = append(out, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return out, nil
}
