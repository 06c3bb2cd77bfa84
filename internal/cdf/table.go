package cdf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
)

// Amplifier is the fixed-point scale of every table value.
const Amplifier = 1_000_000_000

// SigmaStep is the sigma distance between two adjacent table columns.
const SigmaStep = 5

var ErrNotFound = errors.New("cdf entry not found")

// Table is an immutable (duration, sigmaIndex) lookup.
type Table struct {
	rows map[uint64][]uint32
}

// NewTable copies rows into a Table. Every row must be non-empty.
func NewTable(rows map[uint64][]uint32) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("cdf table is empty")
	}
	copied := make(map[uint64][]uint32, len(rows))
	for duration, values := range rows {
		if duration == 0 {
			return nil, fmt.Errorf("cdf table has zero duration")
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("cdf row %d is empty", duration)
		}
		copied[duration] = append([]uint32(nil), values...)
	}
	return &Table{rows: copied}, nil
}

// Lookup returns the multiplier for a round duration in seconds and sigma/5.
func (t *Table) Lookup(duration uint64, sigmaIndex uint64) (uint32, error) {
	if t == nil {
		return 0, fmt.Errorf("lookup duration %d: %w", duration, ErrNotFound)
	}
	row, ok := t.rows[duration]
	if !ok {
		return 0, fmt.Errorf("lookup duration %d: %w", duration, ErrNotFound)
	}
	if sigmaIndex >= uint64(len(row)) {
		return 0, fmt.Errorf("lookup duration %d sigma index %d: %w", duration, sigmaIndex, ErrNotFound)
	}
	return row[sigmaIndex], nil
}

// Durations lists the supported round durations in ascending order.
func (t *Table) Durations() []uint64 {
	out := make([]uint64, 0, len(t.rows))
	for duration := range t.rows {
		out = append(out, duration)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether the duration has a row.
func (t *Table) Has(duration uint64) bool {
	_, ok := t.rows[duration]
	return ok
}

type tableFile struct {
	Amplifier uint64              `json:"amplifier"`
	Rows      map[string][]uint32 `json:"rows"`
}

// Load reads a table from a JSON file of the form
// {"amplifier":1000000000,"rows":{"60":[...],"120":[...]}}.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cdf table: %w", err)
	}
	var file tableFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse cdf table: %w", err)
	}
	if file.Amplifier != 0 && file.Amplifier != Amplifier {
		return nil, fmt.Errorf("cdf table amplifier %d, want %d", file.Amplifier, Amplifier)
	}
	rows := make(map[uint64][]uint32, len(file.Rows))
	for key, values := range file.Rows {
		duration, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cdf duration %q: %w", key, err)
		}
		rows[duration] = values
	}
	return NewTable(rows)
}

// Save writes the table in the format read by Load.
func (t *Table) Save(path string) error {
	file := tableFile{Amplifier: Amplifier, Rows: make(map[string][]uint32, len(t.rows))}
	for duration, values := range t.rows {
		file.Rows[strconv.FormatUint(duration, 10)] = values
	}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal cdf table: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cdf table tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cdf table: %w", err)
	}
	return nil
}
