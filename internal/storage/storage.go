// Package storage holds the sinks the keeper writes pool events to.
package storage

import "optionPool/internal/model"

// EventSink persists emitted pool events.
type EventSink interface {
	PutEvents(events []model.EventRecord) error
}
