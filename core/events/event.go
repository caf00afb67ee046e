package events

import "lendledger/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. logs, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	Events []*types.Event
}

func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	if built := evt.Event(); built != nil {
		r.Events = append(r.Events, built)
	}
}

// EmitterFunc adapts a function into an Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}
