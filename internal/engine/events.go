package engine

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
)

// EventType identifies one kind of stream event.
type EventType string

const (
	// EventProgress carries a human-readable status and 0-100 progress.
	EventProgress EventType = "progress"
	// EventResult carries one persisted or cached query result.
	EventResult EventType = "result"
	// EventStats carries an aggregate snapshot.
	EventStats EventType = "stats"
	// EventError is fatal and terminates the stream.
	EventError EventType = "error"
	// EventComplete is the terminal success marker.
	EventComplete EventType = "complete"
)

// Event is the typed envelope for everything emitted during a run.
// Exactly one payload field is set, matching Type. Serialization happens
// once, at the transport boundary.
type Event struct {
	Type     EventType
	Progress *ProgressPayload
	Result   *ResultPayload
	Stats    *model.VisibilitySnapshot
	Error    *ErrorPayload
	Complete *CompletePayload
}

// ProgressPayload is the data for a progress event.
type ProgressPayload struct {
	Message  string  `json:"message"`
	Progress float64 `json:"progress"` // 0-100
}

// ResultPayload is the data for a result event. Percent is the running
// completion percentage across all units in the run.
type ResultPayload struct {
	Result  model.QueryResult `json:"result"`
	Cached  bool              `json:"cached"`
	Percent float64           `json:"percent"`
}

// ErrorPayload is the data for an error event. Fatal errors terminate
// the stream; unit-scoped errors identify the failed (phrase, model).
type ErrorPayload struct {
	Message  string `json:"message"`
	PhraseID int64  `json:"phrase_id,omitempty"`
	Model    string `json:"model,omitempty"`
	Fatal    bool   `json:"fatal"`
}

// CompletePayload is the data for the terminal complete event.
type CompletePayload struct {
	TotalUnits   int `json:"total_units"`
	FreshResults int `json:"fresh_results"`
	CachedReplay int `json:"cached_replay"`
}

// payload returns the populated payload for the event's type.
func (e Event) payload() any {
	switch e.Type {
	case EventProgress:
		return e.Progress
	case EventResult:
		return e.Result
	case EventStats:
		return e.Stats
	case EventError:
		return e.Error
	case EventComplete:
		return e.Complete
	default:
		return nil
	}
}

// MarshalFrame renders the event as a Server-Sent Events frame:
// "event: <type>\ndata: <json>\n\n".
func (e Event) MarshalFrame() ([]byte, error) {
	data, err := json.Marshal(e.payload())
	if err != nil {
		return nil, eris.Wrapf(err, "engine: marshal %s event", e.Type)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, data), nil
}

// Sink receives events in production order. Emit must not be called
// concurrently; the scheduler serializes all emissions.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

func progressEvent(msg string, pct float64) Event {
	return Event{Type: EventProgress, Progress: &ProgressPayload{Message: msg, Progress: pct}}
}

func resultEvent(r model.QueryResult, cached bool, pct float64) Event {
	return Event{Type: EventResult, Result: &ResultPayload{Result: r, Cached: cached, Percent: pct}}
}

func statsEvent(snap *model.VisibilitySnapshot) Event {
	return Event{Type: EventStats, Stats: snap}
}

func unitErrorEvent(phraseID int64, modelName, msg string) Event {
	return Event{Type: EventError, Error: &ErrorPayload{Message: msg, PhraseID: phraseID, Model: modelName}}
}

// FatalErrorEvent builds the stream-terminating error event.
func FatalErrorEvent(msg string) Event {
	return Event{Type: EventError, Error: &ErrorPayload{Message: msg, Fatal: true}}
}

func completeEvent(total, fresh, cached int) Event {
	return Event{Type: EventComplete, Complete: &CompletePayload{TotalUnits: total, FreshResults: fresh, CachedReplay: cached}}
}
