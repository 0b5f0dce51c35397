package crawler

import (
	"encoding/json"

	"inspectra/pkg/types"
)

// EventType discriminates the crawl lifecycle events.
type EventType string

const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventPage     EventType = "page"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one of LogEvent, ProgressEvent, PageEvent, ErrorEvent or DoneEvent.
// Each marshals to JSON with a "type" field.
type Event interface {
	Type() EventType
	isEvent()
}

// LogEvent narrates the crawl lifecycle.
type LogEvent struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// ProgressEvent is a coarse completion estimate from 0 to 100.
type ProgressEvent struct {
	Value int    `json:"value"`
	Stage string `json:"stage"`
}

// PageEvent carries one finished page, successful or degraded.
type PageEvent struct {
	Page types.PageRecord `json:"page"`
}

// ErrorEvent reports a fatal condition; a DoneEvent always follows.
type ErrorEvent struct {
	Message string `json:"message"`
}

// DoneEvent terminates every crawl's event stream exactly once.
type DoneEvent struct {
	Success bool
	// Result is set on success.
	Result *types.CrawlResult
	// RunID identifies the crawl in the result store.
	RunID string
	Error string
}

func (LogEvent) Type() EventType      { return EventLog }
func (ProgressEvent) Type() EventType { return EventProgress }
func (PageEvent) Type() EventType     { return EventPage }
func (ErrorEvent) Type() EventType    { return EventError }
func (DoneEvent) Type() EventType     { return EventDone }

func (LogEvent) isEvent()      {}
func (ProgressEvent) isEvent() {}
func (PageEvent) isEvent()     {}
func (ErrorEvent) isEvent()    {}
func (DoneEvent) isEvent()     {}

func (e LogEvent) MarshalJSON() ([]byte, error) {
	type payload LogEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		payload
	}{EventLog, payload(e)})
}

func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	type payload ProgressEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		payload
	}{EventProgress, payload(e)})
}

func (e PageEvent) MarshalJSON() ([]byte, error) {
	type payload PageEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		payload
	}{EventPage, payload(e)})
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type payload ErrorEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		payload
	}{EventError, payload(e)})
}

func (e DoneEvent) MarshalJSON() ([]byte, error) {
	out := struct {
		Type       EventType           `json:"type"`
		Success    bool                `json:"success"`
		Pages      *[]types.PageRecord `json:"pages,omitempty"`
		Edges      *[]types.Edge       `json:"edges,omitempty"`
		TotalPages *int                `json:"totalPages,omitempty"`
		RunID      string              `json:"runId,omitempty"`
		Error      string              `json:"error,omitempty"`
	}{Type: EventDone, Success: e.Success, RunID: e.RunID, Error: e.Error}
	if e.Result != nil {
		res := e.Result.Clone()
		total := len(res.Pages)
		out.Pages = &res.Pages
		out.Edges = &res.Edges
		out.TotalPages = &total
	}
	return json.Marshal(out)
}

// ProgressSink receives lifecycle events in order. Report must not block for
// long; the crawl loop calls it synchronously.
type ProgressSink interface {
	Report(Event)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

// Report calls f.
func (f SinkFunc) Report(ev Event) {
	f(ev)
}

// Discard drops every event.
var Discard ProgressSink = SinkFunc(func(Event) {})

// Progress stages reported by the engine.
const (
	StageLaunch   = "launch"
	StageStart    = "start"
	StageCrawling = "crawling"
	StageDone     = "done"
)

// crawlPercent maps visited pages linearly onto 10..92.
func crawlPercent(visited, maxPages int) int {
	if maxPages <= 0 {
		return 10
	}
	if visited > maxPages {
		visited = maxPages
	}
	return 10 + 82*visited/maxPages
}
