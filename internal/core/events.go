package core

import "time"

// SchemaVersion accompanies every emitted event so consumers can detect
// additive changes.
const SchemaVersion = 1

// EventType is the externally tagged, stable snake-case event name.
type EventType string

const (
	EventThreadStarted EventType = "thread.started"
	EventThreadError   EventType = "thread.error"
	EventTurnStarted   EventType = "turn.started"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnFailed    EventType = "turn.failed"
	EventItemStarted   EventType = "item.started"
	EventItemUpdated   EventType = "item.updated"
	EventItemCompleted EventType = "item.completed"
)

// ItemKind tags the Item tagged union.
type ItemKind string

const (
	ItemAgentMessage     ItemKind = "agent_message"
	ItemReasoning        ItemKind = "reasoning"
	ItemCommandExecution ItemKind = "command_execution"
	ItemFileChange       ItemKind = "file_change"
	ItemMcpToolCall      ItemKind = "mcp_tool_call"
	ItemWebSearch        ItemKind = "web_search"
	ItemError            ItemKind = "error"
)

// CommandExecutionStatus is the sub-status carried by a CommandExecution
// item.
type CommandExecutionStatus string

const (
	CmdInProgress CommandExecutionStatus = "in_progress"
	CmdCompleted  CommandExecutionStatus = "completed"
	CmdFailed     CommandExecutionStatus = "failed"
)

// PatchApplyStatus is the sub-status carried by a FileChange item.
type PatchApplyStatus string

const (
	PatchApplied PatchApplyStatus = "applied"
	PatchFailed  PatchApplyStatus = "failed"
)

// Item is a tagged union identifying one piece of turn-scoped work that
// can receive started/updated/completed lifecycle events. Only the field
// matching Kind is populated.
type Item struct {
	ID   string   `json:"id"`
	Kind ItemKind `json:"kind"`

	// AgentMessage / Reasoning
	Text string `json:"text,omitempty"`

	// CommandExecution
	Command       []string                `json:"command,omitempty"`
	CommandStatus CommandExecutionStatus   `json:"command_status,omitempty"`

	// FileChange
	Path        string           `json:"path,omitempty"`
	PatchStatus PatchApplyStatus `json:"patch_status,omitempty"`

	// McpToolCall / WebSearch
	ToolName string `json:"tool_name,omitempty"`
	Query    string `json:"query,omitempty"`

	// Error
	ErrorMessage string `json:"error_message,omitempty"`
}

// Event is the single envelope emitted by EventEmitter. Exactly one of the
// payload fields is non-nil, selected by Type.
type Event struct {
	Version   int       `json:"version"`
	ThreadID  string    `json:"thread_id"`
	TurnID    string    `json:"turn_id,omitempty"`
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`

	// turn.completed
	Usage *Usage `json:"usage,omitempty"`
	// turn.failed / thread.error
	FailureMessage string `json:"message,omitempty"`
	// item.*
	ItemPayload *Item `json:"item,omitempty"`
	// item.updated delta text, when the item is a streaming text/reasoning item
	Delta string `json:"delta,omitempty"`
}

// Usage reports prompt/completion token counts at turn end.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Sink receives events in per-thread emission order. Implementations must
// not block the emitter indefinitely; a slow sink should buffer
// internally.
type Sink interface {
	Emit(e Event)
}

// Emitter stamps and forwards events to a Sink, maintaining monotonic
// per-thread sequence numbers.
type Emitter struct {
	sink     Sink
	threadID string
	seq      uint64
}

// NewEmitter returns an Emitter bound to threadID, forwarding to sink.
func NewEmitter(sink Sink, threadID string) *Emitter {
	return &Emitter{sink: sink, threadID: threadID}
}

func (e *Emitter) next() uint64 {
	e.seq++
	return e.seq
}

// ThreadStarted emits thread.started.
func (e *Emitter) ThreadStarted() {
	e.emit(Event{Type: EventThreadStarted})
}

// ThreadError emits thread.error.
func (e *Emitter) ThreadError(msg string) {
	e.emit(Event{Type: EventThreadError, FailureMessage: msg})
}

// TurnStarted emits turn.started for turnID.
func (e *Emitter) TurnStarted(turnID string) {
	e.emit(Event{Type: EventTurnStarted, TurnID: turnID})
}

// TurnCompleted emits turn.completed{usage} for turnID.
func (e *Emitter) TurnCompleted(turnID string, usage Usage) {
	e.emit(Event{Type: EventTurnCompleted, TurnID: turnID, Usage: &usage})
}

// TurnFailed emits turn.failed{message} for turnID.
func (e *Emitter) TurnFailed(turnID, message string) {
	e.emit(Event{Type: EventTurnFailed, TurnID: turnID, FailureMessage: message})
}

// ItemStarted emits item.started{item}.
func (e *Emitter) ItemStarted(turnID string, item Item) {
	e.emit(Event{Type: EventItemStarted, TurnID: turnID, ItemPayload: &item})
}

// ItemUpdated emits item.updated{item, delta}. A consumer must never see
// item.updated for an id after that id's item.completed.
func (e *Emitter) ItemUpdated(turnID string, item Item, delta string) {
	e.emit(Event{Type: EventItemUpdated, TurnID: turnID, ItemPayload: &item, Delta: delta})
}

// ItemCompleted emits item.completed{item}.
func (e *Emitter) ItemCompleted(turnID string, item Item) {
	e.emit(Event{Type: EventItemCompleted, TurnID: turnID, ItemPayload: &item})
}

func (e *Emitter) emit(ev Event) {
	ev.Version = SchemaVersion
	ev.ThreadID = e.threadID
	ev.Seq = e.next()
	ev.Timestamp = time.Now()
	e.sink.Emit(ev)
}

// ChanSink is a bounded-channel Sink implementation for a consumer loop
// that drains events on its own goroutine. cmd/vtcode does not use it: it
// fans events out through a MultiSink to the terminal renderer and the
// trajectory log. Tests use SliceSink.
type ChanSink struct {
	ch chan Event
}

// NewChanSink returns a ChanSink with the given buffer capacity.
func NewChanSink(capacity int) *ChanSink {
	return &ChanSink{ch: make(chan Event, capacity)}
}

// Emit implements Sink. It blocks (cooperative backpressure) once the
// buffer is full.
func (c *ChanSink) Emit(e Event) { c.ch <- e }

// Events exposes the receive side for a consumer loop.
func (c *ChanSink) Events() <-chan Event { return c.ch }

// Close closes the underlying channel. Must be called at most once.
func (c *ChanSink) Close() { close(c.ch) }

// SliceSink collects events in memory, for tests that assert on the full
// emitted sequence.
type SliceSink struct {
	Events []Event
}

// Emit implements Sink.
func (s *SliceSink) Emit(e Event) { s.Events = append(s.Events, e) }

// MultiSink fans one emitted stream out to several sinks in order, e.g.
// the interactive UI and the on-disk trajectory log.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a Sink that forwards every event to each of sinks,
// in order.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

func (m *MultiSink) Emit(e Event) {
	for _, s := range m.sinks {
		s.Emit(e)
	}
}
