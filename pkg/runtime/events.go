package runtime

import "time"

// Event types pushed to the client connection. The envelope on the
// wire is {type, ...payload}.
const (
	EventStatusResponse   = "statusResponse"
	EventInitConnection   = "agentInitWebsocketConnection"
	EventThinking         = "agentThinking"
	EventToolCall         = "toolCall"
	EventToolCallUpdate   = "toolCallUpdate"
	EventToolUsageSummary = "toolUsageSummary"
	EventWaitingOnInput   = "WAITING_ON_INPUT"
	EventFailure          = "wssFailure"
)

// Event is a server-to-client message envelope
type Event struct {
	Type     string        `json:"type"`
	Content  interface{}   `json:"content,omitempty"`
	Question string        `json:"question,omitempty"`
	ToolCall *ToolCall     `json:"toolCall,omitempty"`
	Summary  *UsageSummary `json:"summary,omitempty"`
}

// Emitter delivers events to the session's connection. Delivery is
// best-effort; the runtime never blocks on it.
type Emitter interface {
	Emit(event Event)
}

// ToolCallStatus tracks a ledger entry's lifecycle
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallExecuting ToolCallStatus = "executing"
	ToolCallComplete  ToolCallStatus = "complete"
	ToolCallError     ToolCallStatus = "error"
)

// ToolCall is one entry in the session's append-only tool ledger.
// Only Status is mutated after creation.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
	Status     ToolCallStatus         `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
}

// UsageSummary aggregates the ledger by terminal status
type UsageSummary struct {
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Errored  int `json:"errored"`
}

// nopEmitter drops all events
type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}
