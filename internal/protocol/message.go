package protocol

import (
	"encoding/json"
	"fmt"
)

// Stream event types, server → executor.
const (
	TypeConnected            = "connected"
	TypeCommand              = "command"
	TypeAllCommandsCompleted = "all_commands_completed"
)

// Event is the envelope for every message pushed over a command stream.
type Event struct {
	Type         string       `json:"type"`
	ConnectionID string       `json:"connection_id,omitempty"`
	ID           string       `json:"id,omitempty"`
	Data         *CommandData `json:"data,omitempty"`
}

// CommandData is the action the executor should perform.
type CommandData struct {
	Type     string  `json:"type"`
	Selector *string `json:"selector"`
	Value    *string `json:"value"`
}

// NewConnectedEvent is sent once when a stream opens.
func NewConnectedEvent(connectionID string) Event {
	return Event{Type: TypeConnected, ConnectionID: connectionID}
}

// NewCommandEvent wraps one command for delivery.
func NewCommandEvent(id, cmdType string, selector, value *string) Event {
	return Event{
		Type: TypeCommand,
		ID:   id,
		Data: &CommandData{Type: cmdType, Selector: selector, Value: value},
	}
}

// NewAllCompletedEvent is sent once before the server closes the stream.
func NewAllCompletedEvent() Event {
	return Event{Type: TypeAllCommandsCompleted}
}

// Encode marshals the event to JSON.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return data, nil
}

// Executor → server.

// CommandResultRequest is the body of a command result report.
type CommandResultRequest struct {
	CommandID string          `json:"command_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
	Timestamp *float64        `json:"timestamp,omitempty"`
}

// ErrorMessage returns the reported error text, or "" when none was sent.
func (r CommandResultRequest) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Succeeded reports whether the result payload is truthy.
func (r CommandResultRequest) Succeeded() bool {
	return Truthy(r.Result)
}

// Responses.

type HealthResponse struct {
	Status            string  `json:"status"`
	Server            string  `json:"server"`
	CommandsPending   int     `json:"commands_pending"`
	PendingCount      int     `json:"pending_count"`
	ActiveConnections int     `json:"active_connections"`
	Timestamp         float64 `json:"timestamp"`
}

type ReceivedResponse struct {
	Status string `json:"status"`
}

type ResetResponse struct {
	Status   string `json:"status"`
	Commands int    `json:"commands"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
