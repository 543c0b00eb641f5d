package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingCommandID is returned when a result report carries no command ID.
// The message is part of the wire contract.
var ErrMissingCommandID = errors.New("Missing command_id")

// ValidateCommandResult parses and validates a raw result report.
func ValidateCommandResult(raw []byte) (*CommandResultRequest, error) {
	var req CommandResultRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if req.CommandID == "" {
		return nil, ErrMissingCommandID
	}

	return &req, nil
}

// UnmarshalJSON accepts the loose shapes executors send: a command ID of
// any truthy JSON type (non-strings keep their literal text), an error of
// any type and a timestamp as a number or numeric string. Anything else in
// the timestamp is dropped so the server time is used.
func (r *CommandResultRequest) UnmarshalJSON(data []byte) error {
	var wire struct {
		CommandID json.RawMessage `json:"command_id"`
		Result    json.RawMessage `json:"result"`
		Error     json.RawMessage `json:"error"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = CommandResultRequest{
		CommandID: looseString(wire.CommandID),
		Result:    wire.Result,
		Timestamp: looseNumber(wire.Timestamp),
	}
	if msg := looseString(wire.Error); msg != "" {
		r.Error = &msg
	}
	return nil
}

// looseString renders a truthy JSON value as a string; falsy values give "".
func looseString(raw json.RawMessage) string {
	if !Truthy(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func looseNumber(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

// Truthy reports whether a raw JSON value would count as a successful
// result: anything except null, false, 0, "", [] and {}.
func Truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}

	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	}
	return true
}
