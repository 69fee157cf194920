// Package tools executes model-issued function calls against local
// collaborators and turns every outcome into a result string.
package tools

import (
	"context"
	"encoding/json"
)

// Error codes carried by ToolError.
const (
	CodeInvalidParams    = "INVALID_PARAMS"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotConfigured    = "NOT_CONFIGURED"
	CodeUpstreamError    = "UPSTREAM_ERROR"
	CodeDeviceError      = "DEVICE_ERROR"
	CodeUnknownTool      = "UNKNOWN_TOOL"
	CodeTimeout          = "TIMEOUT"
	CodePanic            = "PANIC"
)

// Tool is one capability the model may call.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema of the arguments object.
	Parameters() json.RawMessage
	// Active reports whether the tool's collaborators are configured.
	Active() bool
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolError represents a structured error from a tool
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func NewToolError(code, message string) *ToolError {
	return &ToolError{Code: code, Message: message}
}

func (e *ToolError) WithDetail(key string, value any) *ToolError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Call is a function call requested by the model.
type Call struct {
	ID        string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Result is what goes back to the model for one Call.
type Result struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	Success bool   `json:"success"`
	Err     error  `json:"-"`
}

func okJSON(fields map[string]any) string {
	payload := map[string]any{"success": true}
	for k, v := range fields {
		payload[k] = v
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func failureJSON(err error) string {
	payload := map[string]any{"success": false, "error": err.Error()}
	if te, ok := err.(*ToolError); ok {
		payload["error"] = te.Message
		payload["code"] = te.Code
		if len(te.Details) > 0 {
			payload["details"] = te.Details
		}
	}
	b, mErr := json.Marshal(payload)
	if mErr != nil {
		return `{"success":false,"error":"tool failed"}`
	}
	return string(b)
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewToolError(CodeInvalidParams, "failed to parse arguments").WithDetail("error", err.Error())
	}
	return nil
}
