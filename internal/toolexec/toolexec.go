// Package toolexec implements the Tool Executor (spec.md section 4.G):
// it converts a named tool call with a typed parameter map into a
// service-level operation, returning a structured ToolResult. Grounded on
// vigil's internal/tools.Registry (name-keyed handler map) and
// internal/triage/engine.go's dispatch loop (lookup → execute → wrap
// errors), generalized with param validation, a safety veto, and a
// deadline per spec.md's additions.
package toolexec

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Status is the outcome of a single tool execution.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusError         Status = "error"
	StatusTimeout       Status = "timeout"
	StatusVetoed        Status = "vetoed"
	StatusNotFound      Status = "not_found"
	StatusInvalidParams Status = "invalid_params"
)

// ToolResult is the structured outcome returned to the caller (voice
// coordinator or an HTTP API), never a raw error.
type ToolResult struct {
	Tool      string
	Status    Status
	Data      any
	Error     string
	Reasons   []string // populated on StatusVetoed or StatusInvalidParams
	ElapsedMs int64
}

// ParamType is the declared type of a tool parameter, used for the
// lightweight validation spec.md section 4.G step 2 requires ("ill-typed"
// detection) without requiring a full JSON Schema dependency.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
	ParamAny    ParamType = "any"
)

// ParamSpec declares one parameter a handler accepts.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
}

// HandlerFunc performs the tool's actual work. It should return a plain
// error for unexpected failures (wrapped as StatusError) and may return a
// domain value as the first result (becomes ToolResult.Data).
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

// Handler is a single registered tool.
type Handler struct {
	Name          string
	Description   string // surfaced to the LLM tool-calling turn (internal/voice)
	Params        []ParamSpec
	MotionCausing bool // consults the Safety Monitor before running, per spec.md section 4.G step 3
	Fn            HandlerFunc
}

// SafetyChecker is the minimal surface the executor needs from the Safety
// Monitor: whether observing is currently safe, and why not if it isn't.
// Kept as a narrow interface so toolexec doesn't need the full
// internal/safety import surface wired through every handler.
type SafetyChecker interface {
	SafeToObserve() (bool, []string)
}

// LogEntry is one record in the execution log (spec.md section 4.G step
// 6).
type LogEntry struct {
	Tool      string
	At        time.Time
	Status    Status
	ElapsedMs int64
	Error     string
}

// Executor dispatches named tool calls to registered handlers.
type Executor struct {
	handlers map[string]*Handler
	safety   SafetyChecker
	deadline time.Duration
	logger   log.Logger

	logMu sync.Mutex
	log   []LogEntry
}
