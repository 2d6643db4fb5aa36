package toolexec

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// DefaultDeadline is the per-handler timeout when NewExecutor isn't given
// one (spec.md section 4.G: "Runs the handler under a deadline (default
// 30 s)").
const DefaultDeadline = 30 * time.Second

// NewExecutor constructs an Executor. safety and logger may be nil; a
// nil/zero deadline falls back to DefaultDeadline.
func NewExecutor(safety SafetyChecker, deadline time.Duration, logger log.Logger) *Executor {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Executor{
		handlers: make(map[string]*Handler),
		safety:   safety,
		deadline: deadline,
		logger:   logger,
	}
}

// Register adds a handler, keyed by its Name. Re-registering the same
// name replaces the previous handler.
func (e *Executor) Register(h Handler) {
	e.handlers[h.Name] = &h
}

// Execute looks up name, validates params, consults the safety veto for
// motion-causing tools, runs the handler under the configured deadline,
// and returns a structured ToolResult — never propagates an error to the
// caller (spec.md section 4.G's six dispatch steps).
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any) ToolResult {
	start := time.Now()
	result := e.execute(ctx, name, params)
	result.Tool = name
	result.ElapsedMs = time.Since(start).Milliseconds()
	e.appendLog(LogEntry{Tool: name, At: start, Status: result.Status, ElapsedMs: result.ElapsedMs, Error: result.Error})
	return result
}

func (e *Executor) execute(ctx context.Context, name string, params map[string]any) ToolResult {
	h, ok := e.handlers[name]
	if !ok {
		return ToolResult{Status: StatusNotFound, Error: fmt.Sprintf("unknown tool %q", name)}
	}

	if missing, badType := validateParams(h.Params, params); missing != "" || badType != "" {
		reason := missing
		if reason == "" {
			reason = badType
		}
		return ToolResult{Status: StatusInvalidParams, Error: reason, Reasons: []string{reason}}
	}

	if h.MotionCausing && e.safety != nil {
		if safe, reasons := e.safety.SafeToObserve(); !safe {
			return ToolResult{Status: StatusVetoed, Reasons: reasons, Error: "vetoed by safety monitor"}
		}
	}

	return e.runWithDeadline(ctx, h, params)
}

func (e *Executor) runWithDeadline(ctx context.Context, h *Handler, params map[string]any) ToolResult {
	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool handler panicked: %v", r)}
			}
		}()
		data, err := h.Fn(ctx, params)
		done <- outcome{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return ToolResult{Status: StatusTimeout, Error: ctx.Err().Error()}
	case o := <-done:
		if o.err != nil {
			return ToolResult{Status: StatusError, Error: o.err.Error()}
		}
		return ToolResult{Status: StatusSuccess, Data: o.data}
	}
}

// validateParams checks required-field presence and, where declared, the
// Go kind behind the value. Returns a non-empty reason string for either
// failure mode, empty strings on success.
func validateParams(specs []ParamSpec, params map[string]any) (missing string, badType string) {
	for _, spec := range specs {
		v, present := params[spec.Name]
		if !present || v == nil {
			if spec.Required {
				return fmt.Sprintf("missing required parameter %q", spec.Name), ""
			}
			continue
		}
		if !typeMatches(spec.Type, v) {
			return "", fmt.Sprintf("parameter %q has wrong type, want %s", spec.Name, spec.Type)
		}
	}
	return "", ""
}

func typeMatches(want ParamType, v any) bool {
	switch want {
	case ParamAny, "":
		return true
	case ParamString:
		_, ok := v.(string)
		return ok
	case ParamBool:
		_, ok := v.(bool)
		return ok
	case ParamNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		default:
			return false
		}
	default:
		return true
	}
}

func (e *Executor) appendLog(entry LogEntry) {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	e.log = append(e.log, entry)
}

// ExecutionLog returns a snapshot of every recorded execution, oldest
// first.
func (e *Executor) ExecutionLog() []LogEntry {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	out := make([]LogEntry, len(e.log))
	copy(out, e.log)
	return out
}

// Registered returns a copy of every currently registered handler
// (excluding Fn's call semantics — callers use this to build an LLM tool
// catalog, not to invoke handlers directly). Safe to call concurrently
// with Execute since registration happens once at startup.
func (e *Executor) Registered() []Handler {
	out := make([]Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		out = append(out, *h)
	}
	return out
}
