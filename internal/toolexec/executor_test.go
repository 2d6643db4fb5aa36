package toolexec

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSafety struct {
	safe    bool
	reasons []string
}

func (f fakeSafety) SafeToObserve() (bool, []string) { return f.safe, f.reasons }

func TestExecuteUnknownToolReturnsNotFound(t *testing.T) {
	e := NewExecutor(nil, 0, nil)
	res := e.Execute(context.Background(), "does_not_exist", nil)
	if res.Status != StatusNotFound {
		t.Fatalf("expected not_found, got %s", res.Status)
	}
}

func TestExecuteMissingRequiredParam(t *testing.T) {
	e := NewExecutor(nil, 0, nil)
	e.Register(Handler{
		Name:   "goto_coordinates",
		Params: []ParamSpec{{Name: "ra", Type: ParamNumber, Required: true}, {Name: "dec", Type: ParamNumber, Required: true}},
		Fn:     func(ctx context.Context, params map[string]any) (any, error) { return "ok", nil },
	})
	res := e.Execute(context.Background(), "goto_coordinates", map[string]any{"ra": 12.5})
	if res.Status != StatusInvalidParams {
		t.Fatalf("expected invalid_params, got %s", res.Status)
	}
}

func TestExecuteWrongParamType(t *testing.T) {
	e := NewExecutor(nil, 0, nil)
	e.Register(Handler{
		Name:   "goto_object",
		Params: []ParamSpec{{Name: "object_name", Type: ParamString, Required: true}},
		Fn:     func(ctx context.Context, params map[string]any) (any, error) { return nil, nil },
	})
	res := e.Execute(context.Background(), "goto_object", map[string]any{"object_name": 42})
	if res.Status != StatusInvalidParams {
		t.Fatalf("expected invalid_params for wrong type, got %s", res.Status)
	}
}

func TestExecuteVetoedWhenUnsafe(t *testing.T) {
	e := NewExecutor(fakeSafety{safe: false, reasons: []string{"wind too high"}}, 0, nil)
	called := false
	e.Register(Handler{
		Name:          "unpark_telescope",
		MotionCausing: true,
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			called = true
			return nil, nil
		},
	})
	res := e.Execute(context.Background(), "unpark_telescope", nil)
	if res.Status != StatusVetoed {
		t.Fatalf("expected vetoed, got %s", res.Status)
	}
	if len(res.Reasons) != 1 || res.Reasons[0] != "wind too high" {
		t.Fatalf("expected veto reasons surfaced, got %v", res.Reasons)
	}
	if called {
		t.Fatalf("expected handler not invoked when vetoed")
	}
}

func TestExecuteAllowedWhenSafe(t *testing.T) {
	e := NewExecutor(fakeSafety{safe: true}, 0, nil)
	e.Register(Handler{
		Name:          "unpark_telescope",
		MotionCausing: true,
		Fn:            func(ctx context.Context, params map[string]any) (any, error) { return "unparked", nil },
	})
	res := e.Execute(context.Background(), "unpark_telescope", nil)
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.Data != "unparked" {
		t.Fatalf("expected handler result surfaced, got %v", res.Data)
	}
}

func TestExecuteHandlerError(t *testing.T) {
	e := NewExecutor(nil, 0, nil)
	e.Register(Handler{
		Name: "get_mount_status",
		Fn:   func(ctx context.Context, params map[string]any) (any, error) { return nil, errors.New("connection lost") },
	})
	res := e.Execute(context.Background(), "get_mount_status", nil)
	if res.Status != StatusError {
		t.Fatalf("expected error, got %s", res.Status)
	}
	if res.Error != "connection lost" {
		t.Fatalf("expected handler error text surfaced, got %q", res.Error)
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := NewExecutor(nil, 10*time.Millisecond, nil)
	e.Register(Handler{
		Name: "slow_tool",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			select {
			case <-time.After(time.Second):
				return "too slow", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	res := e.Execute(context.Background(), "slow_tool", nil)
	if res.Status != StatusTimeout {
		t.Fatalf("expected timeout, got %s", res.Status)
	}
}

func TestExecuteHandlerPanicIsolated(t *testing.T) {
	e := NewExecutor(nil, 0, nil)
	e.Register(Handler{
		Name: "panicky",
		Fn:   func(ctx context.Context, params map[string]any) (any, error) { panic("boom") },
	})
	res := e.Execute(context.Background(), "panicky", nil)
	if res.Status != StatusError {
		t.Fatalf("expected panic recovered as error, got %s", res.Status)
	}
}

func TestExecutionLogRecordsEveryCall(t *testing.T) {
	e := NewExecutor(nil, 0, nil)
	e.Register(Handler{Name: "noop", Fn: func(ctx context.Context, params map[string]any) (any, error) { return nil, nil }})
	e.Execute(context.Background(), "noop", nil)
	e.Execute(context.Background(), "unknown", nil)

	log := e.ExecutionLog()
	if len(log) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(log))
	}
	if log[0].Status != StatusSuccess || log[1].Status != StatusNotFound {
		t.Fatalf("unexpected log statuses: %v", log)
	}
}
