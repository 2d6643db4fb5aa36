package toolexec

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/nightwatch/internal/catalog"
	"github.com/linnemanlabs/nightwatch/internal/coords"
	"github.com/linnemanlabs/nightwatch/internal/mount"
	"github.com/linnemanlabs/nightwatch/internal/safety"
	"github.com/linnemanlabs/nightwatch/internal/sensors"
	"github.com/linnemanlabs/nightwatch/internal/session"
)

// Deps are the domain services the core tool catalog (spec.md section 6)
// dispatches into. Any field may be nil; a handler whose dependency is
// nil returns a StatusError explaining the missing wiring rather than
// panicking.
type Deps struct {
	Mount       mount.Client
	Catalog     *catalog.Catalog
	Safety      *safety.Monitor
	Sessions    *session.Manager
	WeatherCell *sensors.Cell[sensors.WeatherSample]
}

// RegisterCoreTools registers the closed tool set named in spec.md
// section 6 against deps. Safe to call with partially-populated Deps;
// dependent tools report StatusError at call time instead of failing
// registration.
func RegisterCoreTools(e *Executor, deps Deps) {
	e.Register(Handler{
		Name:        "goto_object",
		Description: "Resolve an object name or catalog designation and slew the mount to it.",
		Params: []ParamSpec{{Name: "object_name", Type: ParamString, Required: true}},
		MotionCausing: true,
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Catalog == nil || deps.Mount == nil {
				return nil, fmt.Errorf("goto_object: catalog or mount not configured")
			}
			name, _ := params["object_name"].(string)
			obj, err := deps.Catalog.Resolve(name)
			if err != nil {
				return nil, err
			}
			ra := coords.RA(obj.RAHours)
			dec := coords.Dec(obj.DecDegrees)
			if err := deps.Mount.GoToRADec(ctx, ra, dec); err != nil {
				return nil, err
			}
			return map[string]any{
				"catalog_id": obj.CatalogID,
				"name":       obj.Name,
				"ra_hours":   obj.RAHours,
				"dec_degrees": obj.DecDegrees,
			}, nil
		},
	})

	e.Register(Handler{
		Name:        "goto_coordinates",
		Description: "Slew the mount to explicit right ascension and declination.",
		Params: []ParamSpec{
			{Name: "ra", Type: ParamNumber, Required: true},
			{Name: "dec", Type: ParamNumber, Required: true},
		},
		MotionCausing: true,
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Mount == nil {
				return nil, fmt.Errorf("goto_coordinates: mount not configured")
			}
			ra := coords.RA(toFloat(params["ra"]))
			dec := coords.Dec(toFloat(params["dec"]))
			if err := deps.Mount.GoToRADec(ctx, ra, dec); err != nil {
				return nil, err
			}
			return map[string]any{"ra": float64(ra), "dec": float64(dec)}, nil
		},
	})

	e.Register(Handler{
		Name:        "park_telescope",
		Description: "Park the mount at its stored position.",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Mount == nil {
				return nil, fmt.Errorf("park_telescope: mount not configured")
			}
			return nil, deps.Mount.Park(ctx)
		},
	})

	e.Register(Handler{
		Name:          "unpark_telescope",
		Description:   "Unpark the mount so it can slew and track.",
		MotionCausing: true,
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Mount == nil {
				return nil, fmt.Errorf("unpark_telescope: mount not configured")
			}
			return nil, deps.Mount.Unpark(ctx)
		},
	})

	e.Register(Handler{
		Name:        "get_mount_status",
		Description: "Return the mount's current position and state.",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Mount == nil {
				return nil, fmt.Errorf("get_mount_status: mount not configured")
			}
			return deps.Mount.GetStatus(ctx)
		},
	})

	e.Register(Handler{
		Name:        "stop_mount",
		Description: "Halt all mount motion immediately.",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Mount == nil {
				return nil, fmt.Errorf("stop_mount: mount not configured")
			}
			return nil, deps.Mount.Stop(ctx)
		},
	})

	e.Register(Handler{
		Name:        "get_weather",
		Description: "Return the most recently observed weather sample.",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.WeatherCell == nil {
				return nil, fmt.Errorf("get_weather: no weather source configured")
			}
			sample := deps.WeatherCell.Latest()
			if sample == nil {
				return nil, fmt.Errorf("get_weather: no sample received yet")
			}
			return sample, nil
		},
	})

	e.Register(Handler{
		Name:        "is_weather_safe",
		Description: "Report whether current weather allows observing, with reasons.",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Safety == nil {
				return nil, fmt.Errorf("is_weather_safe: safety monitor not configured")
			}
			status := deps.Safety.LastStatus()
			return map[string]any{"weather_ok": status.WeatherOK, "reasons": status.Reasons}, nil
		},
	})

	e.Register(Handler{
		Name:        "get_safety_status",
		Description: "Report the safety monitor's current action and reasons.",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Safety == nil {
				return nil, fmt.Errorf("get_safety_status: safety monitor not configured")
			}
			status := deps.Safety.LastStatus()
			return map[string]any{"action": string(status.Action), "is_safe": status.IsSafe, "reasons": status.Reasons}, nil
		},
	})

	e.Register(Handler{
		Name:        "start_session",
		Description: "Begin a new observing session.",
		Params: []ParamSpec{{Name: "session_id", Type: ParamString, Required: false}},
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Sessions == nil {
				return nil, fmt.Errorf("start_session: session manager not configured")
			}
			id, _ := params["session_id"].(string)
			return deps.Sessions.Start(id)
		},
	})

	e.Register(Handler{
		Name:        "end_session",
		Description: "Close the current observing session.",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Sessions == nil {
				return nil, fmt.Errorf("end_session: session manager not configured")
			}
			return deps.Sessions.End()
		},
	})

	e.Register(Handler{
		Name:        "get_session_status",
		Description: "Return a snapshot of the current observing session.",
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			if deps.Sessions == nil {
				return nil, fmt.Errorf("get_session_status: session manager not configured")
			}
			return deps.Sessions.Current(), nil
		},
	})
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
