// Package orchestrator composes NIGHTWATCH's domain services into a
// single running process, grounded on vigil's cmd/server/main.go for the
// overall lifecycle shape (config -> registry -> services -> HTTP
// listener -> wait-for-signal -> drain -> budgeted shutdown) and on
// original_source/nightwatch/orchestrator.py's exported surface
// (Orchestrator, ServiceRegistry, SessionState, OrchestratorMetrics,
// EventType) for naming. Unlike vigil, which builds everything inline in
// main, the composition root lives here as a reusable Orchestrator type
// so cmd/nightwatchd stays a thin flag/signal/logging shim.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/nightwatch/internal/alerts"
	"github.com/linnemanlabs/nightwatch/internal/catalog"
	"github.com/linnemanlabs/nightwatch/internal/cfg"
	"github.com/linnemanlabs/nightwatch/internal/events"
	"github.com/linnemanlabs/nightwatch/internal/mount"
	"github.com/linnemanlabs/nightwatch/internal/postgres"
	"github.com/linnemanlabs/nightwatch/internal/registry"
	"github.com/linnemanlabs/nightwatch/internal/safety"
	"github.com/linnemanlabs/nightwatch/internal/sensors"
	"github.com/linnemanlabs/nightwatch/internal/session"
	"github.com/linnemanlabs/nightwatch/internal/store"
	"github.com/linnemanlabs/nightwatch/internal/store/memstore"
	"github.com/linnemanlabs/nightwatch/internal/store/pgstore"
	"github.com/linnemanlabs/nightwatch/internal/toolexec"
	"github.com/linnemanlabs/nightwatch/internal/voice"
	"github.com/linnemanlabs/nightwatch/internal/wyoming"
)

// Orchestrator owns every domain service's lifecycle and exposes the
// optional HTTP API that surfaces session/tool/health state.
type Orchestrator struct {
	cfg    cfg.Config
	logger log.Logger

	Registry *registry.Registry
	Bus      *events.Bus
	Safety   *safety.Monitor
	Alerts   *alerts.Manager
	Executor *toolexec.Executor
	Sessions *session.Manager
	History  store.History
	Voice    *voice.Coordinator

	mountClient mount.Client
	weather     *sensors.WeatherAdapter

	metrics *Metrics

	sttClient *wyoming.Client
	ttsClient *wyoming.Client
}

// New builds every domain service named in SPEC_FULL.md section 4.H from
// c, registering each into Registry as it comes up. Services whose
// configuration is absent (no mount address, no Wyoming addresses, ...)
// are simply left nil; toolexec.Deps and voice.Coordinator tolerate that,
// reporting a clear error at call time instead of panicking.
func New(ctx context.Context, c cfg.Config, logger log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.Nop()
	}

	o := &Orchestrator{
		cfg:      c,
		logger:   logger,
		Registry: registry.New(),
		metrics:  NewMetrics(),
	}
	o.Bus = events.New(func(kind events.Kind, err error) {
		logger.Error(context.Background(), err, "event listener error", "kind", string(kind))
	})

	o.Sessions = session.NewManager(c.DataDir)
	_ = o.Registry.Register("session", o.Sessions, true)

	cat := catalog.New()
	_ = o.Registry.Register("catalog", cat, true)

	if c.MountAddr != "" {
		o.mountClient = mount.NewTCP(c.MountAddr)
		_ = o.Registry.Register("mount", o.mountClient, false)
	}

	var weatherCell *sensors.Cell[sensors.WeatherSample]
	if c.EcowittHost != "" {
		eco := sensors.NewEcowittClient(c.EcowittHost, c.EcowittPort)
		o.weather = sensors.NewWeatherAdapter(eco, sensors.DefaultWeatherPollInterval, logger)
		weatherCell = o.weather.Cell()
		_ = o.Registry.Register("weather", o.weather, false)
	}

	o.Safety = safety.NewMonitor(safety.DefaultThresholds(), o.mountClient, nil, weatherCell, nil, nil, nil, o.Bus, logger)
	_ = o.Registry.Register("safety", o.Safety, true)

	alertsCfg := alerts.DefaultConfig()
	if c.AlertWebhookURL != "" {
		alertsCfg.WebhookEnabled = true
		alertsCfg.WebhookURLs = append(alertsCfg.WebhookURLs, c.AlertWebhookURL)
	}
	o.Alerts = alerts.NewManager(alertsCfg, logger, o.Bus)
	_ = o.Registry.Register("alerts", o.Alerts, true)

	hist, err := newHistory(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	o.History = hist
	_ = o.Registry.Register("history", o.History, false)

	o.Alerts.RegisterCallback(func(a alerts.Alert) {
		if o.History == nil {
			return
		}
		rec := &store.AlertRecord{
			ID:             a.ID,
			Level:          a.Level.String(),
			Source:         a.Source,
			Message:        a.Message,
			At:             a.At,
			Acknowledged:   a.Acknowledged,
			AcknowledgedBy: a.AcknowledgedBy,
			AcknowledgedAt: a.AcknowledgedAt,
		}
		if err := o.History.PutAlert(context.Background(), rec); err != nil {
			logger.Error(context.Background(), err, "history alert write failed")
		}
	})

	o.Executor = toolexec.NewExecutor(o.Safety, 30*time.Second, logger)
	toolexec.RegisterCoreTools(o.Executor, toolexec.Deps{
		Mount:       o.mountClient,
		Catalog:     cat,
		Safety:      o.Safety,
		Sessions:    o.Sessions,
		WeatherCell: weatherCell,
	})
	_ = o.Registry.Register("toolexec", o.Executor, true)

	if c.STTAddr != "" && c.TTSAddr != "" && c.AnthropicAPIKey != "" {
		sttClient, err := wyoming.Dial(ctx, c.STTAddr)
		if err != nil {
			return nil, fmt.Errorf("stt dial: %w", err)
		}
		ttsClient, err := wyoming.Dial(ctx, c.TTSAddr)
		if err != nil {
			_ = sttClient.Close()
			return nil, fmt.Errorf("tts dial: %w", err)
		}
		provider, err := voice.NewAnthropicProviderFromAPIKey(c.AnthropicAPIKey, c.AnthropicModel)
		if err != nil {
			_ = sttClient.Close()
			_ = ttsClient.Close()
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		o.sttClient = sttClient
		o.ttsClient = ttsClient
		o.Voice = voice.NewCoordinator(sttClient, ttsClient, provider, o.Executor, logger, voice.Config{})
		_ = o.Registry.Register("voice", o.Voice, false)
	}

	return o, nil
}

func newHistory(ctx context.Context, c cfg.Config, logger log.Logger) (store.History, error) {
	if c.DatabaseURL == "" {
		logger.Info(ctx, "using in-memory session/alert history store (no database-url configured)")
		return memstore.New(), nil
	}
	pool, err := postgres.NewPool(ctx, c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	s, err := pgstore.NewWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore init: %w", err)
	}
	logger.Info(ctx, "using postgres session/alert history store")
	return s, nil
}

// Start runs the startup sequence (spec.md section 4.H): bring up the
// weather adapter, connect the mount, start a new session, start the
// safety monitor's evaluation loop, and mark services running in
// Registry. The voice clients are dialed in New, not here.
func (o *Orchestrator) Start(ctx context.Context) error {
	now := time.Now()

	if o.weather != nil {
		go o.weather.Run(ctx)
		o.Registry.SetStatus("weather", registry.StatusRunning, "")
		o.metrics.MarkServiceStart("weather", now)
	}

	if o.mountClient != nil {
		if err := o.mountClient.Connect(ctx); err != nil {
			o.Registry.SetStatus("mount", registry.StatusError, err.Error())
			o.metrics.ObserveServiceError("mount")
			o.logger.Error(ctx, err, "mount connect failed")
		} else {
			o.Registry.SetStatus("mount", registry.StatusRunning, "")
			o.metrics.MarkServiceStart("mount", now)
		}
	}

	if _, err := o.Sessions.Start(""); err != nil {
		return fmt.Errorf("session start: %w", err)
	}
	o.Registry.SetStatus("session", registry.StatusRunning, "")
	o.metrics.MarkServiceStart("session", now)
	o.Bus.Emit(ctx, events.Event{Kind: events.KindSessionStarted, Source: "orchestrator", At: time.Now()})

	go o.Safety.Run(ctx, 10*time.Second, func() *float64 { return nil })
	o.Registry.SetStatus("safety", registry.StatusRunning, "")
	o.metrics.MarkServiceStart("safety", now)

	o.Registry.SetStatus("alerts", registry.StatusRunning, "")
	o.metrics.MarkServiceStart("alerts", now)
	o.Registry.SetStatus("toolexec", registry.StatusRunning, "")
	o.metrics.MarkServiceStart("toolexec", now)
	o.Registry.SetStatus("catalog", registry.StatusRunning, "")
	o.metrics.MarkServiceStart("catalog", now)
	if o.History != nil {
		o.Registry.SetStatus("history", registry.StatusRunning, "")
		o.metrics.MarkServiceStart("history", now)
	}

	if o.Voice != nil {
		o.Registry.SetStatus("voice", registry.StatusRunning, "")
		o.metrics.MarkServiceStart("voice", now)
	}

	if !o.Registry.AllRequiredRunning() {
		return fmt.Errorf("not all required services reported running")
	}

	o.Bus.Emit(ctx, events.Event{Kind: events.KindServiceStarted, Source: "orchestrator", Message: "startup complete", At: time.Now()})
	return nil
}

// Shutdown stops every running service. When safe is true (the normal
// shutdown path), the mount is parked first; when false (emergency/forced),
// the park is skipped. Both paths then stop voice, close the STT/TTS
// clients, disconnect the mount, end the session (which writes its log)
// and record it in History. No enclosure is closed: the orchestrator
// holds no enclosure handle.
func (o *Orchestrator) Shutdown(ctx context.Context, safe bool) error {
	o.Bus.Emit(ctx, events.Event{Kind: events.KindShutdownInitiated, Source: "orchestrator", At: time.Now()})

	if safe && o.mountClient != nil {
		if err := o.mountClient.Park(ctx); err != nil {
			o.logger.Error(ctx, err, "park on shutdown failed")
		}
	}

	if o.Voice != nil {
		o.Voice.Stop()
	}
	if o.sttClient != nil {
		_ = o.sttClient.Close()
	}
	if o.ttsClient != nil {
		_ = o.ttsClient.Close()
	}

	if o.mountClient != nil {
		if err := o.mountClient.Disconnect(); err != nil {
			o.logger.Error(ctx, err, "mount disconnect failed")
		}
	}

	ended, err := o.Sessions.End()
	if err != nil {
		o.logger.Error(ctx, err, "session end failed")
	}
	o.Bus.Emit(ctx, events.Event{Kind: events.KindSessionEnded, Source: "orchestrator", At: time.Now()})

	// Alert history has no durable backing store by default (spec.md
	// section 6); History is only the optional Postgres/in-memory
	// enrichment (SPEC_FULL.md section 1.2), so the session log is the
	// one record every shutdown path writes here.
	if o.History != nil && ended != nil {
		rec := &store.SessionRecord{
			ID: ended.ID, StartedAt: ended.StartedAt, EndedAt: ended.EndedAt,
			ImagesCaptured: ended.ImagesCaptured, TotalExposureSec: ended.TotalExposureSec,
			ErrorCount: ended.ErrorCount, LastError: ended.LastError,
		}
		if ended.CurrentTarget != nil {
			rec.TargetName = ended.CurrentTarget.Name
		}
		if err := o.History.PutSession(ctx, rec); err != nil {
			o.logger.Error(ctx, err, "history session write failed")
		}
	}
	if ended != nil {
		o.metrics.ObserveSessionEnd(ended.ImagesCaptured, ended.TotalExposureSec)
	}

	if closer, ok := o.History.(interface{ Close() }); ok {
		closer.Close()
	}

	return nil
}

// Metrics exposes the orchestrator's Prometheus collectors for callers
// wiring a registry (cmd/nightwatchd registers them on the ops listener).
func (o *Orchestrator) Metrics() *Metrics { return o.metrics }

// ExecuteTool runs a tool through Executor and records its outcome and
// latency on Metrics, so every invocation path (voice coordinator, HTTP
// API) is instrumented identically.
func (o *Orchestrator) ExecuteTool(ctx context.Context, name string, params map[string]any) toolexec.ToolResult {
	start := time.Now()
	result := o.Executor.Execute(ctx, name, params)

	var err error
	if result.Status != toolexec.StatusSuccess {
		err = fmt.Errorf("%s: %s", result.Status, result.Error)
	}
	o.metrics.ObserveCommand(name, time.Since(start), err)
	return result
}
