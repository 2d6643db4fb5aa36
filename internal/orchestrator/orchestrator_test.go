package orchestrator

import (
	"context"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/nightwatch/internal/cfg"
	"github.com/linnemanlabs/nightwatch/internal/store/memstore"
)

// minimalConfig leaves every optional service (mount, weather, voice,
// postgres history) unconfigured, so New only needs to succeed against
// the services every deployment carries: session, catalog, safety,
// alerts, toolexec, history.
func minimalConfig(t *testing.T) cfg.Config {
	t.Helper()
	return cfg.Config{
		DrainSeconds:          10,
		ShutdownBudgetSeconds: 20,
		APIPort:               8080,
		APIToken:              "test-token",
		DataDir:               t.TempDir(),
		AnthropicAPIKey:       "",
		AnthropicModel:        "claude-sonnet-4-20250514",
	}
}

func TestNewRegistersRequiredServicesWithoutOptionalConfig(t *testing.T) {
	ctx := context.Background()
	o, err := New(ctx, minimalConfig(t), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if o.mountClient != nil {
		t.Fatalf("expected mount client nil without MountAddr")
	}
	if o.weather != nil {
		t.Fatalf("expected weather adapter nil without EcowittHost")
	}
	if o.Voice != nil {
		t.Fatalf("expected voice coordinator nil without STT/TTS addrs")
	}
	if _, ok := o.History.(*memstore.Store); !ok {
		t.Fatalf("expected memstore.Store history without DatabaseURL, got %T", o.History)
	}

	for _, name := range []string{"session", "catalog", "safety", "alerts", "toolexec", "history"} {
		if _, ok := o.Registry.Get(name); !ok {
			t.Errorf("expected %q registered", name)
		}
	}
}

func TestStartMarksRequiredServicesRunning(t *testing.T) {
	ctx := context.Background()
	o, err := New(ctx, minimalConfig(t), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !o.Registry.AllRequiredRunning() {
		t.Fatalf("expected all required services running after Start")
	}
}

func TestShutdownWritesSessionToHistory(t *testing.T) {
	ctx := context.Background()
	o, err := New(ctx, minimalConfig(t), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sessionID := o.Sessions.Current().ID

	if err := o.Shutdown(ctx, true); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if o.Sessions.Current() != nil {
		t.Fatalf("expected no current session after Shutdown")
	}

	recs, err := o.History.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly one session record, got %d", len(recs))
	}
	if recs[0].ID != sessionID {
		t.Fatalf("expected session id %q, got %q", sessionID, recs[0].ID)
	}
	if recs[0].EndedAt.IsZero() {
		t.Fatalf("expected EndedAt to be set on the recorded session")
	}
}

func TestRaisedAlertsArePersistedToHistory(t *testing.T) {
	ctx := context.Background()
	o, err := New(ctx, minimalConfig(t), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	a, err := o.Alerts.RaiseFromTemplate(ctx, "rain_detected", "weather")
	if err != nil {
		t.Fatalf("RaiseFromTemplate: %v", err)
	}

	recs, err := o.History.ListAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != a.ID {
		t.Fatalf("expected one persisted alert with id %q, got %+v", a.ID, recs)
	}
	if recs[0].Acknowledged {
		t.Fatalf("expected newly raised alert to be unacknowledged in history")
	}

	if !o.Alerts.Acknowledge(a.ID, "operator") {
		t.Fatalf("expected Acknowledge to succeed")
	}

	recs, err = o.History.ListAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("ListAlerts after ack: %v", err)
	}
	if len(recs) != 1 || !recs[0].Acknowledged {
		t.Fatalf("expected history to reflect acknowledgement, got %+v", recs)
	}
}

func TestExecuteToolRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	o, err := New(ctx, minimalConfig(t), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result := o.ExecuteTool(ctx, "no-such-tool", nil)
	if result.Status == "" {
		t.Fatalf("expected a populated tool result status")
	}

	if m := o.Metrics(); m == nil {
		t.Fatalf("expected non-nil Metrics")
	}
}
