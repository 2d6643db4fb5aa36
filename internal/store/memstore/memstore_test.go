package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/linnemanlabs/nightwatch/internal/store"
	"github.com/linnemanlabs/nightwatch/internal/store/memstore"
)

func TestPutSessionUpsertsByID(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	rec := &store.SessionRecord{ID: "sess-1", StartedAt: base, TargetName: "M31", ImagesCaptured: 3}
	if err := s.PutSession(ctx, rec); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	updated := &store.SessionRecord{ID: "sess-1", StartedAt: base, TargetName: "M31", ImagesCaptured: 9, EndedAt: base.Add(time.Hour)}
	if err := s.PutSession(ctx, updated); err != nil {
		t.Fatalf("PutSession (update): %v", err)
	}

	sessions, err := s.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session after upsert, got %d", len(sessions))
	}
	if sessions[0].ImagesCaptured != 9 || sessions[0].EndedAt.IsZero() {
		t.Fatalf("expected updated record, got %+v", sessions[0])
	}
}

func TestListSessionsOrderedDescendingAndLimited(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	for i, id := range []string{"a", "b", "c"} {
		rec := &store.SessionRecord{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.PutSession(ctx, rec); err != nil {
			t.Fatalf("PutSession(%s): %v", id, err)
		}
	}

	sessions, err := s.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(sessions))
	}
	if sessions[0].ID != "c" || sessions[1].ID != "b" {
		t.Fatalf("expected most recent first, got %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestPutAlertUpsertsAcknowledgment(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	rec := &store.AlertRecord{ID: "alert-1", Level: "critical", Source: "weather", Message: "clouds", At: now}
	if err := s.PutAlert(ctx, rec); err != nil {
		t.Fatalf("PutAlert: %v", err)
	}

	ack := &store.AlertRecord{
		ID: "alert-1", Level: "critical", Source: "weather", Message: "clouds", At: now,
		Acknowledged: true, AcknowledgedBy: "operator", AcknowledgedAt: now.Add(time.Minute),
	}
	if err := s.PutAlert(ctx, ack); err != nil {
		t.Fatalf("PutAlert (ack): %v", err)
	}

	alerts, err := s.ListAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one alert after upsert, got %d", len(alerts))
	}
	if !alerts[0].Acknowledged || alerts[0].AcknowledgedBy != "operator" {
		t.Fatalf("expected acknowledgment to persist, got %+v", alerts[0])
	}
}

func TestListAlertsOrderedDescending(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	base := time.Now().Truncate(time.Second)
	for i, id := range []string{"x", "y", "z"} {
		rec := &store.AlertRecord{ID: id, Level: "info", Source: "test", Message: id, At: base.Add(time.Duration(i) * time.Minute)}
		if err := s.PutAlert(ctx, rec); err != nil {
			t.Fatalf("PutAlert(%s): %v", id, err)
		}
	}

	alerts, err := s.ListAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	if alerts[0].ID != "z" || alerts[1].ID != "y" || alerts[2].ID != "x" {
		t.Fatalf("expected descending order by At, got %s, %s, %s", alerts[0].ID, alerts[1].ID, alerts[2].ID)
	}
}

var _ store.History = (*memstore.Store)(nil)
