package memory

import (
	"context"
	"strings"
	"testing"
	"time"
)

type stubSource struct {
	req TickRequest
	ok  bool
}

func (s stubSource) BuildTick(context.Context, string) (TickRequest, bool, error) {
	return s.req, s.ok, nil
}

func TestNewJobManagerValidatesCron(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	if _, err := NewJobManager(pipeline, stubSource{}, "not a cron"); err == nil {
		t.Fatal("invalid cron should be rejected")
	}
	m, err := NewJobManager(pipeline, stubSource{}, "")
	if err != nil {
		t.Fatalf("empty cron should use the default: %v", err)
	}
	if m.cronExpr != defaultTickCron {
		t.Fatalf("expected default cron, got %q", m.cronExpr)
	}
}

func TestTriggerTickSkipsWithoutPayload(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	m, err := NewJobManager(pipeline, stubSource{ok: false}, "0 1 * * *")
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	outcome, err := m.TriggerTick(context.Background(), "2026-03-16")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !outcome.Skipped {
		t.Fatal("expected skipped outcome")
	}
	if outcome.Date != "2026-03-16" {
		t.Fatalf("unexpected date %q", outcome.Date)
	}
	if !strings.HasPrefix(outcome.CorrelationID, "tick-") {
		t.Fatalf("unexpected correlation id %q", outcome.CorrelationID)
	}
}

func TestTriggerTickRunsPayload(t *testing.T) {
	pipeline, store := newTestPipeline(t)
	date := lastWeekday(time.Wednesday)
	source := stubSource{
		ok: true,
		req: TickRequest{
			Date:     date,
			Entities: []EntityState{{EntityID: "e1", State: map[string]float64{"cash": 1}}},
		},
	}
	m, err := NewJobManager(pipeline, source, "0 1 * * *")
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	outcome, err := m.TriggerTick(context.Background(), date)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if outcome.Skipped {
		t.Fatal("payload present, tick should run")
	}
	if outcome.Result.EntityStates != 1 {
		t.Fatalf("unexpected result %+v", outcome.Result)
	}

	if _, err := store.GetLatestEntityState(context.Background(), "e1"); err != nil {
		t.Fatalf("state not written: %v", err)
	}
}

func TestJobManagerStartStop(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	m, err := NewJobManager(pipeline, stubSource{}, "0 1 * * *")
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	m.Start(context.Background())
	m.Start(context.Background()) // second start is a no-op
	m.Stop()
	m.Stop() // second stop is a no-op
}
