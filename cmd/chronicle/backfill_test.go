package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestParseBackfillCSVGroupsByDay(t *testing.T) {
	path := writeCSV(t, `date,entity_id,metric,value
2026-03-15,e1,cash_usd,50
2026-03-14,e1,cash_usd,100
2026-03-14,e2,cash_usd,200
2026-03-14,e1,equities_usd,300
`)

	requests, err := parseBackfillCSV(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(requests))
	}
	if requests[0].Date != "2026-03-14" || requests[1].Date != "2026-03-15" {
		t.Fatalf("ticks should run in date order, got %s then %s", requests[0].Date, requests[1].Date)
	}

	first := requests[0]
	if len(first.Entities) != 2 {
		t.Fatalf("expected 2 entity states, got %d", len(first.Entities))
	}
	if first.Entities[0].EntityID != "e1" || first.Entities[0].State["cash_usd"] != 100 || first.Entities[0].State["equities_usd"] != 300 {
		t.Fatalf("metrics should merge per entity, got %+v", first.Entities[0])
	}
	if len(first.Events) != 3 {
		t.Fatalf("every row should become an event, got %d", len(first.Events))
	}
	if first.Events[0].Type != "txn" {
		t.Fatalf("default event type should be txn, got %q", first.Events[0].Type)
	}
	if first.Events[0].Links[0] != "e1" {
		t.Fatalf("event should link its entity, got %v", first.Events[0].Links)
	}
	if first.Global.Global["entities"] != 2.0 || first.Global.Global["total_events"] != 3.0 {
		t.Fatalf("unexpected global state %v", first.Global.Global)
	}
}

func TestParseBackfillCSVDefaults(t *testing.T) {
	path := writeCSV(t, `date,entity_id,value
2026-03-14,e1,42
`)
	requests, err := parseBackfillCSV(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	state := requests[0].Entities[0].State
	if state["value"] != 42 {
		t.Fatalf("missing metric column should default to value, got %v", state)
	}
	ts := requests[0].Events[0].TS
	if ts.Format("2006-01-02T15:04:05") != "2026-03-14T00:00:00" {
		t.Fatalf("missing ts should default to midnight, got %v", ts)
	}
}

func TestParseBackfillCSVRejectsBadRows(t *testing.T) {
	cases := []string{
		"entity_id,value\ne1,42\n",
		"date,entity_id,value\nnot-a-date,e1,42\n",
		"date,entity_id,value\n2026-03-14,,42\n",
		"date,entity_id,value\n2026-03-14,e1,not-a-number\n",
	}
	for i, content := range cases {
		if _, err := parseBackfillCSV(writeCSV(t, content)); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
