package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), 8)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertEntityDerivesID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ent, err := store.UpsertEntity(ctx, EntityUpsert{Kind: "person", Name: "Avery Quinn"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ent.ID != PersonID("Avery Quinn") {
		t.Fatalf("derived id mismatch: %q", ent.ID)
	}

	again, err := store.UpsertEntity(ctx, EntityUpsert{Kind: "person", Name: "Avery Quinn", Meta: map[string]any{"role": "lead"}})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != ent.ID {
		t.Fatalf("upsert should be idempotent on id: %q vs %q", again.ID, ent.ID)
	}
	if again.Meta["role"] != "lead" {
		t.Fatalf("meta not updated: %v", again.Meta)
	}

	counts, err := store.GetCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Entities != 1 {
		t.Fatalf("expected 1 entity, got %d", counts.Entities)
	}
}

func TestGetEntityNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetEntity(context.Background(), "person:ghost:0"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttributeVersioning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SetAttribute(ctx, Attribute{EntityID: "e1", Key: "city", Value: "Sydney", ValidFromMS: 1000})
	if err != nil {
		t.Fatalf("set attribute: %v", err)
	}
	if err := store.CloseAttribute(ctx, "e1", "city", 2000); err != nil {
		t.Fatalf("close attribute: %v", err)
	}
	err = store.SetAttribute(ctx, Attribute{EntityID: "e1", Key: "city", Value: "Perth", ValidFromMS: 2000})
	if err != nil {
		t.Fatalf("second version: %v", err)
	}

	if err := store.SetAttribute(ctx, Attribute{EntityID: "", Key: "x"}); err == nil {
		t.Fatal("empty entity_id should be rejected")
	}
}

func TestRelationVersioning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.AddRelation(ctx, Relation{SrcID: "e1", Rel: "owns", DstID: "w1", ValidFromMS: 1000})
	if err != nil {
		t.Fatalf("add relation: %v", err)
	}
	if err := store.CloseRelation(ctx, "e1", "owns", "w1", 2000); err != nil {
		t.Fatalf("close relation: %v", err)
	}
	err = store.AddRelation(ctx, Relation{SrcID: "e1", Rel: "owns", DstID: "w1", ValidFromMS: 2000, Weight: 0.5})
	if err != nil {
		t.Fatalf("second version: %v", err)
	}

	if err := store.AddRelation(ctx, Relation{SrcID: "e1", Rel: "", DstID: "w1"}); err == nil {
		t.Fatal("empty rel should be rejected")
	}
}

func TestAppendEventDedupesLinks(t *testing.T) {
	store := newTestStore(t)
	ev, err := store.AppendEvent(context.Background(), EventInput{
		Type:  "txn",
		Links: []string{"a", "b", "a"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ev.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if len(ev.Links) != 2 {
		t.Fatalf("links should dedupe keeping order, got %v", ev.Links)
	}
}

func TestWriteEntityStateReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := time.Now().UTC().Format("2006-01-02")

	first := EntityState{Date: date, EntityID: "e1", State: map[string]float64{"cash": 10}, Summary: "one"}
	if err := store.WriteEntityState(ctx, first); err != nil {
		t.Fatalf("write: %v", err)
	}
	second := EntityState{Date: date, EntityID: "e1", State: map[string]float64{"cash": 20}, Summary: "two"}
	if err := store.WriteEntityState(ctx, second); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	got, err := store.GetLatestEntityState(ctx, "e1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.State["cash"] != 20 || got.Summary != "two" {
		t.Fatalf("same-day write should replace, got %+v", got)
	}

	states, err := store.GetRecentEntityStates(ctx, []string{"e1"}, 7)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected single row per (date, entity), got %d", len(states))
	}
}

func TestGetRecentEntityStatesEmptyScope(t *testing.T) {
	store := newTestStore(t)
	states, err := store.GetRecentEntityStates(context.Background(), nil, 14)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("empty scope should return empty, got %d", len(states))
	}
}

func TestDailyStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := DailyState{
		Date:    "2026-03-14",
		Global:  map[string]any{"narrative": "Calm markets", "price": 0.27},
		Summary: "quiet",
	}
	if err := store.WriteDailyState(ctx, state); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := store.GetDailyState(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Global["narrative"] != "Calm markets" || got.Summary != "quiet" {
		t.Fatalf("unexpected daily state %+v", got)
	}

	if _, err := store.GetDailyState(ctx, "1999-01-01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRecentEventsFiltersByLinks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mustAppend := func(typ string, ts time.Time, links ...string) Event {
		ev, err := store.AppendEvent(ctx, EventInput{TS: ts, Type: typ, Links: links})
		if err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
		return ev
	}
	mustAppend("in_scope_new", now.Add(-time.Hour), "e1")
	mustAppend("in_scope_old", now.Add(-48*time.Hour), "e1", "e2")
	mustAppend("out_of_scope", now, "e3")
	mustAppend("too_old", now.AddDate(0, 0, -90), "e1")

	events, err := store.GetRecentEvents(ctx, []string{"e1"}, 60, 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events in scope and window, got %d", len(events))
	}
	if events[0].Type != "in_scope_new" || events[1].Type != "in_scope_old" {
		t.Fatalf("expected newest first, got %s then %s", events[0].Type, events[1].Type)
	}

	empty, err := store.GetRecentEvents(ctx, nil, 60, 10)
	if err != nil {
		t.Fatalf("empty scope: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("empty scope should return no events, got %d", len(empty))
	}
}

func TestAddChunksAndKeywordSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records, err := store.AddChunks(ctx, []ChunkInput{
		{RefType: "entity_state", RefID: "e1", TS: now, Text: "treasury balance grew after the token sale", Meta: map[string]any{"entity_id": "e1"}},
		{RefType: "event", RefID: "1", TS: now.Add(-time.Hour), Text: "weather stayed calm across the region"},
	})
	if err != nil {
		t.Fatalf("add chunks: %v", err)
	}
	if len(records) != 2 || records[0].ID == 0 {
		t.Fatalf("expected assigned ids, got %+v", records)
	}

	hits, err := store.KeywordSearchChunks(ctx, []string{"treasury"}, 10)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	if len(hits) != 1 || hits[0].RefID != "e1" {
		t.Fatalf("expected the treasury chunk, got %+v", hits)
	}
	if hits[0].Meta["entity_id"] != "e1" {
		t.Fatalf("meta lost in round trip: %v", hits[0].Meta)
	}

	// Multiple keywords match any term, not all of them.
	hits, err = store.KeywordSearchChunks(ctx, []string{"treasury", "weather"}, 10)
	if err != nil {
		t.Fatalf("multi keyword search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected both chunks, got %d", len(hits))
	}

	none, err := store.KeywordSearchChunks(ctx, []string{"zeppelin"}, 10)
	if err != nil {
		t.Fatalf("no-hit search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no hits, got %d", len(none))
	}
}

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records, err := store.AddChunks(ctx, []ChunkInput{
		{RefType: "a", RefID: "1", TS: now, Text: "alpha"},
		{RefType: "b", RefID: "2", TS: now, Text: "beta"},
	})
	if err != nil {
		t.Fatalf("add chunks: %v", err)
	}

	target := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	offAxis := []float32{0.6, 0.8, 0, 0, 0, 0, 0, 0}
	n, err := store.AddEmbeddings(ctx, []ChunkVector{
		{ChunkID: records[0].ID, Vector: target},
		{ChunkID: records[1].ID, Vector: offAxis},
	})
	if err != nil {
		t.Fatalf("add embeddings: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 embeddings, got %d", n)
	}

	scored, err := store.VectorSearchChunks(ctx, target, 10)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 results, got %d", len(scored))
	}
	if scored[0].RefID != "1" {
		t.Fatalf("expected closest chunk first, got %+v", scored[0])
	}
	if scored[0].Score <= scored[1].Score {
		t.Fatalf("scores not descending: %f then %f", scored[0].Score, scored[1].Score)
	}
}

func TestPruneChunkEmbeddings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records, err := store.AddChunks(ctx, []ChunkInput{
		{RefType: "a", RefID: "1", TS: time.Now().UTC(), Text: "alpha"},
	})
	if err != nil {
		t.Fatalf("add chunks: %v", err)
	}
	vec := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	if _, err := store.AddEmbeddings(ctx, []ChunkVector{{ChunkID: records[0].ID, Vector: vec}}); err != nil {
		t.Fatalf("add embeddings: %v", err)
	}
	if err := store.PruneChunkEmbeddings(ctx, []int64{records[0].ID}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	counts, err := store.GetCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Embeddings != 0 {
		t.Fatalf("expected pruned embeddings, got %d", counts.Embeddings)
	}
}

func TestGetLastChunkTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	last, err := store.GetLastChunkTime(ctx)
	if err != nil {
		t.Fatalf("empty store: %v", err)
	}
	if last != nil {
		t.Fatalf("expected nil on empty store, got %v", last)
	}

	newest := time.Now().UTC().Truncate(time.Millisecond)
	_, err = store.AddChunks(ctx, []ChunkInput{
		{RefType: "a", RefID: "1", TS: newest.Add(-time.Hour), Text: "older"},
		{RefType: "a", RefID: "2", TS: newest, Text: "newer"},
	})
	if err != nil {
		t.Fatalf("add chunks: %v", err)
	}
	last, err = store.GetLastChunkTime(ctx)
	if err != nil {
		t.Fatalf("last chunk time: %v", err)
	}
	if last == nil || !last.Equal(newest) {
		t.Fatalf("expected %v, got %v", newest, last)
	}
}
