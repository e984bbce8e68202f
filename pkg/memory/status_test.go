package memory

import (
	"context"
	"testing"
	"time"
)

func TestBuildStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	status, err := BuildStatus(ctx, store, 8)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.DB != "sqlite" {
		t.Fatalf("unexpected db %q", status.DB)
	}
	if status.Vector != "enabled (dim 8)" {
		t.Fatalf("unexpected vector %q", status.Vector)
	}
	if status.LastTick != nil {
		t.Fatalf("empty store should have no last tick, got %v", status.LastTick)
	}

	if _, err := store.UpsertEntity(ctx, EntityUpsert{Kind: "person", Name: "Avery"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.AddChunks(ctx, []ChunkInput{{RefType: "a", RefID: "1", TS: time.Now().UTC(), Text: "hello"}}); err != nil {
		t.Fatalf("chunks: %v", err)
	}

	status, err = BuildStatus(ctx, store, 0)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Vector != "disabled" {
		t.Fatalf("vector should be disabled with dim 0, got %q", status.Vector)
	}
	if status.Counts.Entities != 1 || status.Counts.Chunks != 1 {
		t.Fatalf("unexpected counts %+v", status.Counts)
	}
	if status.LastTick == nil {
		t.Fatal("expected last tick after adding a chunk")
	}
}
