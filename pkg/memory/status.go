package memory

import (
	"context"
	"fmt"
)

// BuildStatus assembles the operational snapshot for the status command.
// LastTick is the timestamp of the newest chunk, nil on an empty store.
func BuildStatus(ctx context.Context, store Store, vectorDim int) (MemoryStatus, error) {
	counts, err := store.GetCounts(ctx)
	if err != nil {
		return MemoryStatus{}, fmt.Errorf("status counts: %w", err)
	}
	last, err := store.GetLastChunkTime(ctx)
	if err != nil {
		return MemoryStatus{}, fmt.Errorf("status last tick: %w", err)
	}
	vector := "disabled"
	if vectorDim > 0 {
		vector = fmt.Sprintf("enabled (dim %d)", vectorDim)
	}
	return MemoryStatus{
		DB:       "sqlite",
		Vector:   vector,
		LastTick: last,
		Counts:   counts,
	}, nil
}
