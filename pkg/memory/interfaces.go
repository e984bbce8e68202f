package memory

import (
	"context"
	"time"
)

// ChunkVector pairs a stored chunk with its embedding vector.
type ChunkVector struct {
	ChunkID int64
	Vector  []float32
}

// Store provides durable persistence for all simulation memory state.
type Store interface {
	Close() error

	UpsertEntity(ctx context.Context, payload EntityUpsert) (Entity, error)
	GetEntity(ctx context.Context, id string) (Entity, error)
	SetAttribute(ctx context.Context, attr Attribute) error
	CloseAttribute(ctx context.Context, entityID, key string, atMS int64) error
	AddRelation(ctx context.Context, rel Relation) error
	CloseRelation(ctx context.Context, srcID, rel, dstID string, atMS int64) error

	AppendEvent(ctx context.Context, ev EventInput) (Event, error)
	WriteEntityState(ctx context.Context, state EntityState) error
	WriteDailyState(ctx context.Context, state DailyState) error
	GetLatestEntityState(ctx context.Context, entityID string) (EntityState, error)
	GetDailyState(ctx context.Context, date string) (DailyState, error)
	GetRecentEntityStates(ctx context.Context, entityIDs []string, days int) ([]EntityState, error)
	GetRecentEvents(ctx context.Context, entityIDs []string, windowDays, limit int) ([]Event, error)

	AddChunks(ctx context.Context, chunks []ChunkInput) ([]Chunk, error)
	AddEmbeddings(ctx context.Context, vectors []ChunkVector) (int, error)
	PruneChunkEmbeddings(ctx context.Context, chunkIDs []int64) error
	KeywordSearchChunks(ctx context.Context, keywords []string, limit int) ([]Chunk, error)
	VectorSearchChunks(ctx context.Context, vector []float32, limit int) ([]ScoredChunk, error)

	GetCounts(ctx context.Context) (Counts, error)
	GetLastChunkTime(ctx context.Context) (*time.Time, error)
}

// Embedder turns text into a fixed-dimension unit vector.
type Embedder interface {
	ModelID() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TextGenerator produces prose from structured context. Implementations may
// be remote models or deterministic local fallbacks.
type TextGenerator interface {
	ModelID() string
	Generate(ctx context.Context, system, user string, maxTokens int) (string, error)
}
