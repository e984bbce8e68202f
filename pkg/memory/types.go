package memory

import "time"

// EntityUpsert is the write shape for entities. ID may be left empty, in
// which case it is derived from (kind, name).
type EntityUpsert struct {
	ID   string         `json:"id,omitempty"`
	Kind string         `json:"kind"`
	Name string         `json:"name"`
	Meta map[string]any `json:"meta,omitempty"`
}

type Entity struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAtMS int64          `json:"created_at_ms"`
}

// Attribute is one time-versioned key/value on an entity. A zero ValidToMS
// means the version is still current.
type Attribute struct {
	EntityID    string `json:"entity_id"`
	Key         string `json:"key"`
	Value       any    `json:"value"`
	ValidFromMS int64  `json:"valid_from_ms"`
	ValidToMS   int64  `json:"valid_to_ms,omitempty"`
}

// Relation is a time-versioned edge between entities.
type Relation struct {
	SrcID       string  `json:"src_id"`
	Rel         string  `json:"rel"`
	DstID       string  `json:"dst_id"`
	Weight      float64 `json:"weight"`
	ValidFromMS int64   `json:"valid_from_ms"`
	ValidToMS   int64   `json:"valid_to_ms,omitempty"`
}

type EventInput struct {
	TS      time.Time      `json:"ts"`
	ActorID string         `json:"actor_id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Links   []string       `json:"links,omitempty"`
}

type Event struct {
	ID      int64          `json:"id"`
	TS      time.Time      `json:"ts"`
	ActorID string         `json:"actor_id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Links   []string       `json:"links,omitempty"`
}

// EntityState is one entity's metric snapshot for one simulation day.
// Date is an ISO calendar day ("2026-03-14").
type EntityState struct {
	Date     string             `json:"date"`
	EntityID string             `json:"entity_id"`
	State    map[string]float64 `json:"state"`
	Summary  string             `json:"summary,omitempty"`
}

type DailyState struct {
	Date    string         `json:"date"`
	Global  map[string]any `json:"global"`
	Summary string         `json:"summary,omitempty"`
}

// ChunkInput is the write shape for retrievable text fragments.
type ChunkInput struct {
	RefType string         `json:"ref_type"`
	RefID   string         `json:"ref_id"`
	TS      time.Time      `json:"ts"`
	Text    string         `json:"text"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type Chunk struct {
	ID      int64          `json:"id"`
	RefType string         `json:"ref_type"`
	RefID   string         `json:"ref_id"`
	TS      time.Time      `json:"ts"`
	Text    string         `json:"text"`
	Meta    map[string]any `json:"meta,omitempty"`
}

type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// TickRequest carries one simulation day into the pipeline.
type TickRequest struct {
	Date          string        `json:"date"`
	Entities      []EntityState `json:"entities"`
	Global        DailyState    `json:"global_state"`
	Events        []EventInput  `json:"events"`
	CorrelationID string        `json:"correlation_id,omitempty"`
}

// TickResult reports how many rows one tick produced.
type TickResult struct {
	Events       int `json:"events"`
	EntityStates int `json:"entity_states"`
	Chunks       int `json:"chunks"`
	Embeddings   int `json:"embeddings"`
}

// Limits overrides the retriever defaults per call. Zero fields keep the
// configured values.
type Limits struct {
	Chunks     int `json:"chunks,omitempty"`
	Events     int `json:"events,omitempty"`
	StatesDays int `json:"states_days,omitempty"`
}

type RetrieveRequest struct {
	Question  string   `json:"question"`
	EntityIDs []string `json:"entity_ids,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
	Limits    Limits   `json:"limits,omitempty"`
}

// PromptPack is the retriever output: everything a narrator needs to answer
// one question, already trimmed to the token budget.
type PromptPack struct {
	Question string        `json:"question"`
	Entities []string      `json:"entities"`
	States   []EntityState `json:"states"`
	Daily    *DailyState   `json:"daily,omitempty"`
	Events   []Event       `json:"events"`
	Chunks   []ScoredChunk `json:"chunks"`
}

type Counts struct {
	Entities   int `json:"entities"`
	Events     int `json:"events"`
	Chunks     int `json:"chunks"`
	Embeddings int `json:"embeddings"`
}

// MemoryStatus is the operational snapshot surfaced by the status command.
type MemoryStatus struct {
	DB       string     `json:"db"`
	Vector   string     `json:"vector"`
	LastTick *time.Time `json:"last_tick,omitempty"`
	Counts   Counts     `json:"counts"`
}
