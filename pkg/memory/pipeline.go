package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/worldsim/chronicle/pkg/logger"
)

// TickPipeline turns one simulation day into durable memory: events,
// summarized per-entity and daily snapshots, retrievable chunks, weekly
// arcs, and embeddings.
type TickPipeline struct {
	store      Store
	chunker    *Chunker
	summarizer *Summarizer
	embedder   Embedder
	vectorDim  int
}

func NewTickPipeline(store Store, chunker *Chunker, summarizer *Summarizer, embedder Embedder, vectorDim int) *TickPipeline {
	return &TickPipeline{
		store:      store,
		chunker:    chunker,
		summarizer: summarizer,
		embedder:   embedder,
		vectorDim:  vectorDim,
	}
}

// Run executes one tick. Validation happens before any write, so a
// malformed request leaves the store untouched. Summarizer and embedding
// failures degrade to local fallbacks; store errors abort and surface
// unchanged.
func (p *TickPipeline) Run(ctx context.Context, req TickRequest) (TickResult, error) {
	day, err := validateTick(&req)
	if err != nil {
		return TickResult{}, err
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = "tick-" + uuid.NewString()
	}
	logger.InfoCF("tick", "running tick", map[string]any{
		"date":           req.Date,
		"correlation_id": correlationID,
		"entities":       len(req.Entities),
		"events":         len(req.Events),
	})

	recorded := make([]Event, 0, len(req.Events))
	for _, input := range req.Events {
		ev, err := p.store.AppendEvent(ctx, input)
		if err != nil {
			return TickResult{}, fmt.Errorf("tick %s append event: %w", req.Date, err)
		}
		recorded = append(recorded, ev)
	}

	written := make([]EntityState, 0, len(req.Entities))
	for _, state := range req.Entities {
		if state.Summary == "" {
			linked := eventsLinkedTo(recorded, state.EntityID)
			state.Summary = p.summarizer.SummarizeEntityDay(ctx, state.EntityID, state.State, linked, state.Date)
		}
		if err := p.store.WriteEntityState(ctx, state); err != nil {
			return TickResult{}, fmt.Errorf("tick %s write entity state: %w", req.Date, err)
		}
		written = append(written, state)
	}

	daily := req.Global
	if daily.Summary == "" {
		headlines := make([]string, 0, len(recorded))
		for _, ev := range recorded {
			if ev.Type != "" {
				headlines = append(headlines, ev.Type)
			} else {
				headlines = append(headlines, "event")
			}
		}
		daily.Summary = p.summarizer.SummarizeDaily(ctx, daily.Global, headlines, daily.Date)
	}
	if err := p.store.WriteDailyState(ctx, daily); err != nil {
		return TickResult{}, fmt.Errorf("tick %s write daily state: %w", req.Date, err)
	}

	dayStart := day.UTC()
	var chunkInputs []ChunkInput
	for _, state := range written {
		chunkInputs = append(chunkInputs, p.chunker.ChunkEntitySummary(state.EntityID, state.Date, state.Summary, dayStart)...)
	}
	for _, ev := range recorded {
		chunkInputs = append(chunkInputs, p.chunker.ChunkEvent(ev.ID, renderEventText(ev), ev.TS, ev.Links)...)
	}

	chunkInputs = deduplicateChunks(chunkInputs)
	chunkRecords, err := p.store.AddChunks(ctx, chunkInputs)
	if err != nil {
		return TickResult{}, fmt.Errorf("tick %s add chunks: %w", req.Date, err)
	}

	if day.Weekday() == time.Sunday {
		arcRecords, err := p.writeArcs(ctx, req.Date, dayStart, written)
		if err != nil {
			return TickResult{}, err
		}
		chunkRecords = append(chunkRecords, arcRecords...)
	}

	embeddingsCreated := 0
	if p.vectorDim > 0 && len(chunkRecords) > 0 {
		embeddingsCreated, err = p.embedChunks(ctx, chunkRecords)
		if err != nil {
			return TickResult{}, fmt.Errorf("tick %s embed chunks: %w", req.Date, err)
		}
	}

	return TickResult{
		Events:       len(recorded),
		EntityStates: len(written),
		Chunks:       len(chunkRecords),
		Embeddings:   embeddingsCreated,
	}, nil
}

// writeArcs synthesizes a weekly arc chunk per entity from the last 28
// days of state summaries.
func (p *TickPipeline) writeArcs(ctx context.Context, date string, dayStart time.Time, written []EntityState) ([]Chunk, error) {
	var arcInputs []ChunkInput
	label := "Weekly arc ending " + date
	for _, state := range written {
		history, err := p.store.GetRecentEntityStates(ctx, []string{state.EntityID}, 28)
		if err != nil {
			return nil, fmt.Errorf("tick %s arc history: %w", date, err)
		}
		summaries := make([]string, 0, len(history))
		// History arrives newest first; arcs read oldest to newest.
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Summary != "" {
				summaries = append(summaries, history[i].Summary)
			}
		}
		arcText := p.summarizer.SummarizeArc(state.EntityID, summaries, label)
		meta := map[string]any{"entity_id": state.EntityID, "date": date}
		arcInputs = append(arcInputs, p.chunker.ChunkText(arcText, "arc", state.EntityID, dayStart, meta)...)
	}
	if len(arcInputs) == 0 {
		return nil, nil
	}
	arcInputs = deduplicateChunks(arcInputs)
	records, err := p.store.AddChunks(ctx, arcInputs)
	if err != nil {
		return nil, fmt.Errorf("tick %s add arc chunks: %w", date, err)
	}
	return records, nil
}

// embedChunks replaces any stale vectors for the batch, then inserts
// fresh ones.
func (p *TickPipeline) embedChunks(ctx context.Context, records []Chunk) (int, error) {
	texts := make([]string, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, record := range records {
		texts = append(texts, record.Text)
		ids = append(ids, record.ID)
	}
	vectors, err := EmbedBatch(ctx, p.embedder, texts)
	if err != nil {
		return 0, err
	}
	pairs := make([]ChunkVector, 0, len(records))
	for i, record := range records {
		pairs = append(pairs, ChunkVector{ChunkID: record.ID, Vector: vectors[i]})
	}
	if err := p.store.PruneChunkEmbeddings(ctx, ids); err != nil {
		return 0, err
	}
	return p.store.AddEmbeddings(ctx, pairs)
}

// validateTick checks the request shape and normalizes per-entity dates
// before any side effect.
func validateTick(req *TickRequest) (time.Time, error) {
	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidTick, req.Date)
	}
	for i := range req.Entities {
		if strings.TrimSpace(req.Entities[i].EntityID) == "" {
			return time.Time{}, fmt.Errorf("%w: entity state %d missing entity_id", ErrInvalidTick, i)
		}
		if req.Entities[i].Date == "" {
			req.Entities[i].Date = req.Date
		} else if req.Entities[i].Date != req.Date {
			return time.Time{}, fmt.Errorf("%w: entity state %d date %q does not match tick date %q",
				ErrInvalidTick, i, req.Entities[i].Date, req.Date)
		}
	}
	if req.Global.Date == "" {
		req.Global.Date = req.Date
	} else if req.Global.Date != req.Date {
		return time.Time{}, fmt.Errorf("%w: daily state date %q does not match tick date %q",
			ErrInvalidTick, req.Global.Date, req.Date)
	}
	return day, nil
}

func eventsLinkedTo(events []Event, entityID string) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		for _, link := range ev.Links {
			if link == entityID {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

// renderEventText is the canonical one-line form indexed for retrieval.
func renderEventText(ev Event) string {
	typ := ev.Type
	if typ == "" {
		typ = "event"
	}
	return strings.TrimSpace(fmt.Sprintf("Event %d (%s): %s", ev.ID, typ, formatPayload(ev.Payload, 0)))
}

func deduplicateChunks(chunks []ChunkInput) []ChunkInput {
	type fingerprint struct {
		refType string
		refID   string
		text    string
	}
	seen := make(map[fingerprint]struct{}, len(chunks))
	out := make([]ChunkInput, 0, len(chunks))
	for _, chunk := range chunks {
		fp := fingerprint{chunk.RefType, chunk.RefID, chunk.Text}
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, chunk)
	}
	return out
}
