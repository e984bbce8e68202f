package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/worldsim/chronicle/pkg/logger"
)

const (
	keywordScore    = 0.25
	vectorWeight    = 0.45
	recencyWeight   = 0.20
	relevanceWeight = 0.10
	recencySpanDays = 60.0
	eventWindowDays = 60
	maxKeywords     = 8
)

// Retriever assembles token-budgeted context packs from the store using a
// blend of keyword, semantic, recency, and scope signals.
type Retriever struct {
	store     Store
	embedder  Embedder
	defaults  Limits
	maxTokens int
	cache     *expirable.LRU[string, PromptPack]
}

// NewRetriever builds a retriever with the given default limits and token
// budget. cacheSize 0 disables the pack cache.
func NewRetriever(store Store, embedder Embedder, defaults Limits, maxTokens, cacheSize int, cacheTTL time.Duration) *Retriever {
	var cache *expirable.LRU[string, PromptPack]
	if cacheSize > 0 && cacheTTL > 0 {
		cache = expirable.NewLRU[string, PromptPack](cacheSize, nil, cacheTTL)
	}
	return &Retriever{
		store:     store,
		embedder:  embedder,
		defaults:  defaults,
		maxTokens: maxTokens,
		cache:     cache,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, req RetrieveRequest) (PromptPack, error) {
	limits := r.defaults
	if req.Limits.Chunks > 0 {
		limits.Chunks = req.Limits.Chunks
	}
	if req.Limits.Events > 0 {
		limits.Events = req.Limits.Events
	}
	if req.Limits.StatesDays > 0 {
		limits.StatesDays = req.Limits.StatesDays
	}
	budget := r.maxTokens
	if req.MaxTokens > 0 {
		budget = req.MaxTokens
	}

	cacheKey := retrieveCacheKey(req, limits, budget)
	if r.cache != nil {
		if pack, ok := r.cache.Get(cacheKey); ok {
			return pack, nil
		}
	}

	states, err := r.store.GetRecentEntityStates(ctx, req.EntityIDs, limits.StatesDays)
	if err != nil {
		return PromptPack{}, fmt.Errorf("retrieve states: %w", err)
	}

	var daily *DailyState
	if len(states) > 0 {
		mostRecent := states[0].Date
		for _, st := range states[1:] {
			if st.Date > mostRecent {
				mostRecent = st.Date
			}
		}
		record, err := r.store.GetDailyState(ctx, mostRecent)
		switch {
		case err == nil:
			daily = &record
		case errors.Is(err, ErrNotFound):
		default:
			return PromptPack{}, fmt.Errorf("retrieve daily state: %w", err)
		}
	}

	events, err := r.store.GetRecentEvents(ctx, req.EntityIDs, eventWindowDays, limits.Events)
	if err != nil {
		return PromptPack{}, fmt.Errorf("retrieve events: %w", err)
	}

	keywords := req.Keywords
	if len(keywords) == 0 {
		keywords = extractKeywords(req.Question)
	}

	type candidate struct {
		chunk Chunk
		base  float64
	}
	var candidates []candidate

	if len(keywords) > 0 {
		keywordChunks, err := r.store.KeywordSearchChunks(ctx, keywords, limits.Chunks)
		if err != nil {
			return PromptPack{}, fmt.Errorf("retrieve keyword chunks: %w", err)
		}
		for _, chunk := range keywordChunks {
			candidates = append(candidates, candidate{chunk: chunk, base: keywordScore})
		}
	}

	// Semantic recall is best effort: an embedding or search failure
	// silently reduces the candidate pool.
	if r.embedder != nil && strings.TrimSpace(req.Question) != "" {
		if vector, err := r.embedder.Embed(ctx, req.Question); err == nil {
			if scored, err := r.store.VectorSearchChunks(ctx, vector, limits.Chunks); err == nil {
				for _, sc := range scored {
					candidates = append(candidates, candidate{chunk: sc.Chunk, base: vectorWeight * sc.Score})
				}
			} else {
				logger.Debugf("vector search skipped: %v", err)
			}
		} else {
			logger.Debugf("question embedding skipped: %v", err)
		}
	}

	type ranked struct {
		ScoredChunk
		order int
	}
	combined := make(map[int64]ranked, len(candidates))
	now := time.Now().UTC()
	for i, cand := range candidates {
		score := cand.base
		if !cand.chunk.TS.IsZero() {
			ageDays := now.Sub(cand.chunk.TS).Hours() / 24
			if ageDays < 0 {
				ageDays = 0
			}
			recency := 1 - ageDays/recencySpanDays
			if recency < 0 {
				recency = 0
			}
			score += recencyWeight * recency
		}
		if len(req.EntityIDs) > 0 && chunkInScope(cand.chunk.Meta, req.EntityIDs) {
			score += relevanceWeight
		}
		existing, ok := combined[cand.chunk.ID]
		if !ok {
			combined[cand.chunk.ID] = ranked{ScoredChunk: ScoredChunk{Chunk: cand.chunk, Score: score}, order: i}
			continue
		}
		if score > existing.Score {
			existing.Score = score
			combined[cand.chunk.ID] = existing
		}
	}

	merged := make([]ranked, 0, len(combined))
	for _, entry := range combined {
		merged = append(merged, entry)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].order < merged[j].order
	})

	// Strict greedy prefix against the token budget: the first chunk that
	// does not fit ends the pack.
	trimmed := []ScoredChunk{}
	tokenCount := 0
	for _, entry := range merged {
		approx := approxTokens(entry.Text)
		if tokenCount+approx > budget {
			break
		}
		trimmed = append(trimmed, entry.ScoredChunk)
		tokenCount += approx
	}

	pack := PromptPack{
		Question: req.Question,
		Entities: append([]string{}, req.EntityIDs...),
		States:   states,
		Daily:    daily,
		Events:   events,
		Chunks:   trimmed,
	}
	if r.cache != nil {
		r.cache.Add(cacheKey, pack)
	}
	return pack, nil
}

// chunkInScope reports whether chunk metadata ties it to any scoped
// entity, either directly or through its links.
func chunkInScope(meta map[string]any, entityIDs []string) bool {
	if len(meta) == 0 {
		return false
	}
	metaEntity, _ := meta["entity_id"].(string)
	links := metaLinks(meta)
	for _, id := range entityIDs {
		if metaEntity == id {
			return true
		}
		for _, link := range links {
			if link == id {
				return true
			}
		}
	}
	return false
}

func metaLinks(meta map[string]any) []string {
	switch raw := meta["links"].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// extractKeywords pulls up to maxKeywords distinct words longer than two
// characters from the question.
func extractKeywords(question string) []string {
	cleaned := strings.ReplaceAll(question, "?", "")
	seen := map[string]struct{}{}
	out := []string{}
	for _, token := range strings.Fields(cleaned) {
		if len(token) <= 2 {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// approxTokens estimates prompt cost from the word count.
func approxTokens(text string) int {
	n := int(float64(len(strings.Fields(text))) * 1.25)
	if n < 1 {
		return 1
	}
	return n
}

func retrieveCacheKey(req RetrieveRequest, limits Limits, budget int) string {
	var b strings.Builder
	b.WriteString(req.Question)
	b.WriteString("|e:")
	b.WriteString(strings.Join(req.EntityIDs, ","))
	b.WriteString("|k:")
	b.WriteString(strings.Join(req.Keywords, ","))
	fmt.Fprintf(&b, "|l:%d,%d,%d|t:%d", limits.Chunks, limits.Events, limits.StatesDays, budget)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
