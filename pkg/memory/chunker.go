package memory

import (
	"strconv"
	"strings"
	"time"
)

const (
	defaultChunkSize    = 900
	defaultChunkOverlap = 120
)

// Chunker splits long text into overlapping word windows sized for
// embedding and keyword indexing.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

// ChunkText windows text into chunk inputs. Blank text yields nothing and
// text at or under the window size passes through verbatim. Window starts
// advance strictly, so the loop terminates for any overlap value, and the
// final window always reaches the end of the text.
func (c *Chunker) ChunkText(text, refType, refID string, ts time.Time, meta map[string]any) []ChunkInput {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.size {
		return []ChunkInput{{
			RefType: refType,
			RefID:   refID,
			TS:      ts,
			Text:    text,
			Meta:    copyMeta(meta),
		}}
	}

	var out []ChunkInput
	start := 0
	for start < len(words) {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, ChunkInput{
			RefType: refType,
			RefID:   refID,
			TS:      ts,
			Text:    strings.Join(words[start:end], " "),
			Meta:    withSpan(meta, start, end),
		})
		if end == len(words) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// ChunkEntitySummary wraps a per-entity day summary with its conventional
// metadata.
func (c *Chunker) ChunkEntitySummary(entityID, date, summary string, ts time.Time) []ChunkInput {
	meta := map[string]any{
		"entity_id": entityID,
		"date":      date,
		"source":    "entity_summary",
	}
	return c.ChunkText(summary, "entity_state", entityID, ts, meta)
}

// ChunkEvent wraps rendered event text with its conventional metadata.
func (c *Chunker) ChunkEvent(eventID int64, text string, ts time.Time, links []string) []ChunkInput {
	meta := map[string]any{
		"event_id": eventID,
		"links":    append([]string(nil), links...),
		"source":   "event",
	}
	return c.ChunkText(text, "event", strconv.FormatInt(eventID, 10), ts, meta)
}

func copyMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// withSpan copies meta and records the word span, keeping any span the
// caller already set.
func withSpan(meta map[string]any, start, end int) map[string]any {
	out := copyMeta(meta)
	if _, ok := out["span"]; !ok {
		out["span"] = map[string]any{"start_word": start, "end_word": end}
	}
	return out
}
