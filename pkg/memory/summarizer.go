package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/worldsim/chronicle/pkg/logger"
)

const (
	summaryMaxWords = 550
	arcMaxWords     = 750

	summarizerSystemPrompt = "You summarise simulation state. Keep numbers factual, avoid inventing data. " +
		"Return concise prose (<= 120 words) highlighting key changes, referencing provided metrics."
)

// Summarizer condenses entity and daily state into retrievable prose. A
// nil generator means every summary comes from the deterministic local
// templates; a remote failure degrades to the same templates with a
// warning, never an error.
type Summarizer struct {
	gen TextGenerator
}

func NewSummarizer(gen TextGenerator) *Summarizer {
	return &Summarizer{gen: gen}
}

func (s *Summarizer) SummarizeEntityDay(ctx context.Context, entityID string, state map[string]float64, recentEvents []Event, date string) string {
	if s.gen != nil {
		payload := map[string]any{"state": state, "events": eventPayloads(recentEvents)}
		out, err := s.generate(ctx, fmt.Sprintf("Entity %s", entityID), date, payload)
		if err == nil {
			return out
		}
		logger.Warnf("remote entity summary failed for %s: %v", entityID, err)
	}
	return localEntitySummary(entityID, state, recentEvents, date)
}

func (s *Summarizer) SummarizeDaily(ctx context.Context, global map[string]any, headlines []string, date string) string {
	kept := make([]string, 0, len(headlines))
	for _, h := range headlines {
		if h != "" {
			kept = append(kept, h)
		}
	}
	if s.gen != nil {
		payload := map[string]any{"global_state": global, "headlines": kept}
		out, err := s.generate(ctx, "Daily overview", date, payload)
		if err == nil {
			return out
		}
		logger.Warnf("remote daily summary failed: %v", err)
	}
	return localDailySummary(global, kept, date)
}

// SummarizeArc folds the most recent summaries into one arc paragraph.
// Arcs are always produced locally.
func (s *Summarizer) SummarizeArc(entityID string, summaries []string, label string) string {
	collected := make([]string, 0, len(summaries))
	for _, sum := range summaries {
		if sum != "" {
			collected = append(collected, sum)
		}
	}
	if len(collected) == 0 {
		return fmt.Sprintf("No arc activity recorded for %s.", entityID)
	}
	if label == "" {
		label = fmt.Sprintf("Arc summary for %s", entityID)
	}
	if len(collected) > 5 {
		collected = collected[len(collected)-5:]
	}
	return truncateWords(label+": "+strings.Join(collected, " "), arcMaxWords)
}

func (s *Summarizer) generate(ctx context.Context, subject, date string, payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal summary payload: %w", err)
	}
	user := fmt.Sprintf(
		"Summarise %s for %s using the provided JSON data. Call out material changes, balances, and any notable events.\n%s",
		subject, date, data)
	out, err := s.gen.Generate(ctx, summarizerSystemPrompt, user, 600)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty summary from %s", s.gen.ModelID())
	}
	return out, nil
}

func localEntitySummary(entityID string, state map[string]float64, events []Event, date string) string {
	lines := []string{fmt.Sprintf("Entity %s snapshot for %s.", entityID, date)}

	if len(state) > 0 {
		keys := make([]string, 0, len(state))
		for k := range state {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		metrics := make([]string, 0, len(keys))
		for _, k := range keys {
			metrics = append(metrics, titleWords(k)+": "+formatMetric(state[k]))
		}
		lines = append(lines, "State metrics: "+strings.Join(metrics, "; "))
	} else {
		lines = append(lines, "No quantitative changes recorded.")
	}

	if len(events) > 0 {
		limit := len(events)
		if limit > 5 {
			limit = 5
		}
		parts := make([]string, 0, limit)
		for _, ev := range events[:limit] {
			piece := ev.Type
			if piece == "" {
				piece = "event"
			}
			if len(ev.Payload) > 0 {
				piece += " (" + formatPayload(ev.Payload, 4) + ")"
			}
			parts = append(parts, ev.TS.UTC().Format("2006-01-02")+": "+piece)
		}
		lines = append(lines, "Recent events: "+strings.Join(parts, " | "))
	} else {
		lines = append(lines, "No linked events in the recent window.")
	}

	return truncateWords(strings.Join(lines, " "), summaryMaxWords)
}

func localDailySummary(global map[string]any, headlines []string, date string) string {
	lines := []string{fmt.Sprintf("Daily overview for %s.", date)}
	if len(global) > 0 {
		keys := make([]string, 0, len(global))
		for k := range global {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 8 {
			keys = keys[:8]
		}
		stats := make([]string, 0, len(keys))
		for _, k := range keys {
			stats = append(stats, k+": "+formatAny(global[k]))
		}
		lines = append(lines, "Global metrics: "+strings.Join(stats, "; ")+".")
	}
	if len(headlines) > 0 {
		if len(headlines) > 6 {
			headlines = headlines[:6]
		}
		lines = append(lines, "Headlines: "+strings.Join(headlines, " | "))
	}
	return truncateWords(strings.Join(lines, " "), summaryMaxWords)
}

func eventPayloads(events []Event) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		out = append(out, map[string]any{
			"id":      ev.ID,
			"ts":      ev.TS.UTC().Format("2006-01-02T15:04:05Z07:00"),
			"type":    ev.Type,
			"payload": ev.Payload,
			"links":   ev.Links,
		})
	}
	return out
}

// formatPayload renders up to max sorted key=value pairs.
func formatPayload(payload map[string]any, max int) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if max > 0 && len(keys) > max {
		keys = keys[:max]
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatAny(payload[k]))
	}
	return strings.Join(parts, ", ")
}

func formatAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return formatMetric(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatMetric drops the decimal point for whole values.
func formatMetric(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func titleWords(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// truncateWords caps text at maxWords, marking the cut with an ellipsis.
func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + " …"
}
