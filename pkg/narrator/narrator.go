// Package narrator answers questions about the simulated world from
// retrieved memory, in one of three output modes, and writes its own
// narratives back into memory so later calls can recall them.
package narrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/worldsim/chronicle/pkg/logger"
	"github.com/worldsim/chronicle/pkg/memory"
)

const narrativeMarker = "--- NARRATIVE ---"

const systemPromptTemplate = `You are the Simworld App Brain.

CORE PRINCIPLES
1) Truth separation: All balances, positions, and numerics come from the database ("state"). You may summarize/reason about them, but never invent or infer missing numbers.
2) Memory architecture: Long-term facts live in entities/attributes/relations; events are the append-only timeline; daily/entity state are numeric roll-ups; summaries are compressed narratives; RAG chunks are searchable memory.
3) Mode-aware outputs: Behave differently for 'simulation', 'status', and 'narrative_long' modes.

STRICT OUTPUT FORMAT
Always return a top-level JSON object followed by an optional markdown narrative (if requested by mode). First produce JSON, then (if requested) produce narrative starting with a line "--- NARRATIVE ---".

MODE BEHAVIOR
- simulation: Be concise. Prefer bullet facts and clear action proposals. Output JSON heavily; narrative optional and brief.
- status: Direct Q&A. Cite sources via lightweight facts entries referencing 'state'/'event'/'chunk'. Keep to <= 600 words narrative if any.
- narrative_long: Produce rich story after JSON. Maintain continuity using arc chunks and recent states; keep numbers consistent with state.

TOKEN DISCIPLINE
Stay within app_config.token_budget. If near limit: shorten narrative, trim minor subplots, prefer per-entity daily summaries over raw events. If critical info is missing, add a warning in metadata.warnings and proceed conservatively.

REASONING RULES
Use latest entity state values as numeric ground truth. If a number is absent, do not fabricate. Prefer newer data; when summarizing spans, note date ranges. Use canonical entity ids and names as provided.

Today is {{today}}.`

// ModeProfile bounds one output mode: prompt budget, response budget,
// and how much memory to pull.
type ModeProfile struct {
	Name            string
	MaxTokens       int
	MaxOutputTokens int
	ChunkLimit      int
	EventLimit      int
	StatesDays      int
}

var defaultModes = map[string]ModeProfile{
	"simulation":     {Name: "simulation", MaxTokens: 20000, MaxOutputTokens: 2000, ChunkLimit: 30, EventLimit: 500, StatesDays: 14},
	"status":         {Name: "status", MaxTokens: 15000, MaxOutputTokens: 1500, ChunkLimit: 20, EventLimit: 400, StatesDays: 10},
	"narrative_long": {Name: "narrative_long", MaxTokens: 60000, MaxOutputTokens: 60000, ChunkLimit: 60, EventLimit: 800, StatesDays: 28},
}

// Response is one narrator answer.
type Response struct {
	Narrative    string         `json:"narrative"`
	Analysis     map[string]any `json:"analysis"`
	PromptTokens int            `json:"prompt_tokens"`
	Mode         string         `json:"mode"`
}

// Narrator wires retrieval, generation, and writeback. A nil generator
// selects the deterministic fallback narrative.
type Narrator struct {
	store     memory.Store
	retriever *memory.Retriever
	chunker   *memory.Chunker
	embedder  memory.Embedder
	gen       memory.TextGenerator
	vectorDim int
}

func New(store memory.Store, retriever *memory.Retriever, chunker *memory.Chunker, embedder memory.Embedder, gen memory.TextGenerator, vectorDim int) *Narrator {
	return &Narrator{
		store:     store,
		retriever: retriever,
		chunker:   chunker,
		embedder:  embedder,
		gen:       gen,
		vectorDim: vectorDim,
	}
}

// Reason retrieves context for the question, trims it to the mode's
// budget, generates an answer, and persists any narrative as memory.
func (n *Narrator) Reason(ctx context.Context, question string, entityScope, keywords []string, mode string) (Response, error) {
	profile, ok := defaultModes[mode]
	if !ok {
		profile = defaultModes["simulation"]
	}
	pack, err := n.retriever.Retrieve(ctx, memory.RetrieveRequest{
		Question:  question,
		EntityIDs: entityScope,
		Keywords:  keywords,
		Limits: memory.Limits{
			Chunks:     profile.ChunkLimit,
			Events:     profile.EventLimit,
			StatesDays: profile.StatesDays,
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("narrator retrieve: %w", err)
	}

	pack, estimate := enforceBudget(pack, profile)
	response := n.generate(ctx, pack, question, profile, estimate)
	if err := n.persistOutput(ctx, response, question); err != nil {
		logger.Warnf("narrator writeback failed: %v", err)
	}
	return response, nil
}

// NarrateDay produces the long-form recap for one finished day.
func (n *Narrator) NarrateDay(ctx context.Context, date string) (Response, error) {
	question := fmt.Sprintf("Provide a narrative recap for %s incorporating key events and outcomes.", date)
	return n.Reason(ctx, question, nil, nil, "narrative_long")
}

func (n *Narrator) generate(ctx context.Context, pack memory.PromptPack, question string, profile ModeProfile, estimate int) Response {
	if n.gen != nil {
		out, err := n.callLLM(ctx, pack, question, profile)
		if err == nil {
			return parseResponse(out, profile.Name, estimate)
		}
		logger.Warnf("narrator generation failed, using fallback: %v", err)
	}
	return Response{
		Narrative: fallbackNarrative(question, pack),
		Analysis: map[string]any{
			"summary":  "deterministic-fallback",
			"question": question,
			"entities": pack.Entities,
		},
		PromptTokens: estimate,
		Mode:         profile.Name,
	}
}

func (n *Narrator) callLLM(ctx context.Context, pack memory.PromptPack, question string, profile ModeProfile) (string, error) {
	today := time.Now().UTC().Format("2006-01-02")
	system := strings.ReplaceAll(systemPromptTemplate, "{{today}}", today)

	dates := map[string]struct{}{}
	for _, st := range pack.States {
		dates[st.Date] = struct{}{}
	}
	user := map[string]any{
		"mode":     profile.Name,
		"question": question,
		"app_config": map[string]any{
			"mode":         profile.Name,
			"token_budget": profile.MaxTokens,
			"date":         today,
			"locale":       "en-AU",
		},
		"state_scope": map[string]any{
			"entity_ids":    pack.Entities,
			"date_range":    sortedSet(dates),
			"neighbor_hops": 1,
		},
		"retrieved": map[string]any{
			"states_recent": pack.States,
			"events_recent": pack.Events,
			"arc_chunks":    pack.Chunks,
			"global_rules":  []string{},
		},
		"prompt_pack": pack,
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("marshal narrator prompt: %w", err)
	}
	return n.gen.Generate(ctx, system, string(payload), profile.MaxOutputTokens)
}

// persistOutput chunks and embeds the narrative under ref "brain_output"
// so future retrievals can surface it.
func (n *Narrator) persistOutput(ctx context.Context, response Response, question string) error {
	if response.Narrative == "" {
		return nil
	}
	meta := map[string]any{
		"mode":     response.Mode,
		"question": question,
		"analysis": response.Analysis,
	}
	inputs := n.chunker.ChunkText(response.Narrative, "brain_output", response.Mode, time.Now().UTC(), meta)
	if len(inputs) == 0 {
		return nil
	}
	records, err := n.store.AddChunks(ctx, inputs)
	if err != nil {
		return err
	}
	if n.vectorDim <= 0 || len(records) == 0 {
		return nil
	}
	texts := make([]string, 0, len(records))
	for _, record := range records {
		texts = append(texts, record.Text)
	}
	vectors, err := memory.EmbedBatch(ctx, n.embedder, texts)
	if err != nil {
		return err
	}
	pairs := make([]memory.ChunkVector, 0, len(records))
	for i, record := range records {
		pairs = append(pairs, memory.ChunkVector{ChunkID: record.ID, Vector: vectors[i]})
	}
	_, err = n.store.AddEmbeddings(ctx, pairs)
	return err
}

// parseResponse splits the model output into its JSON analysis and the
// optional narrative. Unparseable output is kept raw rather than lost.
func parseResponse(content, mode string, estimate int) Response {
	jsonText := content
	narrative := ""
	if idx := strings.Index(content, narrativeMarker); idx >= 0 {
		jsonText = content[:idx]
		narrative = strings.TrimSpace(content[idx+len(narrativeMarker):])
	}
	var analysis map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonText)), &analysis); err != nil {
		logger.Warnf("narrator response parse failed: %v", err)
		analysis = map[string]any{"raw": content}
		narrative = content
	} else if narrative == "" {
		if field, ok := analysis["narrative"].(string); ok {
			narrative = field
		}
	}
	return Response{
		Narrative:    narrative,
		Analysis:     analysis,
		PromptTokens: estimate,
		Mode:         mode,
	}
}

// enforceBudget trims the pack toward the mode budget in two stages:
// halve events and chunks first, then clamp to the hard floors.
func enforceBudget(pack memory.PromptPack, profile ModeProfile) (memory.PromptPack, int) {
	estimate := estimateTokens(pack)
	if estimate <= profile.MaxTokens {
		return pack, estimate
	}

	if len(pack.Events) > 0 {
		pack.Events = head(pack.Events, profile.EventLimit/2)
	}
	if len(pack.Chunks) > 0 {
		floor := profile.ChunkLimit / 2
		if floor < 10 {
			floor = 10
		}
		pack.Chunks = head(pack.Chunks, floor)
	}
	if len(pack.States) > profile.StatesDays {
		pack.States = pack.States[:profile.StatesDays]
	}
	estimate = estimateTokens(pack)
	if estimate > profile.MaxTokens {
		pack.Chunks = head(pack.Chunks, 10)
		pack.Events = head(pack.Events, 200)
		estimate = estimateTokens(pack)
	}
	return pack, estimate
}

const systemOverheadTokens = 500

func estimateTokens(pack memory.PromptPack) int {
	total := systemOverheadTokens
	for _, chunk := range pack.Chunks {
		total += approxTokens(chunk.Text)
	}
	for _, state := range pack.States {
		data, _ := json.Marshal(state.State)
		total += approxTokens(string(data))
	}
	for _, event := range pack.Events {
		data, _ := json.Marshal(event.Payload)
		total += approxTokens(string(data))
	}
	if pack.Daily != nil && pack.Daily.Summary != "" {
		total += approxTokens(pack.Daily.Summary)
	}
	return total
}

func approxTokens(text string) int {
	n := int(float64(len(strings.Fields(text))) * 1.2)
	if n < 1 {
		return 1
	}
	return n
}

func fallbackNarrative(question string, pack memory.PromptPack) string {
	limit := len(pack.States)
	if limit > 5 {
		limit = 5
	}
	entities := make([]string, 0, limit)
	for _, st := range pack.States[:limit] {
		if st.EntityID != "" {
			entities = append(entities, st.EntityID)
		}
	}
	parts := []string{fmt.Sprintf("Entities in scope: %s.", strings.Join(entities, ", "))}
	if len(pack.Events) > 0 {
		parts = append(parts, fmt.Sprintf("Recent events considered: %d", len(pack.Events)))
	}
	if len(pack.Chunks) > 0 {
		parts = append(parts, fmt.Sprintf("Knowledge snippets: %d", len(pack.Chunks)))
	}
	parts = append(parts, "Question: "+question)
	return strings.Join(parts, " ")
}

func head[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
