package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the canonical persistent simulation memory storage.
type SQLiteStore struct {
	db        *sql.DB
	vectorDim int
}

// NewSQLiteStore creates/opens the memory database at path. vectorDim is
// the fixed embedding width; vectors are padded or truncated to it on
// write and on query.
func NewSQLiteStore(path string, vectorDim int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process memory subsystem. Use one shared connection to avoid
	// writer lock contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, vectorDim: vectorDim}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			meta_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS entities_kind_idx ON entities(kind);`,
		`CREATE TABLE IF NOT EXISTS attributes (
			entity_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value_json TEXT NOT NULL DEFAULT 'null',
			valid_from_ms INTEGER NOT NULL,
			valid_to_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(entity_id, key, valid_from_ms)
		);`,
		`CREATE INDEX IF NOT EXISTS attributes_open_idx ON attributes(entity_id, key, valid_to_ms);`,
		`CREATE TABLE IF NOT EXISTS relations (
			src_id TEXT NOT NULL,
			rel TEXT NOT NULL,
			dst_id TEXT NOT NULL,
			weight REAL NOT NULL DEFAULT 1,
			valid_from_ms INTEGER NOT NULL,
			valid_to_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(src_id, rel, dst_id, valid_from_ms)
		);`,
		`CREATE INDEX IF NOT EXISTS relations_open_idx ON relations(src_id, rel, valid_to_ms);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_ms INTEGER NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			payload_json TEXT NOT NULL DEFAULT '{}',
			links_json TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE INDEX IF NOT EXISTS events_ts_idx ON events(ts_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS daily_state (
			date TEXT PRIMARY KEY,
			global_json TEXT NOT NULL DEFAULT '{}',
			summary TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS entity_state (
			date TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			state_json TEXT NOT NULL DEFAULT '{}',
			summary TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(date, entity_id)
		);`,
		`CREATE INDEX IF NOT EXISTS entity_state_entity_idx ON entity_state(entity_id, date DESC);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ref_type TEXT NOT NULL DEFAULT '',
			ref_id TEXT NOT NULL DEFAULT '',
			ts_ms INTEGER NOT NULL,
			text TEXT NOT NULL,
			meta_json TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS chunks_ts_idx ON chunks(ts_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS chunks_ref_idx ON chunks(ref_type, ref_id);`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chunk_id INTEGER NOT NULL,
			vector_json TEXT NOT NULL,
			norm REAL NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS embeddings_chunk_idx ON embeddings(chunk_id);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(chunk_id UNINDEXED, text, tokenize='unicode61 remove_diacritics 2');`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(chunk_id, text) VALUES (new.id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, chunk_id, text) VALUES('delete', old.rowid, old.id, old.text);
		END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeAny(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func decodeAny(raw string) any {
	if raw == "" {
		return nil
	}
	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeAnyMap(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeAnyMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func encodeFloatMap(m map[string]float64) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeFloatMap(raw string) map[string]float64 {
	if raw == "" {
		return map[string]float64{}
	}
	out := map[string]float64{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]float64{}
	}
	return out
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	out := []string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeVector(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeVector(raw string) []float32 {
	if raw == "" {
		return nil
	}
	out := []float32{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func (s *SQLiteStore) UpsertEntity(ctx context.Context, payload EntityUpsert) (Entity, error) {
	id := strings.TrimSpace(payload.ID)
	if id == "" {
		name := payload.Name
		if strings.TrimSpace(name) == "" {
			name = payload.Kind
		}
		id = EntityID(payload.Kind, name)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO entities(id, kind, name, meta_json, created_at_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	name = excluded.name,
	meta_json = excluded.meta_json`,
		id, payload.Kind, payload.Name, encodeAnyMap(payload.Meta), nowMS())
	if err != nil {
		return Entity{}, fmt.Errorf("upsert entity: %w", err)
	}
	return s.GetEntity(ctx, id)
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (Entity, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, kind, name, meta_json, created_at_ms
FROM entities WHERE id = ?`, id)
	var out Entity
	var metaRaw string
	if err := row.Scan(&out.ID, &out.Kind, &out.Name, &metaRaw, &out.CreatedAtMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entity{}, ErrNotFound
		}
		return Entity{}, fmt.Errorf("get entity: %w", err)
	}
	out.Meta = decodeAnyMap(metaRaw)
	return out, nil
}

// SetAttribute writes one attribute version. An existing version with the
// same (entity_id, key, valid_from_ms) is replaced.
func (s *SQLiteStore) SetAttribute(ctx context.Context, attr Attribute) error {
	if strings.TrimSpace(attr.EntityID) == "" || strings.TrimSpace(attr.Key) == "" {
		return fmt.Errorf("set attribute: empty entity_id/key")
	}
	if attr.ValidFromMS == 0 {
		attr.ValidFromMS = nowMS()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO attributes(entity_id, key, value_json, valid_from_ms, valid_to_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(entity_id, key, valid_from_ms) DO UPDATE SET
	value_json = excluded.value_json,
	valid_to_ms = excluded.valid_to_ms`,
		attr.EntityID, attr.Key, encodeAny(attr.Value), attr.ValidFromMS, attr.ValidToMS)
	if err != nil {
		return fmt.Errorf("set attribute: %w", err)
	}
	return nil
}

// CloseAttribute ends every open version of (entityID, key) at atMS.
func (s *SQLiteStore) CloseAttribute(ctx context.Context, entityID, key string, atMS int64) error {
	if atMS == 0 {
		atMS = nowMS()
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE attributes
SET valid_to_ms = ?
WHERE entity_id = ? AND key = ? AND valid_to_ms = 0`, atMS, entityID, key)
	if err != nil {
		return fmt.Errorf("close attribute: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddRelation(ctx context.Context, rel Relation) error {
	if strings.TrimSpace(rel.SrcID) == "" || strings.TrimSpace(rel.Rel) == "" || strings.TrimSpace(rel.DstID) == "" {
		return fmt.Errorf("add relation: empty src/rel/dst")
	}
	if rel.ValidFromMS == 0 {
		rel.ValidFromMS = nowMS()
	}
	if rel.Weight == 0 {
		rel.Weight = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO relations(src_id, rel, dst_id, weight, valid_from_ms, valid_to_ms)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(src_id, rel, dst_id, valid_from_ms) DO UPDATE SET
	weight = excluded.weight,
	valid_to_ms = excluded.valid_to_ms`,
		rel.SrcID, rel.Rel, rel.DstID, rel.Weight, rel.ValidFromMS, rel.ValidToMS)
	if err != nil {
		return fmt.Errorf("add relation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CloseRelation(ctx context.Context, srcID, rel, dstID string, atMS int64) error {
	if atMS == 0 {
		atMS = nowMS()
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE relations
SET valid_to_ms = ?
WHERE src_id = ? AND rel = ? AND dst_id = ? AND valid_to_ms = 0`, atMS, srcID, rel, dstID)
	if err != nil {
		return fmt.Errorf("close relation: %w", err)
	}
	return nil
}

// AppendEvent inserts one immutable event. Links are deduplicated keeping
// first-seen order.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev EventInput) (Event, error) {
	ts := ev.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	links := dedupeStrings(ev.Links)

	res, err := s.db.ExecContext(ctx, `
INSERT INTO events(ts_ms, actor_id, type, payload_json, links_json)
VALUES(?, ?, ?, ?, ?)`,
		ts.UnixMilli(), ev.ActorID, ev.Type, encodeAnyMap(ev.Payload), encodeStrings(links))
	if err != nil {
		return Event{}, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, fmt.Errorf("append event id: %w", err)
	}
	return Event{
		ID:      id,
		TS:      ts,
		ActorID: ev.ActorID,
		Type:    ev.Type,
		Payload: ev.Payload,
		Links:   links,
	}, nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// WriteEntityState creates or replaces the snapshot keyed by (date, entity).
func (s *SQLiteStore) WriteEntityState(ctx context.Context, state EntityState) error {
	if strings.TrimSpace(state.Date) == "" || strings.TrimSpace(state.EntityID) == "" {
		return fmt.Errorf("write entity state: empty date/entity_id")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO entity_state(date, entity_id, state_json, summary)
VALUES(?, ?, ?, ?)
ON CONFLICT(date, entity_id) DO UPDATE SET
	state_json = excluded.state_json,
	summary = excluded.summary`,
		state.Date, state.EntityID, encodeFloatMap(state.State), state.Summary)
	if err != nil {
		return fmt.Errorf("write entity state: %w", err)
	}
	return nil
}

// WriteDailyState creates or replaces the global snapshot keyed by date.
func (s *SQLiteStore) WriteDailyState(ctx context.Context, state DailyState) error {
	if strings.TrimSpace(state.Date) == "" {
		return fmt.Errorf("write daily state: empty date")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO daily_state(date, global_json, summary)
VALUES(?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
	global_json = excluded.global_json,
	summary = excluded.summary`,
		state.Date, encodeAnyMap(state.Global), state.Summary)
	if err != nil {
		return fmt.Errorf("write daily state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLatestEntityState(ctx context.Context, entityID string) (EntityState, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT date, entity_id, state_json, summary
FROM entity_state
WHERE entity_id = ?
ORDER BY date DESC
LIMIT 1`, entityID)
	return scanEntityStateRow(row, "get latest entity state")
}

func (s *SQLiteStore) GetDailyState(ctx context.Context, date string) (DailyState, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT date, global_json, summary FROM daily_state WHERE date = ?`, date)
	var out DailyState
	var globalRaw string
	if err := row.Scan(&out.Date, &globalRaw, &out.Summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DailyState{}, ErrNotFound
		}
		return DailyState{}, fmt.Errorf("get daily state: %w", err)
	}
	out.Global = decodeAnyMap(globalRaw)
	return out, nil
}

func scanEntityStateRow(row *sql.Row, op string) (EntityState, error) {
	var out EntityState
	var stateRaw string
	if err := row.Scan(&out.Date, &out.EntityID, &stateRaw, &out.Summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EntityState{}, ErrNotFound
		}
		return EntityState{}, fmt.Errorf("%s: %w", op, err)
	}
	out.State = decodeFloatMap(stateRaw)
	return out, nil
}

// GetRecentEntityStates returns snapshots for the scoped entities no older
// than days, newest first. An empty scope yields an empty result.
func (s *SQLiteStore) GetRecentEntityStates(ctx context.Context, entityIDs []string, days int) ([]EntityState, error) {
	if len(entityIDs) == 0 {
		return []EntityState{}, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	placeholders := strings.TrimRight(strings.Repeat("?,", len(entityIDs)), ",")
	args := make([]any, 0, len(entityIDs)+1)
	for _, id := range entityIDs {
		args = append(args, id)
	}
	args = append(args, cutoff)

	query := fmt.Sprintf(`
SELECT date, entity_id, state_json, summary
FROM entity_state
WHERE entity_id IN (%s) AND date >= ?
ORDER BY date DESC, entity_id`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get recent entity states: %w", err)
	}
	defer rows.Close()

	out := []EntityState{}
	for rows.Next() {
		var st EntityState
		var stateRaw string
		if err := rows.Scan(&st.Date, &st.EntityID, &stateRaw, &st.Summary); err != nil {
			return nil, fmt.Errorf("scan entity state: %w", err)
		}
		st.State = decodeFloatMap(stateRaw)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity states: %w", err)
	}
	return out, nil
}

// GetRecentEvents returns events inside the window whose links intersect
// the scope, newest first. An empty scope yields an empty result.
func (s *SQLiteStore) GetRecentEvents(ctx context.Context, entityIDs []string, windowDays, limit int) ([]Event, error) {
	if len(entityIDs) == 0 {
		return []Event{}, nil
	}
	if limit <= 0 {
		limit = 1
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays).UnixMilli()
	placeholders := strings.TrimRight(strings.Repeat("?,", len(entityIDs)), ",")
	args := []any{since}
	for _, id := range entityIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
SELECT id, ts_ms, actor_id, type, payload_json, links_json
FROM events
WHERE ts_ms >= ?
AND EXISTS (SELECT 1 FROM json_each(events.links_json) WHERE json_each.value IN (%s))
ORDER BY ts_ms DESC, id DESC
LIMIT ?`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var ev Event
	var tsMS int64
	var payloadRaw, linksRaw string
	if err := rows.Scan(&ev.ID, &tsMS, &ev.ActorID, &ev.Type, &payloadRaw, &linksRaw); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.TS = time.UnixMilli(tsMS).UTC()
	ev.Payload = decodeAnyMap(payloadRaw)
	ev.Links = decodeStrings(linksRaw)
	return ev, nil
}

// AddChunks inserts the batch in one transaction and returns the stored
// records with assigned ids, in input order.
func (s *SQLiteStore) AddChunks(ctx context.Context, chunks []ChunkInput) ([]Chunk, error) {
	if len(chunks) == 0 {
		return []Chunk{}, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("add chunks begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		ts := chunk.TS
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO chunks(ref_type, ref_id, ts_ms, text, meta_json)
VALUES(?, ?, ?, ?, ?)`,
			chunk.RefType, chunk.RefID, ts.UnixMilli(), chunk.Text, encodeAnyMap(chunk.Meta))
		if err != nil {
			return nil, fmt.Errorf("add chunk: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("add chunk id: %w", err)
		}
		out = append(out, Chunk{
			ID:      id,
			RefType: chunk.RefType,
			RefID:   chunk.RefID,
			TS:      ts,
			Text:    chunk.Text,
			Meta:    chunk.Meta,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("add chunks commit: %w", err)
	}
	return out, nil
}

// AddEmbeddings inserts the batch in one transaction. Vectors are padded
// or truncated to the store dimension first.
func (s *SQLiteStore) AddEmbeddings(ctx context.Context, vectors []ChunkVector) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add embeddings begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowMS()
	for _, cv := range vectors {
		vec := padOrTrim(cv.Vector, s.vectorDim)
		if _, err := tx.ExecContext(ctx, `
INSERT INTO embeddings(chunk_id, vector_json, norm, created_at_ms)
VALUES(?, ?, ?, ?)`,
			cv.ChunkID, encodeVector(vec), vectorNorm(vec), now); err != nil {
			return 0, fmt.Errorf("add embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add embeddings commit: %w", err)
	}
	return len(vectors), nil
}

func (s *SQLiteStore) PruneChunkEmbeddings(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(chunkIDs)), ",")
	args := make([]any, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		args = append(args, id)
	}
	query := fmt.Sprintf(`DELETE FROM embeddings WHERE chunk_id IN (%s)`, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("prune chunk embeddings: %w", err)
	}
	return nil
}

// KeywordSearchChunks matches any of the keywords via FTS and returns the
// most recent hits first. No keywords means no results.
func (s *SQLiteStore) KeywordSearchChunks(ctx context.Context, keywords []string, limit int) ([]Chunk, error) {
	if limit <= 0 {
		limit = 1
	}
	match := ftsQuery(keywords)
	if match == "" {
		return []Chunk{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.ref_type, c.ref_id, c.ts_ms, c.text, c.meta_json
FROM chunks_fts f
JOIN chunks c ON c.id = f.chunk_id
WHERE f.text MATCH ?
ORDER BY c.ts_ms DESC, c.id DESC
LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ftsQuery builds an OR match expression, quoting each term so keyword
// text can never be parsed as FTS syntax.
func ftsQuery(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ReplaceAll(kw, `"`, `""`))
		if kw == "" {
			continue
		}
		terms = append(terms, `"`+kw+`"`)
	}
	return strings.Join(terms, " OR ")
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	out := []Chunk{}
	for rows.Next() {
		var c Chunk
		var tsMS int64
		var metaRaw string
		if err := rows.Scan(&c.ID, &c.RefType, &c.RefID, &tsMS, &c.Text, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.TS = time.UnixMilli(tsMS).UTC()
		c.Meta = decodeAnyMap(metaRaw)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

// VectorSearchChunks ranks stored embeddings by cosine similarity against
// the query vector, in process. A store with no embeddings yields an empty
// result, which callers treat as absent semantic signal rather than an
// error.
func (s *SQLiteStore) VectorSearchChunks(ctx context.Context, vector []float32, limit int) ([]ScoredChunk, error) {
	if len(vector) == 0 {
		return []ScoredChunk{}, nil
	}
	if limit <= 0 {
		limit = 1
	}
	query := padOrTrim(vector, s.vectorDim)

	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.ref_type, c.ref_id, c.ts_ms, c.text, c.meta_json, e.vector_json
FROM embeddings e
JOIN chunks c ON c.id = e.chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("vector search chunks: %w", err)
	}
	defer rows.Close()

	out := []ScoredChunk{}
	for rows.Next() {
		var c Chunk
		var tsMS int64
		var metaRaw, vecRaw string
		if err := rows.Scan(&c.ID, &c.RefType, &c.RefID, &tsMS, &c.Text, &metaRaw, &vecRaw); err != nil {
			return nil, fmt.Errorf("scan embedded chunk: %w", err)
		}
		c.TS = time.UnixMilli(tsMS).UTC()
		c.Meta = decodeAnyMap(metaRaw)
		out = append(out, ScoredChunk{Chunk: c, Score: cosineSimilarity(query, decodeVector(vecRaw))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedded chunks: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TS.After(out[j].TS)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLiteStore) GetCounts(ctx context.Context) (Counts, error) {
	var out Counts
	counts := []struct {
		table string
		dst   *int
	}{
		{"entities", &out.Entities},
		{"events", &out.Events},
		{"chunks", &out.Chunks},
		{"embeddings", &out.Embeddings},
	}
	for _, c := range counts {
		row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table))
		if err := row.Scan(c.dst); err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return out, nil
}

// GetLastChunkTime returns the timestamp of the newest chunk, or nil when
// the store has never seen a tick.
func (s *SQLiteStore) GetLastChunkTime(ctx context.Context) (*time.Time, error) {
	row := s.db.QueryRowContext(ctx, `SELECT MAX(ts_ms) FROM chunks`)
	var tsMS sql.NullInt64
	if err := row.Scan(&tsMS); err != nil {
		return nil, fmt.Errorf("get last chunk time: %w", err)
	}
	if !tsMS.Valid {
		return nil, nil
	}
	ts := time.UnixMilli(tsMS.Int64).UTC()
	return &ts, nil
}

// padOrTrim forces vec to dim entries, truncating or zero padding.
func padOrTrim(vec []float32, dim int) []float32 {
	if dim <= 0 || len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}
