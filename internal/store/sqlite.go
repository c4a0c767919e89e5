package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// SQLiteStore implements RelationalStore over modernc.org/sqlite. All
// entities, observations, and relationships carry bi-temporal validity
// columns; retraction is an update, never a delete, so history survives.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ RelationalStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the relational store at path. An empty
// path opens an in-memory database, used by tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer avoids SQLITE_BUSY under the pure-Go driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);
	INSERT OR IGNORE INTO schema_version (version) VALUES (1);

	CREATE TABLE IF NOT EXISTS entities (
		id            TEXT NOT NULL,
		name          TEXT NOT NULL,
		category      TEXT NOT NULL,
		kind          TEXT NOT NULL,
		metadata      TEXT NOT NULL DEFAULT '{}',
		asserted_at   TIMESTAMP NOT NULL,
		retracted_at  TIMESTAMP,
		assertive     INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (id, asserted_at)
	);
	CREATE INDEX IF NOT EXISTS idx_entities_id ON entities(id);
	CREATE INDEX IF NOT EXISTS idx_entities_category ON entities(category);

	CREATE TABLE IF NOT EXISTS observations (
		id            TEXT NOT NULL,
		entity_id     TEXT NOT NULL,
		text          TEXT NOT NULL,
		session_id    TEXT NOT NULL DEFAULT '',
		task_id       TEXT NOT NULL DEFAULT '',
		asserted_at   TIMESTAMP NOT NULL,
		retracted_at  TIMESTAMP,
		assertive     INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (id, asserted_at)
	);
	CREATE INDEX IF NOT EXISTS idx_observations_entity ON observations(entity_id);
	CREATE INDEX IF NOT EXISTS idx_observations_session ON observations(session_id);

	CREATE TABLE IF NOT EXISTS relationships (
		id             TEXT NOT NULL,
		from_id        TEXT NOT NULL,
		to_id          TEXT NOT NULL,
		relation_type  TEXT NOT NULL,
		strength       REAL NOT NULL DEFAULT 1.0,
		confidence     REAL NOT NULL DEFAULT 1.0,
		metadata       TEXT NOT NULL DEFAULT '{}',
		asserted_at    TIMESTAMP NOT NULL,
		retracted_at   TIMESTAMP,
		assertive      INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (id, asserted_at)
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships(relation_type);

	CREATE TABLE IF NOT EXISTS entity_rank (
		entity_id  TEXT PRIMARY KEY,
		score      REAL NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS search_cache (
		fingerprint TEXT PRIMARY KEY,
		payload     BLOB NOT NULL,
		expires_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_search_cache_expires ON search_cache(expires_at);

	CREATE TABLE IF NOT EXISTS strategy_performance (
		strategy     TEXT PRIMARY KEY,
		attempts     INTEGER NOT NULL DEFAULT 0,
		reward_total REAL NOT NULL DEFAULT 0,
		reward_mean  REAL NOT NULL DEFAULT 0,
		cost_total   REAL NOT NULL DEFAULT 0,
		last_used_at TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func marshalMetadata(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]string, error) {
	if s == "" {
		return map[string]string{}, nil
	}
	m := map[string]string{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// dbExecutor is satisfied by both *sql.DB and *sql.Tx, so every query body
// below runs unmodified whether called directly or through WithTx.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveEntity inserts a new validity row for an entity. Callers retract the
// prior row (if any) via RetractEntity before asserting a replacement, so
// history accumulates rather than being overwritten.
func (s *SQLiteStore) SaveEntity(ctx context.Context, e *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEntity(ctx, s.db, e)
}

func saveEntity(ctx context.Context, ex dbExecutor, e *Entity) error {
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO entities (id, name, category, kind, metadata, asserted_at, retracted_at, assertive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Category, e.Kind, meta,
		e.Validity.AssertedAt, nullableTime(e.Validity.RetractedAt), boolToInt(e.Validity.Assertive))
	if err != nil {
		return fmt.Errorf("save entity %s: %w", e.ID, err)
	}
	return nil
}

// GetEntity returns the entity row current as of asOf, or nil if none is.
func (s *SQLiteStore) GetEntity(ctx context.Context, id string, asOf time.Time) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntity(ctx, s.db, id, asOf)
}

func getEntity(ctx context.Context, ex dbExecutor, id string, asOf time.Time) (*Entity, error) {
	row := ex.QueryRowContext(ctx, `
		SELECT id, name, category, kind, metadata, asserted_at, retracted_at, assertive
		FROM entities
		WHERE id = ? AND assertive = 1 AND asserted_at <= ?
		  AND (retracted_at IS NULL OR retracted_at > ?)
		ORDER BY asserted_at DESC LIMIT 1`, id, asOf, asOf)

	return scanEntity(row)
}

// RetractEntity marks the entity's current validity row as retracted at at.
func (s *SQLiteStore) RetractEntity(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retractEntity(ctx, s.db, id, at)
}

func retractEntity(ctx context.Context, ex dbExecutor, id string, at time.Time) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE entities SET retracted_at = ?
		WHERE id = ? AND assertive = 1 AND retracted_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("retract entity %s: %w", id, err)
	}
	return nil
}

// ListEntities returns up to limit entities current as of asOf.
func (s *SQLiteStore) ListEntities(ctx context.Context, asOf time.Time, limit int) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, kind, metadata, asserted_at, retracted_at, assertive
		FROM entities
		WHERE assertive = 1 AND asserted_at <= ?
		  AND (retracted_at IS NULL OR retracted_at > ?)
		ORDER BY asserted_at DESC LIMIT ?`, asOf, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var meta string
	var retractedAt sql.NullTime
	var assertive int
	err := row.Scan(&e.ID, &e.Name, &e.Category, &e.Kind, &meta, &e.Validity.AssertedAt, &retractedAt, &assertive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.Metadata, err = unmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	if retractedAt.Valid {
		e.Validity.RetractedAt = retractedAt.Time
	}
	e.Validity.Assertive = assertive != 0
	return &e, nil
}

func scanEntityRow(rows *sql.Rows) (*Entity, error) {
	var e Entity
	var meta string
	var retractedAt sql.NullTime
	var assertive int
	if err := rows.Scan(&e.ID, &e.Name, &e.Category, &e.Kind, &meta, &e.Validity.AssertedAt, &retractedAt, &assertive); err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	var err error
	e.Metadata, err = unmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	if retractedAt.Valid {
		e.Validity.RetractedAt = retractedAt.Time
	}
	e.Validity.Assertive = assertive != 0
	return &e, nil
}

// SaveObservation inserts a new validity row for an observation. Embeddings
// live in the vector store, not here, so Embedding is never persisted by
// SQLiteStore.
func (s *SQLiteStore) SaveObservation(ctx context.Context, o *Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveObservation(ctx, s.db, o)
}

func saveObservation(ctx context.Context, ex dbExecutor, o *Observation) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO observations (id, entity_id, text, session_id, task_id, asserted_at, retracted_at, assertive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.EntityID, o.Text, o.SessionID, o.TaskID,
		o.Validity.AssertedAt, nullableTime(o.Validity.RetractedAt), boolToInt(o.Validity.Assertive))
	if err != nil {
		return fmt.Errorf("save observation %s: %w", o.ID, err)
	}
	return nil
}

// GetObservationsByEntity returns observations on entityID current as of asOf.
func (s *SQLiteStore) GetObservationsByEntity(ctx context.Context, entityID string, asOf time.Time) ([]*Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getObservationsByEntity(ctx, s.db, entityID, asOf)
}

func getObservationsByEntity(ctx context.Context, ex dbExecutor, entityID string, asOf time.Time) ([]*Observation, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT id, entity_id, text, session_id, task_id, asserted_at, retracted_at, assertive
		FROM observations
		WHERE entity_id = ? AND assertive = 1 AND asserted_at <= ?
		  AND (retracted_at IS NULL OR retracted_at > ?)
		ORDER BY asserted_at ASC`, entityID, asOf, asOf)
	if err != nil {
		return nil, fmt.Errorf("get observations for %s: %w", entityID, err)
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		var o Observation
		var retractedAt sql.NullTime
		var assertive int
		if err := rows.Scan(&o.ID, &o.EntityID, &o.Text, &o.SessionID, &o.TaskID, &o.Validity.AssertedAt, &retractedAt, &assertive); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if retractedAt.Valid {
			o.Validity.RetractedAt = retractedAt.Time
		}
		o.Validity.Assertive = assertive != 0
		out = append(out, &o)
	}
	return out, rows.Err()
}

// RetractObservation marks an observation's current validity row as retracted.
func (s *SQLiteStore) RetractObservation(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retractObservation(ctx, s.db, id, at)
}

func retractObservation(ctx context.Context, ex dbExecutor, id string, at time.Time) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE observations SET retracted_at = ?
		WHERE id = ? AND assertive = 1 AND retracted_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("retract observation %s: %w", id, err)
	}
	return nil
}

// SaveRelationship inserts a new validity row for a relationship edge.
func (s *SQLiteStore) SaveRelationship(ctx context.Context, r *Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRelationship(ctx, s.db, r)
}

func saveRelationship(ctx context.Context, ex dbExecutor, r *Relationship) error {
	meta, err := marshalMetadata(r.Metadata)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO relationships (id, from_id, to_id, relation_type, strength, confidence, metadata, asserted_at, retracted_at, assertive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromID, r.ToID, r.RelationType, r.Strength, r.Confidence, meta,
		r.Validity.AssertedAt, nullableTime(r.Validity.RetractedAt), boolToInt(r.Validity.Assertive))
	if err != nil {
		return fmt.Errorf("save relationship %s: %w", r.ID, err)
	}
	return nil
}

// GetRelationship returns the most recent validity row for id, regardless
// of whether it is currently asserted.
func (s *SQLiteStore) GetRelationship(ctx context.Context, id string) (*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, from_id, to_id, relation_type, strength, confidence, metadata, asserted_at, retracted_at, assertive
		FROM relationships WHERE id = ? ORDER BY asserted_at DESC LIMIT 1`, id)
	return scanRelationship(row)
}

// GetRelationshipsFrom returns outgoing edges from entityID current as of asOf.
func (s *SQLiteStore) GetRelationshipsFrom(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRelationships(ctx, s.db, "from_id", entityID, asOf)
}

// GetRelationshipsTo returns incoming edges to entityID current as of asOf.
func (s *SQLiteStore) GetRelationshipsTo(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRelationships(ctx, s.db, "to_id", entityID, asOf)
}

func queryRelationships(ctx context.Context, ex dbExecutor, column, entityID string, asOf time.Time) ([]*Relationship, error) {
	query := fmt.Sprintf(`
		SELECT id, from_id, to_id, relation_type, strength, confidence, metadata, asserted_at, retracted_at, assertive
		FROM relationships
		WHERE %s = ? AND assertive = 1 AND asserted_at <= ?
		  AND (retracted_at IS NULL OR retracted_at > ?)
		ORDER BY asserted_at ASC`, column)

	rows, err := ex.QueryContext(ctx, query, entityID, asOf, asOf)
	if err != nil {
		return nil, fmt.Errorf("query relationships by %s: %w", column, err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		r, err := scanRelationshipRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRelationship(row *sql.Row) (*Relationship, error) {
	var r Relationship
	var meta string
	var retractedAt sql.NullTime
	var assertive int
	err := row.Scan(&r.ID, &r.FromID, &r.ToID, &r.RelationType, &r.Strength, &r.Confidence, &meta, &r.Validity.AssertedAt, &retractedAt, &assertive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan relationship: %w", err)
	}
	r.Metadata, err = unmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	if retractedAt.Valid {
		r.Validity.RetractedAt = retractedAt.Time
	}
	r.Validity.Assertive = assertive != 0
	return &r, nil
}

func scanRelationshipRow(rows *sql.Rows) (*Relationship, error) {
	var r Relationship
	var meta string
	var retractedAt sql.NullTime
	var assertive int
	if err := rows.Scan(&r.ID, &r.FromID, &r.ToID, &r.RelationType, &r.Strength, &r.Confidence, &meta, &r.Validity.AssertedAt, &retractedAt, &assertive); err != nil {
		return nil, fmt.Errorf("scan relationship: %w", err)
	}
	var err error
	r.Metadata, err = unmarshalMetadata(meta)
	if err != nil {
		return nil, err
	}
	if retractedAt.Valid {
		r.Validity.RetractedAt = retractedAt.Time
	}
	r.Validity.Assertive = assertive != 0
	return &r, nil
}

// RetractRelationship marks a relationship's current validity row as retracted.
func (s *SQLiteStore) RetractRelationship(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return retractRelationship(ctx, s.db, id, at)
}

func retractRelationship(ctx context.Context, ex dbExecutor, id string, at time.Time) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE relationships SET retracted_at = ?
		WHERE id = ? AND assertive = 1 AND retracted_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("retract relationship %s: %w", id, err)
	}
	return nil
}

// txWriter binds the write subset of RelationalStore to a single SQLite
// transaction. Every call made through it commits together on WithTx's fn
// returning nil, or rolls back together on fn returning an error.
type txWriter struct {
	tx *sql.Tx
}

var _ BatchWriter = (*txWriter)(nil)

func (t *txWriter) SaveEntity(ctx context.Context, e *Entity) error { return saveEntity(ctx, t.tx, e) }
func (t *txWriter) GetEntity(ctx context.Context, id string, asOf time.Time) (*Entity, error) {
	return getEntity(ctx, t.tx, id, asOf)
}
func (t *txWriter) RetractEntity(ctx context.Context, id string, at time.Time) error {
	return retractEntity(ctx, t.tx, id, at)
}

func (t *txWriter) SaveObservation(ctx context.Context, o *Observation) error {
	return saveObservation(ctx, t.tx, o)
}
func (t *txWriter) GetObservationsByEntity(ctx context.Context, entityID string, asOf time.Time) ([]*Observation, error) {
	return getObservationsByEntity(ctx, t.tx, entityID, asOf)
}
func (t *txWriter) RetractObservation(ctx context.Context, id string, at time.Time) error {
	return retractObservation(ctx, t.tx, id, at)
}

func (t *txWriter) SaveRelationship(ctx context.Context, r *Relationship) error {
	return saveRelationship(ctx, t.tx, r)
}
func (t *txWriter) GetRelationshipsFrom(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error) {
	return queryRelationships(ctx, t.tx, "from_id", entityID, asOf)
}
func (t *txWriter) GetRelationshipsTo(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error) {
	return queryRelationships(ctx, t.tx, "to_id", entityID, asOf)
}
func (t *txWriter) RetractRelationship(ctx context.Context, id string, at time.Time) error {
	return retractRelationship(ctx, t.tx, id, at)
}

// WithTx runs fn inside a single SQLite transaction: every write fn makes
// through tx commits together if fn returns nil, or none do if fn returns
// an error (§4.1's transaction op).
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx BatchWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &txWriter{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// programs maps a fixed set of named queries onto prepared SQL, standing in
// for the spec's embedded Datalog engine (DESIGN.md Open Question (a)).
var programs = map[string]string{
	// neighbors2hop returns entities reachable from :entity_id in exactly
	// two directed hops, deduplicated.
	"neighbors2hop": `
		SELECT DISTINCT r2.to_id AS entity_id
		FROM relationships r1
		JOIN relationships r2 ON r2.from_id = r1.to_id
		WHERE r1.from_id = :entity_id
		  AND r1.assertive = 1 AND (r1.retracted_at IS NULL OR r1.retracted_at > :as_of)
		  AND r2.assertive = 1 AND (r2.retracted_at IS NULL OR r2.retracted_at > :as_of)
		  AND r2.to_id != :entity_id`,

	// sharedRelationType finds entity pairs connected by the same
	// relation_type to a common third entity, a candidate for a logical
	// (derived) edge.
	"sharedRelationType": `
		SELECT DISTINCT r1.from_id AS entity_a, r2.from_id AS entity_b, r1.relation_type AS relation_type
		FROM relationships r1
		JOIN relationships r2 ON r2.to_id = r1.to_id AND r2.relation_type = r1.relation_type
		WHERE r1.from_id != r2.from_id
		  AND r1.assertive = 1 AND (r1.retracted_at IS NULL OR r1.retracted_at > :as_of)
		  AND r2.assertive = 1 AND (r2.retracted_at IS NULL OR r2.retracted_at > :as_of)`,
}

// Run executes a named program against the relational store. Unknown
// program names return an error rather than falling back to arbitrary SQL.
func (s *SQLiteStore) Run(ctx context.Context, program string, params map[string]any) ([]map[string]any, error) {
	query, ok := programs[program]
	if !ok {
		return nil, fmt.Errorf("unknown program %q", program)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	namedArgs := make([]any, 0, len(params))
	for k, v := range params {
		namedArgs = append(namedArgs, sql.Named(k, v))
	}

	rows, err := s.db.QueryContext(ctx, query, namedArgs...)
	if err != nil {
		return nil, fmt.Errorf("run program %s: %w", program, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan program result: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// SaveEntityRank upserts pagerank-style importance scores.
func (s *SQLiteStore) SaveEntityRank(ctx context.Context, ranks []*EntityRank) error {
	if len(ranks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity_rank (entity_id, score, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range ranks {
		if _, err := stmt.ExecContext(ctx, r.EntityID, r.Score, r.UpdatedAt); err != nil {
			return fmt.Errorf("save entity rank %s: %w", r.EntityID, err)
		}
	}
	return tx.Commit()
}

// GetEntityRank returns entityID's last computed rank, or 0 if none exists.
func (s *SQLiteStore) GetEntityRank(ctx context.Context, entityID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var score float64
	err := s.db.QueryRowContext(ctx, `SELECT score FROM entity_rank WHERE entity_id = ?`, entityID).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get entity rank %s: %w", entityID, err)
	}
	return score, nil
}

// GetCachedResult returns a cached retrieval payload if present and unexpired.
func (s *SQLiteStore) GetCachedResult(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, expires_at FROM search_cache WHERE fingerprint = ?`, fingerprint).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached result %s: %w", fingerprint, err)
	}
	if !expiresAt.After(time.Now()) {
		return nil, false, nil
	}
	return payload, true, nil
}

// PutCachedResult stores (or replaces) a cached retrieval payload.
func (s *SQLiteStore) PutCachedResult(ctx context.Context, fingerprint string, payload []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_cache (fingerprint, payload, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		fingerprint, payload, expiresAt)
	if err != nil {
		return fmt.Errorf("put cached result %s: %w", fingerprint, err)
	}
	return nil
}

// EvictExpiredCacheEntries removes cache rows whose expiry has passed asOf,
// returning the count removed for the janitor's log line.
func (s *SQLiteStore) EvictExpiredCacheEntries(ctx context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM search_cache WHERE expires_at <= ?`, asOf)
	if err != nil {
		return 0, fmt.Errorf("evict expired cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected: %w", err)
	}
	return int(n), nil
}

// SaveStrategyStats upserts one strategy's accumulated reward statistics.
func (s *SQLiteStore) SaveStrategyStats(ctx context.Context, strategy string, stats StrategyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastUsed any
	if !stats.LastUsedAt.IsZero() {
		lastUsed = stats.LastUsedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategy_performance (strategy, attempts, reward_total, reward_mean, cost_total, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy) DO UPDATE SET
			attempts = excluded.attempts,
			reward_total = excluded.reward_total,
			reward_mean = excluded.reward_mean,
			cost_total = excluded.cost_total,
			last_used_at = excluded.last_used_at`,
		strategy, stats.Attempts, stats.RewardTotal, stats.RewardMean, stats.CostTotal, lastUsed)
	if err != nil {
		return fmt.Errorf("save strategy stats %s: %w", strategy, err)
	}
	return nil
}

// LoadStrategyStats returns all persisted strategy statistics, keyed by
// strategy name, used to seed the adaptive selector on startup.
func (s *SQLiteStore) LoadStrategyStats(ctx context.Context) (map[string]StrategyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT strategy, attempts, reward_total, reward_mean, cost_total, last_used_at FROM strategy_performance`)
	if err != nil {
		return nil, fmt.Errorf("load strategy stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StrategyStats)
	for rows.Next() {
		var stats StrategyStats
		var lastUsed sql.NullTime
		if err := rows.Scan(&stats.Strategy, &stats.Attempts, &stats.RewardTotal, &stats.RewardMean, &stats.CostTotal, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan strategy stats: %w", err)
		}
		if lastUsed.Valid {
			stats.LastUsedAt = lastUsed.Time
		}
		out[stats.Strategy] = stats
	}
	return out, rows.Err()
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
