// Package store persists sessions, steps, conversation history, and audit
// events in SQLite. Events and steps each form an independent hash chain per
// session, seeded with 64 hex zeros, so post-hoc tampering with any stored
// payload is detectable by recomputation.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/Shivay00001/aria-runtime/pkg/models"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id      TEXT PRIMARY KEY,
    task            TEXT NOT NULL,
    status          TEXT NOT NULL,
    config_json     TEXT NOT NULL,
    started_at      TEXT NOT NULL,
    finished_at     TEXT,
    total_steps     INTEGER DEFAULT 0,
    total_cost_usd  REAL DEFAULT 0.0,
    error_type      TEXT,
    error_msg       TEXT
);

CREATE TABLE IF NOT EXISTS steps (
    step_id             TEXT PRIMARY KEY,
    session_id          TEXT NOT NULL REFERENCES sessions(session_id),
    step_number         INTEGER NOT NULL,
    step_type           TEXT NOT NULL,
    status              TEXT NOT NULL,
    prompt_hash         TEXT,
    model_output_hash   TEXT,
    tool_name           TEXT,
    tool_input_json     TEXT,
    tool_output_json    TEXT,
    input_tokens        INTEGER,
    output_tokens       INTEGER,
    cost_usd            REAL,
    duration_ms         INTEGER,
    started_at          TEXT NOT NULL,
    finished_at         TEXT,
    audit_chain_hash    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_steps_session ON steps(session_id, step_number);

CREATE TABLE IF NOT EXISTS kv_memory (
    key        TEXT NOT NULL,
    namespace  TEXT NOT NULL DEFAULT 'default',
    value_json TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    session_id TEXT,
    PRIMARY KEY (key, namespace)
);

CREATE TABLE IF NOT EXISTS audit_events (
    event_id     TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL,
    step_id      TEXT,
    event_type   TEXT NOT NULL,
    level        TEXT NOT NULL,
    payload_json TEXT NOT NULL,
    chain_hash   TEXT NOT NULL,
    timestamp    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id, timestamp);
`

// MemoryStore is the kernel's view of durable session state.
type MemoryStore interface {
	CreateSession(sessionID, task string, config models.KernelConfig) error
	UpdateSessionStatus(sessionID string, status models.SessionStatus, totalSteps int, totalCostUSD float64, errorType, errorMsg string) error
	GetConversationHistory(sessionID string) ([]models.Message, error)
	AppendMessage(sessionID string, msg models.Message) error
	SetKV(key string, value any, namespace, sessionID string) error
	GetKV(key, namespace string) (any, error)
}

// AuditLog is the tamper-evident trail consumed by the kernel, router, and
// sandbox boundaries.
type AuditLog interface {
	WriteStepStart(trace *models.StepTrace) error
	WriteStepEnd(trace *models.StepTrace) error
	WriteEvent(event *models.AuditEvent) error
	GetSessionEvents(sessionID string) ([]models.AuditEvent, error)
	VerifyChain(sessionID string) bool
}

// Store is the SQLite implementation of MemoryStore and AuditLog. Writes run
// in a single transaction per call; any write error is AuditWriteFailureError
// and any read error is MemoryCorruptionError.
type Store struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	chains map[string]string // per-session chain heads, keyed "<sid>:event" / "<sid>:step"
}

// Open opens (creating if needed) the database at path, applies the schema,
// and runs an integrity check. The parent directory is created when absent.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, &models.MemoryCorruptionError{Op: "open", Cause: err}
		}
	}
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &models.MemoryCorruptionError{Op: "open", Cause: err}
	}
	// SQLite allows one writer; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, chains: map[string]string{}}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.integrityCheck(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadChainHeads(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle. Schema application and the
// integrity check are skipped; used by tests that inject failing handles.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, chains: map[string]string{}}
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) applySchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return &models.MemoryCorruptionError{Op: "schema", Cause: err}
	}
	var current sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&current); err != nil {
		return &models.MemoryCorruptionError{Op: "schema", Cause: err}
	}
	if !current.Valid || current.Int64 < schemaVersion {
		_, err := s.db.Exec(
			"INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, ?)",
			schemaVersion, models.UTCNow())
		if err != nil {
			return &models.MemoryCorruptionError{Op: "schema", Cause: err}
		}
	}
	return nil
}

func (s *Store) integrityCheck() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return &models.MemoryCorruptionError{Op: "integrity_check", Cause: err}
	}
	if result != "ok" {
		return &models.MemoryCorruptionError{Op: "integrity_check", Cause: fmt.Errorf("sqlite reports %q", result)}
	}
	return nil
}

// loadChainHeads reloads the last chain value per session so appends continue
// the chain across process restarts.
func (s *Store) loadChainHeads() error {
	rows, err := s.db.Query(`
		SELECT session_id, chain_hash FROM audit_events
		WHERE rowid IN (SELECT MAX(rowid) FROM audit_events GROUP BY session_id)`)
	if err != nil {
		return &models.MemoryCorruptionError{Op: "load_chain_heads", Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		var sid, hash string
		if err := rows.Scan(&sid, &hash); err != nil {
			return &models.MemoryCorruptionError{Op: "load_chain_heads", Cause: err}
		}
		s.chains[sid+":event"] = hash
	}
	if err := rows.Err(); err != nil {
		return &models.MemoryCorruptionError{Op: "load_chain_heads", Cause: err}
	}

	stepRows, err := s.db.Query(`
		SELECT session_id, audit_chain_hash FROM steps
		WHERE rowid IN (SELECT MAX(rowid) FROM steps GROUP BY session_id)`)
	if err != nil {
		return &models.MemoryCorruptionError{Op: "load_chain_heads", Cause: err}
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var sid, hash string
		if err := stepRows.Scan(&sid, &hash); err != nil {
			return &models.MemoryCorruptionError{Op: "load_chain_heads", Cause: err}
		}
		s.chains[sid+":step"] = hash
	}
	return stepRows.Err()
}

// nextChainHash advances the per-session chain in the given namespace:
// H(prev || H(payload)), seeded with models.ChainSeed.
func (s *Store) nextChainHash(sessionID, namespace, payload string) string {
	key := sessionID + ":" + namespace
	prev, ok := s.chains[key]
	if !ok {
		prev = models.ChainSeed
	}
	next := models.SHA256Hex(prev + models.SHA256Hex(payload))
	s.chains[key] = next
	return next
}

// ── MemoryStore ──────────────────────────────────────────────────────────────

// CreateSession inserts a new IDLE session row.
func (s *Store) CreateSession(sessionID, task string, config models.KernelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO sessions (session_id, task, status, config_json, started_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, task, string(models.SessionIdle), config.Snapshot(), models.UTCNow())
	if err != nil {
		return &models.AuditWriteFailureError{Op: "create_session", Cause: err}
	}
	return nil
}

// UpdateSessionStatus syncs the session row, stamping finished_at when the
// status is terminal.
func (s *Store) UpdateSessionStatus(sessionID string, status models.SessionStatus, totalSteps int, totalCostUSD float64, errorType, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var finished any
	if status.IsTerminal() {
		finished = models.UTCNow()
	}
	_, err := s.db.Exec(
		"UPDATE sessions SET status=?, total_steps=?, total_cost_usd=?, finished_at=?, error_type=?, error_msg=? WHERE session_id=?",
		string(status), totalSteps, totalCostUSD, finished, nullable(errorType), nullable(errorMsg), sessionID)
	if err != nil {
		return &models.AuditWriteFailureError{Op: "update_session_status", Cause: err}
	}
	return nil
}

// GetConversationHistory loads the ordered message sequence for a session.
// An unknown session has an empty history.
func (s *Store) GetConversationHistory(sessionID string) ([]models.Message, error) {
	raw, err := s.GetKV("conv_"+sessionID, "system")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_conversation_history", Cause: err}
	}
	var msgs []models.Message
	if err := json.Unmarshal(encoded, &msgs); err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_conversation_history", Cause: err}
	}
	return msgs, nil
}

// AppendMessage appends to the session's conversation. The history is stored
// as conversation KV under conv_<session_id> in the system namespace.
func (s *Store) AppendMessage(sessionID string, msg models.Message) error {
	history, err := s.GetConversationHistory(sessionID)
	if err != nil {
		return err
	}
	history = append(history, msg)
	return s.SetKV("conv_"+sessionID, history, "system", sessionID)
}

// SetKV upserts a (key, namespace) entry, preserving created_at on replace.
func (s *Store) SetKV(key string, value any, namespace, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := json.Marshal(value)
	if err != nil {
		return &models.AuditWriteFailureError{Op: "set_kv", Cause: err}
	}
	now := models.UTCNow()

	tx, err := s.db.Begin()
	if err != nil {
		return &models.AuditWriteFailureError{Op: "set_kv", Cause: err}
	}
	defer tx.Rollback()

	var created string
	err = tx.QueryRow("SELECT created_at FROM kv_memory WHERE key=? AND namespace=?", key, namespace).Scan(&created)
	switch {
	case err == sql.ErrNoRows:
		created = now
	case err != nil:
		return &models.AuditWriteFailureError{Op: "set_kv", Cause: err}
	}

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO kv_memory (key, namespace, value_json, created_at, updated_at, session_id) VALUES (?, ?, ?, ?, ?, ?)",
		key, namespace, string(encoded), created, now, nullable(sessionID))
	if err != nil {
		return &models.AuditWriteFailureError{Op: "set_kv", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return &models.AuditWriteFailureError{Op: "set_kv", Cause: err}
	}
	return nil
}

// GetKV returns the decoded value for (key, namespace), or nil when absent.
func (s *Store) GetKV(key, namespace string) (any, error) {
	var valueJSON string
	err := s.db.QueryRow("SELECT value_json FROM kv_memory WHERE key=? AND namespace=?", key, namespace).Scan(&valueJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_kv", Cause: err}
	}
	var value any
	if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_kv", Cause: err}
	}
	return value, nil
}

// ── AuditLog ─────────────────────────────────────────────────────────────────

// WriteStepStart inserts a started step row and advances the step chain.
func (s *Store) WriteStepStart(trace *models.StepTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, _ := json.Marshal(map[string]any{"step_id": trace.StepID, "status": string(models.StepStarted)})
	chain := s.nextChainHash(trace.SessionID, "step", string(payload))
	trace.AuditChainHash = chain
	_, err := s.db.Exec(
		`INSERT INTO steps (step_id, session_id, step_number, step_type, status,
		 prompt_hash, tool_name, tool_input_json, started_at, audit_chain_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trace.StepID, trace.SessionID, trace.StepNumber, string(trace.StepType), string(trace.Status),
		nullable(trace.PromptHash), nullable(trace.ToolName), nullable(trace.ToolInputJSON),
		trace.StartedAt, chain)
	if err != nil {
		return &models.AuditWriteFailureError{Op: "write_step_start", Cause: err}
	}
	return nil
}

// WriteStepEnd finalizes a step row. The chain payload binds the step id,
// terminal status, and the model output hash.
func (s *Store) WriteStepEnd(trace *models.StepTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, _ := json.Marshal(map[string]any{
		"step_id": trace.StepID,
		"status":  string(trace.Status),
		"hash":    trace.ModelOutputHash,
	})
	chain := s.nextChainHash(trace.SessionID, "step", string(payload))
	trace.AuditChainHash = chain
	_, err := s.db.Exec(
		`UPDATE steps SET status=?, step_type=?, model_output_hash=?, tool_name=?,
		 tool_input_json=?, tool_output_json=?, input_tokens=?, output_tokens=?,
		 cost_usd=?, duration_ms=?, finished_at=?, audit_chain_hash=?
		 WHERE step_id=?`,
		string(trace.Status), string(trace.StepType), nullable(trace.ModelOutputHash),
		nullable(trace.ToolName), nullable(trace.ToolInputJSON), nullable(trace.ToolOutputJSON),
		trace.InputTokens, trace.OutputTokens, trace.CostUSD, trace.DurationMS,
		nullable(trace.FinishedAt), chain, trace.StepID)
	if err != nil {
		return &models.AuditWriteFailureError{Op: "write_step_end", Cause: err}
	}
	return nil
}

// WriteEvent appends an event to the session's event chain and fills in the
// computed ChainHash.
func (s *Store) WriteEvent(event *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return &models.AuditWriteFailureError{Op: "write_event", Cause: err}
	}
	chain := s.nextChainHash(event.SessionID, "event", string(payloadJSON))
	event.ChainHash = chain
	_, err = s.db.Exec(
		`INSERT INTO audit_events (event_id, session_id, step_id, event_type, level, payload_json, chain_hash, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, nullable(event.StepID), event.EventType,
		string(event.Level), string(payloadJSON), chain, event.Timestamp)
	if err != nil {
		return &models.AuditWriteFailureError{Op: "write_event", Cause: err}
	}
	return nil
}

// GetSessionEvents returns all events for a session in write order.
func (s *Store) GetSessionEvents(sessionID string) ([]models.AuditEvent, error) {
	rows, err := s.db.Query(
		`SELECT event_id, session_id, step_id, event_type, level, payload_json, chain_hash, timestamp
		 FROM audit_events WHERE session_id=? ORDER BY timestamp, rowid`, sessionID)
	if err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_session_events", Cause: err}
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var stepID sql.NullString
		var payloadJSON string
		if err := rows.Scan(&e.EventID, &e.SessionID, &stepID, &e.EventType, (*string)(&e.Level), &payloadJSON, &e.ChainHash, &e.Timestamp); err != nil {
			return nil, &models.MemoryCorruptionError{Op: "get_session_events", Cause: err}
		}
		e.StepID = stepID.String
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, &models.MemoryCorruptionError{Op: "get_session_events", Cause: err}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_session_events", Cause: err}
	}
	return events, nil
}

// GetSession loads one session row.
func (s *Store) GetSession(sessionID string) (*models.Session, error) {
	row := s.db.QueryRow(
		`SELECT session_id, task, status, config_json, started_at, finished_at,
		 total_steps, total_cost_usd, error_type, error_msg
		 FROM sessions WHERE session_id=?`, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, &models.MemoryCorruptionError{Op: "get_session", Cause: fmt.Errorf("session %q not found", sessionID)}
	}
	if err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_session", Cause: err}
	}
	return sess, nil
}

// ListSessions returns up to limit sessions, newest first.
func (s *Store) ListSessions(limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT session_id, task, status, config_json, started_at, finished_at,
		 total_steps, total_cost_usd, error_type, error_msg
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &models.MemoryCorruptionError{Op: "list_sessions", Cause: err}
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, &models.MemoryCorruptionError{Op: "list_sessions", Cause: err}
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.MemoryCorruptionError{Op: "list_sessions", Cause: err}
	}
	return sessions, nil
}

// GetSessionSteps returns a session's step traces ordered by step number.
func (s *Store) GetSessionSteps(sessionID string) ([]models.StepTrace, error) {
	rows, err := s.db.Query(
		`SELECT step_id, session_id, step_number, step_type, status, prompt_hash,
		 model_output_hash, tool_name, tool_input_json, tool_output_json,
		 input_tokens, output_tokens, cost_usd, duration_ms, started_at,
		 finished_at, audit_chain_hash
		 FROM steps WHERE session_id=? ORDER BY step_number`, sessionID)
	if err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_session_steps", Cause: err}
	}
	defer rows.Close()

	var steps []models.StepTrace
	for rows.Next() {
		var st models.StepTrace
		var promptHash, outputHash, toolName, toolInput, toolOutput, finished sql.NullString
		var inTok, outTok, durMS sql.NullInt64
		var cost sql.NullFloat64
		if err := rows.Scan(&st.StepID, &st.SessionID, &st.StepNumber, (*string)(&st.StepType),
			(*string)(&st.Status), &promptHash, &outputHash, &toolName, &toolInput, &toolOutput,
			&inTok, &outTok, &cost, &durMS, &st.StartedAt, &finished, &st.AuditChainHash); err != nil {
			return nil, &models.MemoryCorruptionError{Op: "get_session_steps", Cause: err}
		}
		st.PromptHash = promptHash.String
		st.ModelOutputHash = outputHash.String
		st.ToolName = toolName.String
		st.ToolInputJSON = toolInput.String
		st.ToolOutputJSON = toolOutput.String
		st.InputTokens = int(inTok.Int64)
		st.OutputTokens = int(outTok.Int64)
		st.CostUSD = cost.Float64
		st.DurationMS = durMS.Int64
		st.FinishedAt = finished.String
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.MemoryCorruptionError{Op: "get_session_steps", Cause: err}
	}
	return steps, nil
}

// VerifyChain recomputes the event chain for a session from the seed and
// compares it to the stored values. Any mismatch returns false, as does a
// store error. An empty session is trivially valid.
func (s *Store) VerifyChain(sessionID string) bool {
	rows, err := s.db.Query(
		"SELECT payload_json, chain_hash FROM audit_events WHERE session_id=? ORDER BY timestamp, rowid", sessionID)
	if err != nil {
		return false
	}
	defer rows.Close()

	prev := models.ChainSeed
	for rows.Next() {
		var payloadJSON, chainHash string
		if err := rows.Scan(&payloadJSON, &chainHash); err != nil {
			return false
		}
		expected := models.SHA256Hex(prev + models.SHA256Hex(payloadJSON))
		if expected != chainHash {
			return false
		}
		prev = chainHash
	}
	return rows.Err() == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var finished, errType, errMsg sql.NullString
	err := row.Scan(&sess.SessionID, &sess.Task, (*string)(&sess.Status), &sess.ConfigJSON,
		&sess.StartedAt, &finished, &sess.TotalSteps, &sess.TotalCostUSD, &errType, &errMsg)
	if err != nil {
		return nil, err
	}
	sess.FinishedAt = finished.String
	sess.ErrorType = errType.String
	sess.ErrorMsg = errMsg.String
	return &sess, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
