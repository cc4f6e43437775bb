package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tabwarden/tabwarden/internal/logger"
	"github.com/tabwarden/tabwarden/internal/session"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Store errors surfaced as structured results at the messaging
// boundary.
var (
	ErrRecordNotFound = errors.New("session record not found")
	ErrAlreadyRated   = errors.New("session already rated")
)

// Store is the persistence boundary for the daily state snapshot and
// the finalized session log.
type Store interface {
	// Snapshot access
	Load() (*DailyState, error)
	Patch(patch map[string]any) error

	// Finalized session log
	AppendRecord(rec *session.Record) error
	Records() ([]session.Record, error)
	GetRecord(sessionID string) (*session.Record, error)
	ApplyPromptAnswers(rec *session.Record) error

	// Maintenance
	ClearAll() error
	Close() error
}

// SQLiteStore implements Store using SQLite. The snapshot lives in a
// key-value table (one JSON value per storage key); the session log is
// its own table with a FIFO cap.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	nowFn  func() time.Time
}

// NewSQLiteStore opens (or creates) the store at dbPath. An empty path
// defaults to ~/.tabwarden/state.db.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".tabwarden", "state.db")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	// WAL mode so the tick loop and message handlers don't contend.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
		nowFn:  time.Now,
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug().
		Str("path", dbPath).
		Msg("Opened state store")

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		start_time INTEGER NOT NULL,
		q1 TEXT NOT NULL DEFAULT '',
		q2 INTEGER,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_start_time ON records(start_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load reads the full snapshot, falling back to defaults for missing or
// unreadable keys.
func (s *SQLiteStore) Load() (*DailyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := DefaultState(s.nowFn())

	rows, err := s.db.Query("SELECT key, value FROM kv")
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		s.applyKey(st, key, []byte(value))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate state rows: %w", err)
	}

	if st.DomainTotals == nil {
		st.DomainTotals = map[string]*DomainTotal{}
	}
	if st.VisitedToday.Domains == nil {
		st.VisitedToday.Domains = map[string]int{}
	}
	if st.Cooldowns == nil {
		st.Cooldowns = map[string]int64{}
	}
	if st.Snoozes == nil {
		st.Snoozes = map[string]int64{}
	}
	if st.SnoozeHistory == nil {
		st.SnoozeHistory = map[string][]int64{}
	}
	if st.StageNotified == nil {
		st.StageNotified = map[string]bool{}
	}

	return st, nil
}

func (s *SQLiteStore) applyKey(st *DailyState, key string, value []byte) {
	var err error
	switch key {
	case KeyTrackingEnabled:
		err = json.Unmarshal(value, &st.TrackingEnabled)
	case KeyDebugEnabled:
		err = json.Unmarshal(value, &st.DebugEnabled)
	case KeyMode:
		err = json.Unmarshal(value, &st.Mode)
	case KeyIdleTimeoutMin:
		err = json.Unmarshal(value, &st.IdleTimeoutMin)
	case KeyDomainTotals:
		err = json.Unmarshal(value, &st.DomainTotals)
	case KeyVisitedToday:
		err = json.Unmarshal(value, &st.VisitedToday)
	case KeyCooldowns:
		err = json.Unmarshal(value, &st.Cooldowns)
	case KeySnoozes:
		err = json.Unmarshal(value, &st.Snoozes)
	case KeySnoozeHistory:
		err = json.Unmarshal(value, &st.SnoozeHistory)
	case KeyLastResetDate:
		err = json.Unmarshal(value, &st.LastResetDate)
	case KeyStageNotified:
		err = json.Unmarshal(value, &st.StageNotified)
	case KeyCurrentSession:
		err = json.Unmarshal(value, &st.CurrentSession)
	default:
		return
	}
	if err != nil {
		// Treat a corrupt value as missing; the default stands.
		logger.Warn().Str("key", key).Err(err).Msg("Discarding unreadable state value")
	}
}

// Patch writes the given keys. A nil value deletes the key.
func (s *SQLiteStore) Patch(patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin patch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range patch {
		if value == nil {
			if _, err := tx.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
				return fmt.Errorf("failed to delete key %s: %w", key, err)
			}
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode key %s: %w", key, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, string(encoded),
		); err != nil {
			return fmt.Errorf("failed to write key %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// AppendRecord appends a finalized record and trims the log to
// session.MaxRecords, oldest first.
func (s *SQLiteStore) AppendRecord(rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var q2 any
	if rec.Q2HardToStop != nil {
		q2 = *rec.Q2HardToStop
	}
	if _, err := tx.Exec(
		`INSERT INTO records (session_id, start_time, q1, q2, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SessionID, rec.StartTime, rec.Q1LongerThanIntended, q2, string(payload),
	); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM records WHERE id NOT IN (
			SELECT id FROM records ORDER BY id DESC LIMIT ?
		)`,
		session.MaxRecords,
	); err != nil {
		return fmt.Errorf("failed to trim records: %w", err)
	}

	return tx.Commit()
}

// Records returns the full session log in append order.
func (s *SQLiteStore) Records() ([]session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT payload FROM records ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	defer rows.Close()

	var records []session.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec session.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRecord fetches one record by session ID.
func (s *SQLiteStore) GetRecord(sessionID string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRow(
		"SELECT payload FROM records WHERE session_id = ?", sessionID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

// ApplyPromptAnswers writes the prompt-answer fields exactly once. The
// guard columns reject a second write without touching the payload.
func (s *SQLiteStore) ApplyPromptAnswers(rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	var q2 any
	if rec.Q2HardToStop != nil {
		q2 = *rec.Q2HardToStop
	}
	result, err := s.db.Exec(
		`UPDATE records SET q1 = ?, q2 = ?, payload = ?
		 WHERE session_id = ? AND q1 = '' AND q2 IS NULL`,
		rec.Q1LongerThanIntended, q2, string(payload), rec.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to save prompt answers: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		var exists int
		if err := s.db.QueryRow(
			"SELECT 1 FROM records WHERE session_id = ?", rec.SessionID,
		).Scan(&exists); err == sql.ErrNoRows {
			return ErrRecordNotFound
		}
		return ErrAlreadyRated
	}
	return nil
}

// ClearAll wipes both the snapshot and the session log.
func (s *SQLiteStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM kv"); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
