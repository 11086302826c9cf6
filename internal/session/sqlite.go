package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*FileStore)(nil)
var _ Store = NopStore{}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS nse_session (
	slot        INTEGER PRIMARY KEY CHECK (slot = 1),
	id          TEXT    NOT NULL,
	user_agent  TEXT    NOT NULL,
	cookies     TEXT    NOT NULL,
	acquired_at INTEGER NOT NULL,
	expiry      INTEGER NOT NULL,
	saved_at    INTEGER NOT NULL
)`

// SQLiteStore keeps the session record in a single-row table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load() (*Persisted, error) {
	var (
		p                         Persisted
		cookies                   string
		acquired, expiry, savedAt int64
	)
	row := s.db.QueryRow(`SELECT id, user_agent, cookies, acquired_at, expiry, saved_at FROM nse_session WHERE slot = 1`)
	err := row.Scan(&p.ID, &p.UserAgent, &cookies, &acquired, &expiry, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cookies), &p.Cookies); err != nil {
		return nil, fmt.Errorf("corrupt session cookies: %w", err)
	}
	p.Acquired = fromMillis(acquired)
	p.Expiry = fromMillis(expiry)
	p.SavedAt = fromMillis(savedAt)
	return &p, nil
}

func (s *SQLiteStore) Save(p *Persisted) error {
	cookies, err := json.Marshal(p.Cookies)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
INSERT INTO nse_session (slot, id, user_agent, cookies, acquired_at, expiry, saved_at)
VALUES (1, ?, ?, ?, ?, ?, ?)
ON CONFLICT(slot) DO UPDATE SET
	id = excluded.id,
	user_agent = excluded.user_agent,
	cookies = excluded.cookies,
	acquired_at = excluded.acquired_at,
	expiry = excluded.expiry,
	saved_at = excluded.saved_at`,
		p.ID, p.UserAgent, string(cookies), toMillis(p.Acquired), toMillis(p.Expiry), toMillis(p.SavedAt))
	return err
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
