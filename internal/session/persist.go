package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned by a Store that holds no session record.
var ErrNotFound = errors.New("no persisted session")

// StoredCookie is the persisted form of one cookie bound to the base URL.
type StoredCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Path  string `json:"path,omitempty"`
}

// Persisted is the on-disk session record.
type Persisted struct {
	ID        string         `json:"id"`
	UserAgent string         `json:"userAgent"`
	Cookies   []StoredCookie `json:"cookies"`
	Acquired  time.Time      `json:"acquiredAt"`
	Expiry    time.Time      `json:"expiry"`
	SavedAt   time.Time      `json:"savedAt"`
}

// Store persists the single process session.
type Store interface {
	Load() (*Persisted, error)
	Save(p *Persisted) error
}

// FileStore keeps the session as a JSON document on disk.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*Persisted, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", s.path, err)
	}
	return &p, nil
}

// Save writes atomically via a temp file in the same directory.
func (s *FileStore) Save(p *Persisted) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// NopStore never persists anything.
type NopStore struct{}

func (NopStore) Load() (*Persisted, error) { return nil, ErrNotFound }
func (NopStore) Save(*Persisted) error     { return nil }
