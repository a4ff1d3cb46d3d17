// Package history records the transfers this client has sent.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const fileName = "history.json"

// ErrDuplicate is returned when a CID was already recorded.
var ErrDuplicate = errors.New("transfer with the same cid already exists")

// Entry is one sent transfer.
type Entry struct {
	ID        string    `json:"id"`
	CID       string    `json:"cid"`
	FileName  string    `json:"file_name"`
	Size      int64     `json:"size"`
	Recipient string    `json:"recipient"`
	Title     string    `json:"title"`
	ShareLink string    `json:"share_link"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages the history file.
type Store struct {
	filePath string
	mu       sync.RWMutex
}

// NewStore keeps history in dir/history.json.
func NewStore(dir string) *Store {
	return &Store{filePath: filepath.Join(dir, fileName)}
}

// Save appends e, assigning its ID and CreatedAt.
func (s *Store) Save(e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	for _, v := range entries {
		if v.CID == e.CID {
			return ErrDuplicate
		}
	}
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	entries = append(entries, *e)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0o600)
}

// GetAll returns entries newest first.
func (s *Store) GetAll() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// Clear removes all entries.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// read loads the file; a missing file is an empty history.
func (s *Store) read() ([]Entry, error) {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return entries, nil
}
