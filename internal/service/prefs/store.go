package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// Preferences are the durable user settings read at startup and written on
// every change.
type Preferences struct {
	VehicleID     string  `json:"vehicleId,omitempty"`
	PlaybackSpeed float64 `json:"playbackSpeed"`
	Autoplay      bool    `json:"autoplay"`
	WakeWord      bool    `json:"wakeWord"`
}

// Default returns the settings used when the user has never saved anything.
func Default() Preferences {
	return Preferences{PlaybackSpeed: 1.0, Autoplay: true}
}

// Store is the durable key-value collaborator consumed by the session and the
// vehicle selector.
type Store interface {
	Load() (Preferences, error)
	Save(Preferences) error
}

// FileStore persists preferences as a single JSON document. Writes go through
// a temp file plus rename so a crash never leaves a half-written document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the given path. The file does not
// need to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the stored preferences, falling back to defaults when the file
// is missing.
func (s *FileStore) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("read preferences: %w", err)
	}

	prefs := Default()
	if err := sonic.Unmarshal(data, &prefs); err != nil {
		return Default(), fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

// Save replaces the stored preferences.
func (s *FileStore) Save(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := sonic.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return fmt.Errorf("create temp preferences file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close preferences file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace preferences file: %w", err)
	}
	return nil
}

// MemoryStore keeps preferences in memory; tests and previews use it in place
// of the file-backed store.
type MemoryStore struct {
	mu    sync.Mutex
	prefs Preferences
	set   bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Load returns the saved preferences or defaults when nothing was saved yet.
func (s *MemoryStore) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return Default(), nil
	}
	return s.prefs, nil
}

// Save replaces the stored preferences.
func (s *MemoryStore) Save(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
	s.set = true
	return nil
}
