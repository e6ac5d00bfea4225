package tool

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type anonymousIDFile struct {
	AnonymousID string `yaml:"anonymousId"`
}

// AnonymousStore keeps the locally persisted anonymous correlation id.
// The id is generated once, reused across uploads and cleared on login/logout.
type AnonymousStore struct {
	mu    sync.Mutex
	path  string
	id    string
	newID func() (uuid.UUID, error)
}

func NewAnonymousStore(path string) *AnonymousStore {
	return &AnonymousStore{path: path, newID: uuid.NewRandom}
}

// Get returns the stored id, generating and persisting one when none exists.
func (s *AnonymousStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return s.id, nil
	}
	if s.path != "" {
		if data, err := os.ReadFile(s.path); err == nil {
			var f anonymousIDFile
			if err := yaml.Unmarshal(data, &f); err == nil && f.AnonymousID != "" {
				s.id = f.AnonymousID
				return s.id, nil
			}
			DefaultLogger.Warnf("Ignoring unreadable anonymous id file %s", s.path)
		}
	}
	if s.newID == nil {
		return "", fmt.Errorf("no id generator configured")
	}
	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("failed to generate anonymous id: %w", err)
	}
	s.id = id.String()
	if s.path != "" {
		data, err := yaml.Marshal(anonymousIDFile{AnonymousID: s.id})
		if err == nil {
			err = os.WriteFile(s.path, data, 0o600)
		}
		if err != nil {
			DefaultLogger.Warnf("Failed to persist anonymous id: %v", err)
		}
	}
	DefaultLogger.Debugf("Generated anonymous id %s", s.id)
	return s.id, nil
}

// Clear forgets the id in memory and on disk.
func (s *AnonymousStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove anonymous id file: %v", err)
	}
	return nil
}
