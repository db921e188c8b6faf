package profile

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"jobportal/internal/runstore"
)

const (
	draftFileName = "profile.json"
	draftLockName = "profile"
)

type Store interface {
	Save(d Draft) error
}

// FileStore keeps the working draft as JSON in the state directory.
type FileStore struct {
	Dir string
	Now func() time.Time
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir, Now: time.Now}
}

func (s *FileStore) Path() string {
	return filepath.Join(s.Dir, draftFileName)
}

func (s *FileStore) Exists() (bool, error) {
	return runstore.Exists(s.Path())
}

func (s *FileStore) Load() (Draft, error) {
	var d Draft
	if err := runstore.ReadJSON(s.Path(), &d); err != nil {
		return Draft{}, err
	}
	if _, ok := ParseParentKind(string(d.Kind)); !ok {
		return Draft{}, fmt.Errorf("draft %s has unknown kind %q", s.Path(), d.Kind)
	}
	// fill in collections a hand-edited or older file may lack
	return d.Clone(), nil
}

func (s *FileStore) Save(d Draft) error {
	if strings.TrimSpace(s.Dir) == "" {
		return fmt.Errorf("draft store directory is required")
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	d = d.Clone()
	d.UpdatedAt = now().UTC().Format(time.RFC3339)
	return runstore.WriteJSON(s.Path(), d)
}

func (s *FileStore) Remove() error {
	return runstore.Remove(s.Path())
}

// Lock gives the caller exclusive use of the draft until Release.
func (s *FileStore) Lock() (runstore.Lock, error) {
	return runstore.AcquireLock(s.Dir, draftLockName)
}
