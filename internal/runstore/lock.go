package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const lockOwnerFile = "owner.json"

// Lock is held by a directory whose creation is atomic. Only one process can
// hold a given lock name inside a state directory.
type Lock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func AcquireLock(stateDir, name string) (Lock, error) {
	target := strings.TrimSpace(stateDir)
	if target == "" {
		return Lock{}, fmt.Errorf("state directory is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Lock{}, fmt.Errorf("lock name is required")
	}
	if err := Mkdir(target); err != nil {
		return Lock{}, err
	}

	lockDir := filepath.Join(target, "."+name+".lock")
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			var owner lockOwner
			if readErr := ReadJSON(filepath.Join(lockDir, lockOwnerFile), &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return Lock{}, fmt.Errorf(
					"%s is locked by another process: %s (pid=%d created_at=%s host=%s)",
					name, lockDir, owner.PID, owner.CreatedAt, owner.Hostname,
				)
			}
			return Lock{}, fmt.Errorf("%s is locked by another process: %s", name, lockDir)
		}
		return Lock{}, fmt.Errorf("acquire %s lock in %s: %w", name, target, err)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, lockOwnerFile), owner); err != nil {
		_ = os.Remove(lockDir)
		return Lock{}, fmt.Errorf("write %s lock owner: %w", name, err)
	}

	return Lock{lockDir: lockDir}, nil
}

func (l Lock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
