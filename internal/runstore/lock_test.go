package runstore

import (
	"strings"
	"testing"
)

func TestAcquireLock_BlocksConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, "profile")
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireLock(dir, "profile")
	if err == nil {
		t.Fatalf("expected second acquire to fail")
	}
	if !strings.Contains(err.Error(), "pid=") {
		t.Fatalf("lock error should name the owner: %v", err)
	}

	other, err := AcquireLock(dir, "config")
	if err != nil {
		t.Fatalf("different lock names should not conflict: %v", err)
	}
	_ = other.Release()

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireLock(dir, "profile")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}
