package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocks(t *testing.T) {
	locks := NewLocks()

	release, ok := locks.TryAcquire("14155550100")
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	if _, ok := locks.TryAcquire("14155550100"); ok {
		t.Fatal("second acquire of the same key should fail")
	}
	if _, ok := locks.TryAcquire("447700900000"); !ok {
		t.Fatal("other keys are independent")
	}

	release()
	release()
	if locks.Held("14155550100") {
		t.Fatal("key should be released")
	}
	if _, ok := locks.TryAcquire("14155550100"); !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-time.Hour)
	for _, name := range []string{"qr-stale", "qr-live", "qr-fresh"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o700); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"qr-stale", "qr-live"} {
		if err := os.Chtimes(filepath.Join(root, name), old, old); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := Sweep(root, 30*time.Minute, func(name string) bool { return name == "qr-live" })
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "qr-stale" {
		t.Fatalf("unexpected removed list %v", removed)
	}
	for _, name := range []string{"qr-live", "qr-fresh"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("%s should survive: %v", name, err)
		}
	}

	if removed, err := Sweep(filepath.Join(root, "missing"), time.Minute, nil); err != nil || removed != nil {
		t.Errorf("missing root should be a no-op, got %v %v", removed, err)
	}
}
