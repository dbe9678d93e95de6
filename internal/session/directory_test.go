package session

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDirectoryRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "../escape", "a/b", ".hidden", "-dash"} {
		if _, err := NewDirectory(t.TempDir(), name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("NewDirectory(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestDirectoryLifecycle(t *testing.T) {
	dir, err := NewDirectory(t.TempDir(), "14155550100")
	if err != nil {
		t.Fatal(err)
	}
	if dir.Exists() {
		t.Fatal("directory should not exist yet")
	}
	if err := dir.Ensure(); err != nil {
		t.Fatal(err)
	}
	if err := dir.Ensure(); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if !dir.Exists() {
		t.Fatal("directory should exist")
	}

	if _, err := dir.ReadBundle(); !errors.Is(err, ErrBundleNotFound) {
		t.Fatalf("expected ErrBundleNotFound, got %v", err)
	}
	if dir.IsRegistered() {
		t.Fatal("no bundle means not registered")
	}

	bundle := completeBundle()
	bundle.Registered = true
	if err := dir.WriteBundle(bundle); err != nil {
		t.Fatal(err)
	}
	if !dir.IsRegistered() {
		t.Fatal("expected registered bundle")
	}

	if err := dir.Remove(); err != nil {
		t.Fatal(err)
	}
	if dir.Exists() {
		t.Fatal("directory should be gone")
	}
	if err := dir.Remove(); err != nil {
		t.Fatalf("removing twice: %v", err)
	}
}

func TestWaitBundle(t *testing.T) {
	dir, _ := NewDirectory(t.TempDir(), "qr-abc")
	if err := dir.Ensure(); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, err := dir.WaitBundle(context.Background(), 60*time.Millisecond, 10*time.Millisecond, nil); !errors.Is(err, ErrBundleNotFound) {
		t.Fatalf("expected ErrBundleNotFound, got %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("WaitBundle returned before the settle window")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = dir.WriteBundle(completeBundle())
	}()
	bundle, err := dir.WaitBundle(context.Background(), 2*time.Second, 5*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("WaitBundle: %v", err)
	}
	if bundle.RegistrationID != 42 {
		t.Errorf("unexpected bundle %+v", bundle)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = os.Remove(dir.CredsPath())
	if _, err := dir.WaitBundle(ctx, time.Second, 5*time.Millisecond, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWaitBundleWaitsForLateKeys(t *testing.T) {
	dir, _ := NewDirectory(t.TempDir(), "qr-late")
	partial := completeBundle()
	partial.MyAppStateKeyID = ""
	if err := dir.WriteBundle(partial); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = dir.WriteBundle(completeBundle())
	}()

	start := time.Now()
	bundle, err := dir.WaitBundle(context.Background(), time.Second, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("WaitBundle: %v", err)
	}
	if bundle.MyAppStateKeyID != "AAAAAA==" {
		t.Errorf("app state key id was not picked up, got %q", bundle.MyAppStateKeyID)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("WaitBundle returned the partial bundle after %s", elapsed)
	}
}

func TestWaitBundleReturnsIncompleteAfterSettle(t *testing.T) {
	dir, _ := NewDirectory(t.TempDir(), "qr-partial")
	partial := completeBundle()
	partial.MyAppStateKeyID = ""
	if err := dir.WriteBundle(partial); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	bundle, err := dir.WaitBundle(context.Background(), 80*time.Millisecond, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("WaitBundle: %v", err)
	}
	if time.Since(start) < 70*time.Millisecond {
		t.Error("WaitBundle returned before the settle window")
	}
	if got := bundle.Missing(); len(got) != 1 || got[0] != "myAppStateKeyId" {
		t.Errorf("unexpected missing fields %v", got)
	}
}

func TestWaitBundleRefreshes(t *testing.T) {
	dir, _ := NewDirectory(t.TempDir(), "qr-refresh")
	refreshes := 0
	refresh := func() error {
		refreshes++
		b := completeBundle()
		if refreshes < 3 {
			b.MyAppStateKeyID = ""
		}
		return dir.WriteBundle(b)
	}

	bundle, err := dir.WaitBundle(context.Background(), time.Second, 5*time.Millisecond, refresh)
	if err != nil {
		t.Fatalf("WaitBundle: %v", err)
	}
	if refreshes != 3 || bundle.MyAppStateKeyID == "" {
		t.Errorf("expected the third refresh to complete the bundle, got %d refreshes and %+v", refreshes, bundle)
	}

	boom := errors.New("store closed")
	if _, err := dir.WaitBundle(context.Background(), time.Second, 5*time.Millisecond, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected refresh error, got %v", err)
	}
}

func TestArchive(t *testing.T) {
	dir, _ := NewDirectory(t.TempDir(), "qr-zip")
	if err := dir.WriteBundle(completeBundle()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir.StorePath(), []byte("sqlite"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir.Path(), ".creds-1.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := dir.Archive()
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names[CredsFile] || !names[StoreFile] {
		t.Errorf("archive is missing files: %v", names)
	}
	if len(names) != 2 {
		t.Errorf("temporary files should be skipped: %v", names)
	}
}
