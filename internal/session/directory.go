package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const (
	CredsFile = "creds.json"
	StoreFile = "session.db"
)

var (
	ErrBundleNotFound = errors.New("credential bundle not found")
	ErrInvalidName    = errors.New("invalid session directory name")

	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
)

// Directory is the on-disk home of one pairing session: the whatsmeow store and
// the exported creds.json.
type Directory struct {
	root string
	name string
}

func NewDirectory(root string, name string) (*Directory, error) {
	if !namePattern.MatchString(name) {
		return nil, ErrInvalidName
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Directory{root: abs, name: name}, nil
}

func (d *Directory) Name() string { return d.name }

func (d *Directory) Path() string { return filepath.Join(d.root, d.name) }

func (d *Directory) CredsPath() string { return filepath.Join(d.Path(), CredsFile) }

func (d *Directory) StorePath() string { return filepath.Join(d.Path(), StoreFile) }

// Ensure creates the directory if needed. Calling it again is a no-op.
func (d *Directory) Ensure() error {
	return os.MkdirAll(d.Path(), 0o700)
}

func (d *Directory) Exists() bool {
	info, err := os.Stat(d.Path())
	return err == nil && info.IsDir()
}

// Remove deletes the directory and everything in it. Missing directories are fine.
func (d *Directory) Remove() error {
	if err := os.RemoveAll(d.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReadBundle loads creds.json, returning ErrBundleNotFound when it does not exist.
func (d *Directory) ReadBundle() (*CredentialBundle, error) {
	raw, err := os.ReadFile(d.CredsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBundleNotFound
	}
	if err != nil {
		return nil, err
	}
	var bundle CredentialBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("decode %s: %w", CredsFile, err)
	}
	return &bundle, nil
}

// WriteBundle replaces creds.json atomically.
func (d *Directory) WriteBundle(bundle *CredentialBundle) error {
	raw, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	if err := d.Ensure(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.Path(), ".creds-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.CredsPath())
}

// IsRegistered reports whether a previously saved bundle completed pairing.
func (d *Directory) IsRegistered() bool {
	bundle, err := d.ReadBundle()
	return err == nil && bundle.Registered
}

// WaitBundle polls creds.json until every required field is present, ctx is done
// or settle elapses. whatsmeow keeps persisting keys after the connection opens, so
// refresh, when set, runs before each read to rewrite the file from the live store.
// When settle runs out the last bundle read is returned even if incomplete;
// ErrBundleNotFound means no bundle was ever readable.
func (d *Directory) WaitBundle(ctx context.Context, settle time.Duration, poll time.Duration, refresh func() error) (*CredentialBundle, error) {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	deadline := time.NewTimer(settle)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var last *CredentialBundle
	for {
		if refresh != nil {
			if err := refresh(); err != nil {
				return nil, err
			}
		}
		bundle, err := d.ReadBundle()
		switch {
		case err == nil:
			if len(bundle.Missing()) == 0 {
				return bundle, nil
			}
			last = bundle
		case !errors.Is(err, ErrBundleNotFound):
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			if last != nil {
				return last, nil
			}
			return nil, ErrBundleNotFound
		case <-ticker.C:
		}
	}
}
