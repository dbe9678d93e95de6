package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS pair_sessions (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	directory   TEXT NOT NULL,
	status      TEXT NOT NULL,
	export      TEXT NOT NULL,
	attempt     INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

const upsert = `
INSERT INTO pair_sessions (id, mode, directory, status, export, attempt, last_error, started_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	export = EXCLUDED.export,
	attempt = EXCLUDED.attempt,
	last_error = EXCLUDED.last_error,
	updated_at = EXCLUDED.updated_at`

// Row is one pairing session as recorded in the ledger.
type Row struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Directory string    `json:"directory"`
	Status    string    `json:"status"`
	Export    string    `json:"export"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store writes status transitions of pairing sessions to Postgres. Writes happen on
// a background worker so Publish never blocks the coordinator.
type Store struct {
	db    *sql.DB
	queue chan pairing.Snapshot
	done  chan struct{}

	closeOnce sync.Once
}

// Open connects with the pgx stdlib driver and creates the table if needed.
func Open(ctx context.Context, uri string) (*Store, error) {
	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger schema: %w", err)
	}
	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	s := &Store{
		db:    db,
		queue: make(chan pairing.Snapshot, 512),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *Store) Publish(event string, snap pairing.Snapshot) {
	if event != pairing.EventStatus && event != pairing.EventExport {
		return
	}
	defer func() {
		// queue closed by Close
		_ = recover()
	}()
	select {
	case s.queue <- snap:
	default:
		log.Session(snap.SessionID).Warn("ledger queue full, dropping status " + string(snap.Status))
	}
}

func (s *Store) worker() {
	defer close(s.done)
	for snap := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.record(ctx, snap); err != nil {
			log.Session(snap.SessionID).WithError(err).Warn("ledger write failed")
		}
		cancel()
	}
}

func (s *Store) record(ctx context.Context, snap pairing.Snapshot) error {
	_, err := s.db.ExecContext(ctx, upsert,
		snap.SessionID,
		string(snap.Mode),
		log.Mask(snap.Directory),
		string(snap.Status),
		string(snap.Export),
		snap.Attempt,
		snap.Error,
		snap.StartedAt,
		snap.UpdatedAt,
	)
	return err
}

// Recent lists the most recently updated sessions.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, directory, status, export, attempt, last_error, started_at, updated_at
		FROM pair_sessions
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Mode, &r.Directory, &r.Status, &r.Export, &r.Attempt, &r.LastError, &r.StartedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close drains pending writes and closes the database.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.queue)
		select {
		case <-s.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if cerr := s.db.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
