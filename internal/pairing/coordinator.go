package pairing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/validation"
)

var (
	errSessionExpired = errors.New("session lifetime exceeded")
	errCancelled      = errors.New("session cancelled")
	errShutdown       = errors.New("coordinator shutting down")
)

// Session is one logical pairing request from code or QR issuance to hand-off.
type Session struct {
	ID    string
	Mode  Mode
	phone string
	dir   *session.Directory
	state *State
	reply *responder

	cancel  context.CancelCauseFunc
	stop    context.CancelFunc
	release func()
	log     *logrus.Entry
}

func (s *Session) Snapshot() Snapshot { return s.state.Snapshot() }

type Result struct {
	SessionID string `json:"session"`
	Mode      Mode   `json:"mode"`
	Code      string `json:"code,omitempty"`
}

// Coordinator owns every running pairing session.
type Coordinator struct {
	cfg    Config
	dialer Dialer
	sink   Broadcaster
	locks  *session.Locks

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewCoordinator(cfg Config, dialer Dialer, sink Broadcaster) *Coordinator {
	cfg.setDefaults()
	if sink == nil {
		sink = nopBroadcaster{}
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Coordinator{
		cfg:      cfg,
		dialer:   dialer,
		sink:     sink,
		locks:    session.NewLocks(),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Coordinator) Config() Config { return c.cfg }

// Begin starts a pairing session. A phone number selects code mode and the result
// carries the grouped pairing code. An empty identifier selects QR mode and Begin
// returns once the first QR was published. If ctx ends first the session keeps
// running and only the reply is dropped.
func (c *Coordinator) Begin(ctx context.Context, identifier string) (*Result, error) {
	mode := ModeQR
	name := "qr-" + uuid.NewString()
	phone := ""

	if strings.TrimSpace(identifier) != "" {
		digits, err := validation.NormalizePhone(identifier, c.cfg.MinDigits)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
		}
		mode, name, phone = ModeCode, digits, digits
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, errShutdown)
	}

	release, ok := c.locks.TryAcquire(name)
	if !ok {
		return nil, ErrPairingInProgress
	}

	dir, err := session.NewDirectory(c.cfg.Root, name)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if err := dir.Ensure(); err != nil {
		release()
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if dir.IsRegistered() {
		release()
		return nil, ErrAlreadyPaired
	}

	s, err := c.start(mode, phone, dir, release)
	if err != nil {
		release()
		return nil, err
	}

	select {
	case out := <-s.reply.ch:
		if out.err != nil {
			return nil, out.err
		}
		return &Result{SessionID: s.ID, Mode: s.Mode, Code: out.code}, nil
	case <-ctx.Done():
		s.reply.abandon()
		s.log.Info("caller went away, session continues")
		return nil, ctx.Err()
	}
}

func (c *Coordinator) start(mode Mode, phone string, dir *session.Directory, release func()) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, errShutdown)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancelCause(c.ctx)
	ctx, stop := context.WithTimeoutCause(ctx, c.cfg.SessionTTL, errSessionExpired)

	entry := log.Session(id).WithField("mode", string(mode))
	if phone != "" {
		entry = entry.WithField("phone", log.Mask(phone))
	}

	s := &Session{
		ID:      id,
		Mode:    mode,
		phone:   phone,
		dir:     dir,
		state:   newState(id, mode, dir.Name(), c.sink),
		reply:   newResponder(),
		cancel:  cancel,
		stop:    stop,
		release: release,
		log:     entry,
	}
	c.sessions[id] = s
	c.wg.Add(1)

	s.log.Info("pairing session started")
	s.state.SetStatus(StatusInit)
	go c.supervise(ctx, s)
	return s, nil
}

func (c *Coordinator) Get(id string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// List returns the live sessions, oldest first.
func (c *Coordinator) List() []Snapshot {
	c.mu.RLock()
	out := make([]Snapshot, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.Snapshot())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (c *Coordinator) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Cancel stops a session. Its directory is purged by the supervisor.
func (c *Coordinator) Cancel(id string) error {
	c.mu.RLock()
	s, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.cancel(errCancelled)
	return nil
}

// Live reports whether a running session owns the directory name.
func (c *Coordinator) Live(name string) bool {
	return c.locks.Held(name)
}

// Stop cancels every session and waits for their supervisors until ctx ends.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel(errShutdown)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) forget(s *Session) {
	c.mu.Lock()
	delete(c.sessions, s.ID)
	c.mu.Unlock()
	s.stop()
	s.cancel(nil)
	s.release()
}
