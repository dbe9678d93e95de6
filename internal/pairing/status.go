package pairing

import (
	"sync"
	"time"
)

type Mode string

const (
	ModeCode Mode = "code"
	ModeQR   Mode = "qr"
)

type Status string

const (
	StatusInit         Status = "init"
	StatusQR           Status = "qr"
	StatusAwaitingCode Status = "awaiting-code"
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusExported     Status = "exported"
	StatusClosed       Status = "close"
	StatusRetrying     Status = "retrying"
	StatusTerminated   Status = "terminated"
)

type ExportStatus string

const (
	ExportPending ExportStatus = "pending"
	ExportSent    ExportStatus = "sent"
	ExportFailed  ExportStatus = "failed"
	ExportSkipped ExportStatus = "skipped"
)

// Events published alongside a snapshot.
const (
	EventQR     = "qr"
	EventStatus = "status"
	EventCode   = "code"
	EventExport = "export"
)

// Snapshot is the observable state of one pairing session. QR is nil when no QR is
// currently valid.
type Snapshot struct {
	SessionID string       `json:"session"`
	Mode      Mode         `json:"mode"`
	Directory string       `json:"directory"`
	Status    Status       `json:"status"`
	QR        *string      `json:"qr"`
	Code      string       `json:"code,omitempty"`
	Export    ExportStatus `json:"export"`
	Attempt   int          `json:"attempt"`
	Error     string       `json:"error,omitempty"`
	StartedAt time.Time    `json:"started_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Broadcaster receives every state change. Publish must not block.
type Broadcaster interface {
	Publish(event string, snapshot Snapshot)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(string, Snapshot) {}

// State is owned by one session and replaces any process wide QR or status value.
type State struct {
	mu    sync.Mutex
	snap  Snapshot
	sink  Broadcaster
	clock func() time.Time
}

func newState(id string, mode Mode, dir string, sink Broadcaster) *State {
	if sink == nil {
		sink = nopBroadcaster{}
	}
	now := time.Now()
	return &State{
		snap: Snapshot{
			SessionID: id,
			Mode:      mode,
			Directory: dir,
			Status:    StatusInit,
			Export:    ExportPending,
			StartedAt: now,
			UpdatedAt: now,
		},
		sink:  sink,
		clock: time.Now,
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *State) update(event string, fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.snap.UpdatedAt = s.clock()
	snap := s.snap
	s.mu.Unlock()

	s.sink.Publish(event, snap)
}

func (s *State) SetStatus(status Status) {
	s.update(EventStatus, func(snap *Snapshot) {
		snap.Status = status
		if status == StatusOpen || status == StatusTerminated {
			snap.QR = nil
		}
	})
}

func (s *State) SetQR(qr string) {
	s.update(EventQR, func(snap *Snapshot) {
		snap.QR = &qr
		snap.Status = StatusQR
	})
}

func (s *State) SetCode(code string) {
	s.update(EventCode, func(snap *Snapshot) {
		snap.Code = code
		snap.Status = StatusAwaitingCode
	})
}

func (s *State) SetExport(status ExportStatus) {
	s.update(EventExport, func(snap *Snapshot) {
		snap.Export = status
	})
}

func (s *State) SetAttempt(n int) {
	s.mu.Lock()
	s.snap.Attempt = n
	s.mu.Unlock()
}

// Fail records err and moves the session to terminated.
func (s *State) Fail(err error) {
	s.update(EventStatus, func(snap *Snapshot) {
		if err != nil {
			snap.Error = err.Error()
		}
		snap.Status = StatusTerminated
		snap.QR = nil
		if snap.Export == ExportPending {
			snap.Export = ExportSkipped
		}
	})
}
