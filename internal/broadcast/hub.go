package broadcast

import (
	"sync"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
)

// Frame is one message on a status stream.
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type Subscription struct {
	C         <-chan Frame
	ch        chan Frame
	sessionID string
}

type entry struct {
	snap  pairing.Snapshot
	subs  map[*Subscription]struct{}
	endAt time.Time
}

// Hub caches the latest snapshot per session and fans changes out to subscribers.
// Delivery is best effort: a slow subscriber loses its oldest frames.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[string]*entry
	buffer    int
	retention time.Duration
}

func NewHub(retention time.Duration) *Hub {
	if retention <= 0 {
		retention = 2 * time.Minute
	}
	return &Hub{
		sessions:  make(map[string]*entry),
		buffer:    16,
		retention: retention,
	}
}

func terminal(status pairing.Status) bool {
	return status == pairing.StatusTerminated
}

// diff returns the frames needed to move an observer from prev to next. The status
// frame goes last so a stream that stops on terminated has sent everything else.
func diff(prev *pairing.Snapshot, next pairing.Snapshot) []Frame {
	var frames []Frame
	if prev == nil || !sameQR(prev.QR, next.QR) {
		frames = append(frames, Frame{Event: pairing.EventQR, Data: next.QR})
	}
	if next.Code != "" && (prev == nil || prev.Code != next.Code) {
		frames = append(frames, Frame{Event: pairing.EventCode, Data: next.Code})
	}
	if prev == nil || prev.Export != next.Export {
		frames = append(frames, Frame{Event: pairing.EventExport, Data: next.Export})
	}
	if prev == nil || prev.Status != next.Status {
		frames = append(frames, Frame{Event: pairing.EventStatus, Data: next.Status})
	}
	return frames
}

func sameQR(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (h *Hub) Publish(_ string, snap pairing.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.sessions[snap.SessionID]
	var frames []Frame
	if !ok {
		e = &entry{subs: make(map[*Subscription]struct{})}
		h.sessions[snap.SessionID] = e
		frames = diff(nil, snap)
	} else {
		frames = diff(&e.snap, snap)
	}
	e.snap = snap
	if terminal(snap.Status) && e.endAt.IsZero() {
		e.endAt = time.Now().Add(h.retention)
	}

	for sub := range e.subs {
		for _, f := range frames {
			offer(sub.ch, f)
		}
	}
}

// offer never blocks; when the buffer is full the oldest frame is dropped.
func offer(ch chan Frame, f Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}

// Subscribe registers an observer and returns the cached state as initial frames.
func (h *Hub) Subscribe(sessionID string) (*Subscription, []Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}
	ch := make(chan Frame, h.buffer)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID}
	e.subs[sub] = struct{}{}
	return sub, diff(nil, e.snap), true
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.sessions[sub.sessionID]; ok {
		delete(e.subs, sub)
	}
}

func (h *Hub) Latest(sessionID string) (pairing.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.sessions[sessionID]
	if !ok {
		return pairing.Snapshot{}, false
	}
	return e.snap, true
}

// Sweep drops terminated sessions whose retention elapsed and returns how many
// were removed.
func (h *Hub) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for id, e := range h.sessions {
		if !e.endAt.IsZero() && now.After(e.endAt) && len(e.subs) == 0 {
			delete(h.sessions, id)
			removed++
		}
	}
	return removed
}
