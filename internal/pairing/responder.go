package pairing

import (
	"sync"
	"sync/atomic"
)

type outcome struct {
	code string
	err  error
}

// responder delivers the Begin outcome to its caller at most once. Once the caller
// has gone away further results are only logged.
type responder struct {
	once      sync.Once
	ch        chan outcome
	responded atomic.Bool
	gone      atomic.Bool
}

func newResponder() *responder {
	return &responder{ch: make(chan outcome, 1)}
}

// send reports whether o was the first outcome and the caller was still waiting.
func (r *responder) send(o outcome) bool {
	delivered := false
	r.once.Do(func() {
		r.responded.Store(true)
		r.ch <- o
		delivered = !r.gone.Load()
	})
	return delivered
}

func (r *responder) abandon() { r.gone.Store(true) }

func (r *responder) done() bool { return r.responded.Load() }
