package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
)

type attemptResult struct {
	done   bool
	opened bool
	err    error
}

// supervise runs connection attempts for s one after another until the session is
// handed off, terminated or out of retries.
func (c *Coordinator) supervise(ctx context.Context, s *Session) {
	defer c.wg.Done()
	defer c.forget(s)
	defer s.reply.send(outcome{err: unanswered(s.Mode)})
	defer func() {
		if r := recover(); r != nil {
			log.Unhandled(fmt.Errorf("pairing session %s panicked: %v", s.ID, r))
			c.terminate(s, ErrServiceUnavailable)
		}
	}()

	retries := 0
	for attempt := 1; ; attempt++ {
		s.state.SetAttempt(attempt)
		res := c.runAttempt(ctx, s)
		if res.done {
			return
		}
		if ctx.Err() != nil {
			c.terminate(s, c.stopReason(ctx))
			return
		}

		if res.opened {
			retries = 0
		}
		retries++
		if retries > c.cfg.MaxRetries {
			s.log.WithField("retries", c.cfg.MaxRetries).Warn("retry budget exhausted")
			c.terminate(s, fmt.Errorf("%w: gave up after %d reconnects: %v", ErrPairingFailed, c.cfg.MaxRetries, res.err))
			return
		}

		delay := backoff(retries, c.cfg.BackoffBase, c.cfg.BackoffMax)
		s.log.WithField("retry", retries).WithField("delay", delay.String()).Info("reconnecting")
		s.state.SetStatus(StatusRetrying)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.terminate(s, c.stopReason(ctx))
			return
		case <-timer.C:
		}
	}
}

// unanswered is the reply for a caller still waiting when the session ends.
func unanswered(mode Mode) error {
	if mode == ModeQR {
		return fmt.Errorf("%w: session ended without a QR code", ErrPairingFailed)
	}
	return fmt.Errorf("%w: session ended without a pairing code", ErrPairingFailed)
}

func (c *Coordinator) stopReason(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, errSessionExpired) {
		return fmt.Errorf("%w: %v", ErrPairingFailed, cause)
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, cause)
}

// runAttempt drives one ConnectionAttempt. Every terminal path purges the directory
// before returning done.
func (c *Coordinator) runAttempt(ctx context.Context, s *Session) attemptResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan Event, 16)
	emit := func(ev Event) {
		timer := time.NewTimer(c.cfg.EmitTimeout)
		defer timer.Stop()
		select {
		case events <- ev:
		case <-ctx.Done():
		case <-timer.C:
			s.log.WithField("event", ev.Kind).Warn("connection event dropped")
		}
	}

	s.state.SetStatus(StatusInit)
	client, err := c.dialer.Dial(ctx, s.dir, emit)
	if err != nil {
		c.terminate(s, fmt.Errorf("%w: %v", ErrServiceUnavailable, err))
		return attemptResult{done: true}
	}
	defer func() {
		cancel()
		client.Close()
	}()

	if err := client.Connect(ctx); err != nil {
		c.terminate(s, fmt.Errorf("%w: %v", ErrServiceUnavailable, err))
		return attemptResult{done: true}
	}
	if s.Mode == ModeCode {
		s.state.SetStatus(StatusAwaitingCode)
	}

	var codeDeadline <-chan time.Time
	if s.Mode == ModeCode && !s.reply.done() {
		timer := time.NewTimer(c.cfg.CodeTimeout)
		defer timer.Stop()
		codeDeadline = timer.C
	}

	var codeIssued, opened bool
	for {
		select {
		case <-ctx.Done():
			return attemptResult{opened: opened, err: ctx.Err()}

		case <-codeDeadline:
			if !codeIssued {
				c.terminate(s, fmt.Errorf("%w: no pairing code within %s", ErrPairingFailed, c.cfg.CodeTimeout))
				return attemptResult{done: true}
			}

		case ev := <-events:
			switch ev.Kind {
			case EventReady:
				if s.Mode == ModeQR {
					if ev.QR != "" {
						s.state.SetQR(ev.QR)
						s.reply.send(outcome{})
					}
					continue
				}
				if codeIssued || client.Registered() {
					continue
				}
				codeIssued = true
				if err := c.issueCode(ctx, s, client); err != nil {
					c.terminate(s, err)
					return attemptResult{done: true}
				}

			case EventPaired:
				s.state.SetStatus(StatusConnecting)

			case EventOpen:
				opened = true
				s.state.SetStatus(StatusOpen)

				// export blocks this loop, so a repeated open only reaches it after an
				// aborted export and re-arms it.
				err := c.export(ctx, s, client)
				switch {
				case errors.Is(err, ErrCredentialsMissing):
					s.log.WithError(err).Warn("export aborted, waiting for the next open")
					continue
				case err != nil && ctx.Err() != nil:
					return attemptResult{opened: true, err: err}
				}
				return attemptResult{done: true}

			case EventClosed:
				derr := &DisconnectError{Reason: ev.Reason, Err: ev.Err}
				s.state.SetStatus(StatusClosed)
				if derr.Terminal() {
					s.log.Info("logged out, removing session")
					c.terminate(s, derr)
					return attemptResult{done: true}
				}
				entry := s.log.WithField("reason", ev.Reason)
				if ev.Err != nil && !log.IsBenign(ev.Err) {
					entry = entry.WithError(ev.Err)
				}
				entry.Info("connection closed")
				return attemptResult{opened: opened, err: derr}
			}
		}
	}
}

func (c *Coordinator) issueCode(ctx context.Context, s *Session, client Client) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.CodeTimeout)
	defer cancel()

	code, err := client.RequestPairingCode(reqCtx, s.phone)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPairingFailed, err)
	}

	formatted := FormatPairingCode(code)
	s.state.SetCode(formatted)
	if !s.reply.send(outcome{code: formatted}) {
		s.log.Info("pairing code published to observers only")
	}
	return nil
}

// terminate purges the directory, records err and reports it to a caller that has
// not been answered yet.
func (c *Coordinator) terminate(s *Session, err error) {
	if rmErr := s.dir.Remove(); rmErr != nil {
		s.log.WithError(rmErr).Error("failed to remove session directory")
	}
	s.state.Fail(err)
	if s.reply.send(outcome{err: err}) {
		s.log.WithError(err).Warn("pairing session failed")
		return
	}
	s.log.WithError(err).Info("pairing session ended")
}
