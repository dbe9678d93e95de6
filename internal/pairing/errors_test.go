package pairing

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestDisconnectErrorBranches(t *testing.T) {
	loggedOut := &DisconnectError{Reason: ReasonLoggedOut}
	if !loggedOut.Terminal() || !errors.Is(loggedOut, ErrDisconnectTerminal) || errors.Is(loggedOut, ErrDisconnectRetryable) {
		t.Error("401 must be terminal")
	}
	for _, reason := range []int{ReasonConnectionClosed, ReasonConnectionLost, ReasonConnectionReplaced, ReasonUnavailableService, ReasonBadSession, 0} {
		err := &DisconnectError{Reason: reason}
		if err.Terminal() || !errors.Is(err, ErrDisconnectRetryable) {
			t.Errorf("reason %d must be retryable", reason)
		}
	}

	wrapped := fmt.Errorf("attempt 3: %w", &DisconnectError{Reason: ReasonLoggedOut, Err: errors.New("stream end")})
	if Tag(wrapped) != "DisconnectTerminal" {
		t.Errorf("unexpected tag %q", Tag(wrapped))
	}
}

func TestTagAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		tag    string
		status int
	}{
		{fmt.Errorf("%w: too short", ErrInvalidIdentifier), "InvalidIdentifier", http.StatusBadRequest},
		{ErrAlreadyPaired, "AlreadyPaired", http.StatusConflict},
		{ErrPairingInProgress, "PairingInProgress", http.StatusConflict},
		{fmt.Errorf("%w: timeout", ErrPairingFailed), "PairingFailed", http.StatusBadGateway},
		{errors.New("boom"), "ServiceUnavailable", http.StatusServiceUnavailable},
		{ErrSessionNotFound, "SessionNotFound", http.StatusNotFound},
	}
	for _, tc := range cases {
		if got := Tag(tc.err); got != tc.tag {
			t.Errorf("Tag(%v) = %q, want %q", tc.err, got, tc.tag)
		}
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
	if Tag(nil) != "" {
		t.Error("nil error has no tag")
	}
}

func TestFormatPairingCode(t *testing.T) {
	cases := map[string]string{
		"ABCDEFGH":   "ABCD-EFGH",
		"ABCD-EFGH":  "ABCD-EFGH",
		"ABC":        "ABC",
		"ABCDEFGHIJ": "ABCD-EFGH-IJ",
		" abcd efgh": "abcd-efgh",
	}
	for in, want := range cases {
		if got := FormatPairingCode(in); got != want {
			t.Errorf("FormatPairingCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBackoff(t *testing.T) {
	base, max := 2*time.Second, 30*time.Second
	for attempt, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 4: 16 * time.Second, 5: 30 * time.Second, 20: 30 * time.Second} {
		for i := 0; i < 20; i++ {
			got := backoff(attempt, base, max)
			if got < want || got > want+maxJitter {
				t.Fatalf("backoff(%d) = %v, want between %v and %v", attempt, got, want, want+maxJitter)
			}
		}
	}
	if got := backoff(3, time.Millisecond, 2*time.Millisecond); got > 4*time.Millisecond {
		t.Errorf("jitter must not exceed a small base, got %v", got)
	}
}

func TestStateSnapshots(t *testing.T) {
	sink := &recorder{}
	st := newState("s1", ModeQR, "qr-1", sink)

	st.SetQR("2@payload")
	if snap := st.Snapshot(); snap.QR == nil || *snap.QR != "2@payload" || snap.Status != StatusQR {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	st.SetStatus(StatusOpen)
	if st.Snapshot().QR != nil {
		t.Error("open clears the QR")
	}
	st.Fail(ErrPairingFailed)
	snap := st.Snapshot()
	if snap.Status != StatusTerminated || snap.Export != ExportSkipped || snap.Error == "" {
		t.Errorf("unexpected terminal snapshot %+v", snap)
	}
	if len(sink.events) != 3 {
		t.Errorf("expected 3 published events, got %d", len(sink.events))
	}
}
