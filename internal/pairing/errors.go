package pairing

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidIdentifier  = errors.New("invalid phone number")
	ErrAlreadyPaired      = errors.New("session is already paired")
	ErrPairingFailed      = errors.New("pairing failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrCredentialsMissing = errors.New("credentials were not persisted")
	ErrPairingInProgress  = errors.New("a pairing session for this number is already running")
	ErrSessionNotFound    = errors.New("session not found")

	ErrDisconnectRetryable = errors.New("connection closed")
	ErrDisconnectTerminal  = errors.New("connection logged out")
)

// Disconnect reasons reported on a closed connection. The numbering follows the
// status codes WhatsApp Web bots use, so a 401 means the device was unlinked.
const (
	ReasonBadSession          = 500
	ReasonConnectionClosed    = 428
	ReasonConnectionLost      = 408
	ReasonConnectionReplaced  = 440
	ReasonLoggedOut           = 401
	ReasonForbidden           = 403
	ReasonMultideviceMismatch = 411
	ReasonUnavailableService  = 503
	ReasonTimedOut            = ReasonConnectionLost
)

type DisconnectError struct {
	Reason int
	Err    error
}

func (e *DisconnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("disconnected (reason %d): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("disconnected (reason %d)", e.Reason)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// Terminal reports whether the account unlinked this device. Every other reason
// reuses the session directory on a new attempt.
func (e *DisconnectError) Terminal() bool {
	return e.Reason == ReasonLoggedOut
}

func (e *DisconnectError) Is(target error) bool {
	switch target {
	case ErrDisconnectTerminal:
		return e.Terminal()
	case ErrDisconnectRetryable:
		return !e.Terminal()
	}
	return false
}

// Tag maps an error to the tag sent in {code: <tag>} responses.
func Tag(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidIdentifier):
		return "InvalidIdentifier"
	case errors.Is(err, ErrAlreadyPaired):
		return "AlreadyPaired"
	case errors.Is(err, ErrPairingInProgress):
		return "PairingInProgress"
	case errors.Is(err, ErrPairingFailed):
		return "PairingFailed"
	case errors.Is(err, ErrCredentialsMissing):
		return "CredentialsMissing"
	case errors.Is(err, ErrDisconnectTerminal):
		return "DisconnectTerminal"
	case errors.Is(err, ErrDisconnectRetryable):
		return "DisconnectRetryable"
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFound"
	default:
		return "ServiceUnavailable"
	}
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyPaired), errors.Is(err, ErrPairingInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPairingFailed):
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}
