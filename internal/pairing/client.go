package pairing

import (
	"context"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/session"
)

type EventKind int

const (
	// EventReady carries a QR payload and marks the attempt ready for a code request.
	EventReady EventKind = iota + 1
	// EventPaired means the phone accepted the code or QR and the login handshake runs.
	EventPaired
	EventOpen
	EventClosed
)

type Event struct {
	Kind   EventKind
	QR     string
	Reason int
	Err    error
}

// Emitter is handed to a Client so it can report connection events. It never
// blocks longer than the coordinator's emit timeout.
type Emitter func(Event)

// Document is an outbound chat attachment.
type Document struct {
	Data      []byte
	FileName  string
	MimeType  string
	Caption   string
	Thumbnail []byte
}

// Sent identifies a delivered message so later messages can quote it.
type Sent struct {
	ID       string
	Document *Document
	// Raw is the transport's own message, kept so a reply can quote it.
	Raw interface{}
}

// Client is one ConnectionAttempt against WhatsApp bound to a session directory.
type Client interface {
	Connect(ctx context.Context) error
	Registered() bool
	RequestPairingCode(ctx context.Context, phone string) (string, error)
	OwnJID() string
	// Persist rewrites creds.json from the live device store. It is a no-op before
	// the device has an identity.
	Persist(ctx context.Context) error
	SendDocument(ctx context.Context, to string, doc Document) (*Sent, error)
	SendText(ctx context.Context, to string, text string, quoted *Sent) error
	Close()
}

// Dialer creates a fresh Client for every attempt. The client persists its state
// inside dir and reports events through emit.
type Dialer interface {
	Dial(ctx context.Context, dir *session.Directory, emit Emitter) (Client, error)
}
