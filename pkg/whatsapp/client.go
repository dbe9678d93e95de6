package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
)

var ErrNotLoggedIn = errors.New("whatsapp client is not logged in")

// Client adapts one whatsmeow client to a pairing connection attempt.
type Client struct {
	wa   *whatsmeow.Client
	db   *sql.DB
	dir  *session.Directory
	emit pairing.Emitter
	onQR func(string, string)

	closeOnce sync.Once
}

// Connect opens the socket. A device that has not paired yet gets a QR channel
// first; its first item marks the attempt as ready for a code request.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(ctx)
		if err != nil {
			return err
		}
		go c.watchQR(qrChan)
	}
	return c.wa.Connect()
}

func (c *Client) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if c.onQR != nil {
				c.onQR(c.dir.Name(), item.Code)
			}
			c.emit(pairing.Event{Kind: pairing.EventReady, QR: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			c.emit(pairing.Event{Kind: pairing.EventPaired})
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonTimedOut, Err: errors.New("qr channel timed out")})
		case whatsmeow.QRChannelClientOutdated.Event:
			go refreshAfterOutdated()
			c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: int(events.ConnectFailureClientOutdated), Err: ErrWAVersionOutdatedForQR})
		case whatsmeow.QRChannelScannedWithoutMultidevice.Event:
			c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonMultideviceMismatch, Err: errors.New("qr scanned without multi-device enabled")})
		case whatsmeow.QRChannelErrUnexpectedEvent.Event:
			c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonBadSession, Err: errors.New("qr channel entered an unexpected state")})
		case "error":
			err := item.Error
			if err == nil {
				err = errors.New("qr channel reported an unspecified error")
			}
			c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonBadSession, Err: err})
		}
	}
}

func (c *Client) handleEvent(evt interface{}) {
	entry := log.Print(nil).WithField("dir", log.Mask(c.dir.Name()))

	switch e := evt.(type) {
	case *events.PairSuccess:
		entry.WithField("platform", e.Platform).Info("pairing accepted by phone")
		c.emit(pairing.Event{Kind: pairing.EventPaired})
	case *events.PairError:
		c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonBadSession, Err: e.Error})
	case *events.Connected:
		if c.wa.Store.ID == nil {
			return
		}
		if err := writeSnapshot(context.Background(), c.dir, c.wa.Store); err != nil {
			entry.WithError(err).Error("failed to persist credential bundle")
		}
		c.emit(pairing.Event{Kind: pairing.EventOpen})
	case *events.AppStateSyncComplete:
		if err := c.Persist(context.Background()); err != nil {
			entry.WithError(err).Warn("failed to refresh credential bundle")
		}
	case *events.LoggedOut:
		c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonLoggedOut, Err: fmt.Errorf("logged out (reason %d)", int(e.Reason))})
	case *events.StreamReplaced:
		c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonConnectionReplaced})
	case *events.ConnectFailure:
		c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: closeReason(e.Reason), Err: fmt.Errorf("%s: %s", e.Reason, e.Message)})
	case *events.StreamError:
		c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonConnectionClosed, Err: fmt.Errorf("stream error %s", e.Code)})
	case *events.ClientOutdated:
		go refreshAfterOutdated()
		c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: int(events.ConnectFailureClientOutdated), Err: ErrWAVersionOutdatedForQR})
	case *events.TemporaryBan:
		err := fmt.Errorf("temporary ban (code %d, expires in %s)", int(e.Code), e.Expire)
		entry.WithError(err).Error("account temporarily banned")
		c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonForbidden, Err: err})
	case *events.Disconnected:
		c.emit(pairing.Event{Kind: pairing.EventClosed, Reason: pairing.ReasonConnectionLost, Err: errors.New("connection closed")})
	case *events.KeepAliveTimeout:
		entry.WithField("errors", e.ErrorCount).Debug("keepalive timeout")
	}
}

// closeReason maps a connect failure onto the coordinator's disconnect reasons.
// Every logout flavour unlinks the device.
func closeReason(reason events.ConnectFailureReason) int {
	switch {
	case reason.IsLoggedOut():
		return pairing.ReasonLoggedOut
	case reason == events.ConnectFailureTempBanned:
		return pairing.ReasonForbidden
	case reason == events.ConnectFailureServiceUnavailable:
		return pairing.ReasonUnavailableService
	case reason == events.ConnectFailureInternalServerError:
		return pairing.ReasonBadSession
	default:
		return int(reason)
	}
}

func (c *Client) Registered() bool {
	return c.wa.Store.ID != nil
}

func (c *Client) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	return c.wa.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome ("+runtime.GOOS+")")
}

// OwnJID returns the account's own chat, without the device part.
func (c *Client) OwnJID() string {
	if c.wa.Store.ID == nil {
		return ""
	}
	return c.wa.Store.ID.ToNonAD().String()
}

// Persist never recreates a directory the export already removed.
func (c *Client) Persist(ctx context.Context) error {
	if c.wa.Store.ID == nil || !c.dir.Exists() {
		return nil
	}
	return writeSnapshot(ctx, c.dir, c.wa.Store)
}

func (c *Client) recipient(to string) (types.JID, error) {
	if !c.wa.IsLoggedIn() {
		return types.EmptyJID, ErrNotLoggedIn
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return types.EmptyJID, err
	}
	return jid.ToNonAD(), nil
}

func (c *Client) SendDocument(ctx context.Context, to string, doc pairing.Document) (*pairing.Sent, error) {
	jid, err := c.recipient(to)
	if err != nil {
		return nil, err
	}

	uploaded, err := c.wa.Upload(ctx, doc.Data, whatsmeow.MediaDocument)
	if err != nil {
		return nil, err
	}

	message := &waE2E.DocumentMessage{
		URL:           proto.String(uploaded.URL),
		DirectPath:    proto.String(uploaded.DirectPath),
		Mimetype:      proto.String(doc.MimeType),
		FileName:      proto.String(doc.FileName),
		Title:         proto.String(doc.FileName),
		FileLength:    proto.Uint64(uploaded.FileLength),
		FileSHA256:    uploaded.FileSHA256,
		FileEncSHA256: uploaded.FileEncSHA256,
		MediaKey:      uploaded.MediaKey,
	}
	if doc.Caption != "" {
		message.Caption = proto.String(doc.Caption)
	}
	if len(doc.Thumbnail) > 0 {
		message.JPEGThumbnail = doc.Thumbnail
	}

	extra := whatsmeow.SendRequestExtra{ID: c.wa.GenerateMessageID()}
	if _, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{DocumentMessage: message}, extra); err != nil {
		return nil, err
	}

	quoted := doc
	quoted.Data = nil
	return &pairing.Sent{ID: extra.ID, Document: &quoted, Raw: message}, nil
}

// SendText sends text, quoting a previously sent document when given.
func (c *Client) SendText(ctx context.Context, to string, text string, quoted *pairing.Sent) error {
	jid, err := c.recipient(to)
	if err != nil {
		return err
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if quoted != nil && quoted.ID != "" {
		ctxInfo := &waE2E.ContextInfo{
			StanzaID:    proto.String(quoted.ID),
			Participant: proto.String(c.OwnJID()),
		}
		if doc, ok := quoted.Raw.(*waE2E.DocumentMessage); ok {
			ctxInfo.QuotedMessage = &waE2E.Message{DocumentMessage: doc}
		}
		msg = &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text:        proto.String(text),
				ContextInfo: ctxInfo,
			},
		}
	}

	_, err = c.wa.SendMessage(ctx, jid, msg, whatsmeow.SendRequestExtra{ID: c.wa.GenerateMessageID()})
	return err
}

// Close disconnects without logging out; the exported credentials stay valid.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.wa.RemoveEventHandlers()
		c.wa.Disconnect()
		if err := c.db.Close(); err != nil {
			log.Print(nil).WithError(err).Warn("failed to close session store")
		}
	})
}
