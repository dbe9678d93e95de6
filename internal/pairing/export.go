package pairing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
)

// export hands the credentials off: settle, validate, mark registered, package,
// deliver to the account's own chat and delete the directory. It returns
// ErrCredentialsMissing when nothing was persisted, leaving the directory in place.
// Any other outcome leaves the directory removed.
func (c *Coordinator) export(ctx context.Context, s *Session, client Client) error {
	refresh := func() error {
		if err := client.Persist(ctx); err != nil {
			s.log.WithError(err).Debug("credential snapshot not refreshed")
		}
		return nil
	}
	bundle, err := s.dir.WaitBundle(ctx, c.cfg.SettleDelay, c.cfg.SettlePoll, refresh)
	switch {
	case errors.Is(err, session.ErrBundleNotFound):
		return fmt.Errorf("%w: no %s after %s", ErrCredentialsMissing, session.CredsFile, c.cfg.SettleDelay)
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return fmt.Errorf("%w: %v", ErrCredentialsMissing, err)
	}

	if missing := bundle.Missing(); len(missing) > 0 {
		s.log.WithField("missing", strings.Join(missing, ", ")).Warn("credential bundle is incomplete")
	}

	to := client.OwnJID()
	if to == "" && bundle.Me != nil {
		to = bundle.Me.ID
	}

	err = c.deliver(ctx, s, client, bundle, to)
	if rmErr := s.dir.Remove(); rmErr != nil {
		s.log.WithError(rmErr).Error("failed to remove session directory")
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.WithError(err).Error("credential export failed")
		s.state.SetExport(ExportFailed)
		s.state.Fail(fmt.Errorf("%w: %v", ErrServiceUnavailable, err))
		return nil
	}

	s.log.WithField("to", log.Mask(to)).Info("credentials exported")
	s.state.SetExport(ExportSent)
	s.state.SetStatus(StatusExported)
	s.state.SetStatus(StatusTerminated)
	s.reply.send(outcome{err: ErrAlreadyPaired})
	return nil
}

func (c *Coordinator) deliver(ctx context.Context, s *Session, client Client, bundle *session.CredentialBundle, to string) error {
	if to == "" {
		return errors.New("own account id is unknown")
	}

	bundle.Registered = true
	if err := s.dir.WriteBundle(bundle); err != nil {
		return fmt.Errorf("persist bundle: %w", err)
	}

	doc, err := c.pack(s)
	if err != nil {
		return fmt.Errorf("package session: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.ExportTimeout)
	defer cancel()

	sent, err := client.SendDocument(sendCtx, to, doc)
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	if err := client.SendText(sendCtx, to, c.cfg.ExportMessage, sent); err != nil {
		s.log.WithError(err).Warn("instruction message not delivered")
	}
	return nil
}

func (c *Coordinator) pack(s *Session) (Document, error) {
	doc := Document{Thumbnail: c.cfg.Thumbnail}

	switch c.cfg.ExportFormat {
	case ExportJSON:
		raw, err := os.ReadFile(s.dir.CredsPath())
		if err != nil {
			return Document{}, err
		}
		doc.Data = raw
		doc.FileName = session.CredsFile
		doc.MimeType = "application/json"
	default:
		raw, err := s.dir.Archive()
		if err != nil {
			return Document{}, err
		}
		doc.Data = raw
		doc.FileName = s.dir.Name() + "-session.zip"
		doc.MimeType = "application/zip"
	}
	return doc, nil
}
