package qr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/auth"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-session/pkg/whatsapp"
)

const (
	// first QR normally arrives within a couple of seconds of connecting
	startTimeout = 30 * time.Second
	pngSize      = 256
)

type Pairer interface {
	Begin(ctx context.Context, identifier string) (*pairing.Result, error)
}

// Latest is the read side of the status hub.
type Latest interface {
	Latest(sessionID string) (pairing.Snapshot, bool)
}

type Handler struct {
	pairer  Pairer
	latest  Latest
	tickets *auth.Tickets
	timeout time.Duration
}

func New(pairer Pairer, latest Latest, tickets *auth.Tickets) *Handler {
	return &Handler{pairer: pairer, latest: latest, tickets: tickets, timeout: startTimeout}
}

// Start
// @Summary     Start a QR Pairing Session
// @Description Opens a fresh session directory and waits for the first QR. The ticket subscribes to /server/ws and /server/qr.png
// @Tags        Pairing
// @Produce     json
// @Success     200 {object} router.PairResponse
// @Failure     429 {object} router.Response
// @Failure     502 {object} router.PairResponse
// @Failure     503 {object} router.PairResponse
// @Router      /server/qr/start [post]
func (h *Handler) Start(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	res, err := h.pairer.Begin(ctx, "")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: no QR within %s", pairing.ErrPairingFailed, h.timeout)
		}
		return router.ResponsePairError(c, pairing.HTTPStatus(err), pairing.Tag(err), err.Error())
	}

	ticket, err := h.tickets.Issue(res.SessionID, string(res.Mode))
	if err != nil {
		return router.ResponsePairError(c, fiber.StatusServiceUnavailable, pairing.Tag(pairing.ErrServiceUnavailable), err.Error())
	}

	body := router.PairResponse{Session: res.SessionID, Ticket: ticket}
	if snap, ok := h.latest.Latest(res.SessionID); ok && snap.QR != nil {
		if body.QR, err = pkgWhatsApp.QRDataURL(*snap.QR); err != nil {
			log.Print(c).WithError(err).Warn("unable to render QR data url")
		}
	}
	return router.ResponsePair(c, body)
}

// Image
// @Summary     Current QR as PNG
// @Description Renders the latest valid QR of the session bound to the ticket
// @Tags        Pairing
// @Produce     png
// @Param       ticket query string true "Session ticket"
// @Success     200
// @Failure     401 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /server/qr.png [get]
func (h *Handler) Image(c *fiber.Ctx) error {
	claims, err := h.tickets.Validate(c.Query("ticket"))
	if err != nil {
		return router.ResponseUnauthorized(c, err.Error())
	}

	snap, ok := h.latest.Latest(claims.SessionID)
	if !ok || snap.QR == nil {
		return router.ResponseNotFound(c, "No QR available for this session")
	}

	png, err := pkgWhatsApp.QRPNG(*snap.QR, pngSize)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}
