package admin

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/ledger"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-session/pkg/whatsapp"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 500
)

type Sessions interface {
	List() []pairing.Snapshot
	Get(id string) (pairing.Snapshot, bool)
	Cancel(id string) error
}

// History is implemented by the ledger; nil when no ledger is configured.
type History interface {
	Recent(ctx context.Context, limit int) ([]ledger.Row, error)
}

type Handler struct {
	sessions Sessions
	history  History
	sweep    func() ([]string, error)
}

func New(sessions Sessions, history History, sweep func() ([]string, error)) *Handler {
	return &Handler{sessions: sessions, history: history, sweep: sweep}
}

// MaskedSession is a session snapshot without the raw phone number or QR payload.
type MaskedSession struct {
	SessionID string               `json:"session"`
	Mode      pairing.Mode         `json:"mode"`
	Directory string               `json:"directory"`
	Status    pairing.Status       `json:"status"`
	HasQR     bool                 `json:"has_qr"`
	Export    pairing.ExportStatus `json:"export"`
	Attempt   int                  `json:"attempt"`
	Error     string               `json:"error,omitempty"`
	StartedAt string               `json:"started_at"`
	UpdatedAt string               `json:"updated_at"`
}

func mask(s pairing.Snapshot) MaskedSession {
	return MaskedSession{
		SessionID: s.SessionID,
		Mode:      s.Mode,
		Directory: log.Mask(s.Directory),
		Status:    s.Status,
		HasQR:     s.QR != nil,
		Export:    s.Export,
		Attempt:   s.Attempt,
		Error:     s.Error,
		StartedAt: s.StartedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

// @Summary     List Pairing Sessions
// @Description List every live pairing session, oldest first (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {array} MaskedSession
// @Failure     401 {object} router.Response
// @Router      /admin/sessions [get]
func (h *Handler) ListSessions(c *fiber.Ctx) error {
	snaps := h.sessions.List()
	masked := make([]MaskedSession, 0, len(snaps))
	for _, s := range snaps {
		masked = append(masked, mask(s))
	}
	return router.ResponseSuccessWithData(c, "Sessions retrieved successfully", masked)
}

// @Summary     Get Pairing Session
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Param       id path string true "Session ID"
// @Success     200 {object} MaskedSession
// @Failure     401 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /admin/sessions/{id} [get]
func (h *Handler) GetSession(c *fiber.Ctx) error {
	snap, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return router.ResponseNotFound(c, "Session not found")
	}
	return router.ResponseSuccessWithData(c, "Session retrieved successfully", mask(snap))
}

// @Summary     Cancel Pairing Session
// @Description Stop a live session and purge its directory (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Param       id path string true "Session ID"
// @Success     200 {object} router.Response
// @Failure     401 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /admin/sessions/{id} [delete]
func (h *Handler) CancelSession(c *fiber.Ctx) error {
	if err := h.sessions.Cancel(c.Params("id")); err != nil {
		if errors.Is(err, pairing.ErrSessionNotFound) {
			return router.ResponseNotFound(c, "Session not found")
		}
		return router.ResponseInternalError(c, err.Error())
	}
	return router.ResponseSuccess(c, "Session cancelled")
}

// @Summary     Pairing History
// @Description Most recent sessions recorded in the ledger (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Param       limit query int false "Number of rows (default 50, max 500)"
// @Success     200 {array} ledger.Row
// @Failure     401 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /admin/ledger [get]
func (h *Handler) Ledger(c *fiber.Ctx) error {
	if h.history == nil {
		return router.ResponseNotFound(c, "Ledger is not configured")
	}

	limit := c.QueryInt("limit", defaultLedgerLimit)
	if limit <= 0 || limit > maxLedgerLimit {
		return router.ResponseBadRequest(c, "limit must be between 1 and 500")
	}

	rows, err := h.history.Recent(c.UserContext(), limit)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to read ledger: "+err.Error())
	}
	return router.ResponseSuccessWithData(c, "Ledger retrieved successfully", rows)
}

// @Summary     Sweep Session Directories
// @Description Delete session directories older than PAIR_SWEEP_MAX_AGE with no live session (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {array} string
// @Failure     401 {object} router.Response
// @Router      /admin/sweep [post]
func (h *Handler) Sweep(c *fiber.Ctx) error {
	removed, err := h.sweep()
	if err != nil {
		return router.ResponseInternalError(c, "Sweep finished with errors: "+err.Error())
	}
	if removed == nil {
		removed = []string{}
	}
	return router.ResponseSuccessWithData(c, "Sweep completed", removed)
}

// @Summary     WhatsApp Web Version
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {object} pkgWhatsApp.WAVersionRefreshStatus
// @Failure     401 {object} router.Response
// @Router      /admin/whatsapp/version [get]
func GetWhatsAppWebVersion(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "WhatsApp Web version retrieved", pkgWhatsApp.WAVersionStatus())
}

// @Summary     Refresh WhatsApp Web Version
// @Description Fetch the current WhatsApp Web version now (Admin only)
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {object} pkgWhatsApp.WAVersionRefreshStatus
// @Failure     401 {object} router.Response
// @Failure     500 {object} router.Response
// @Router      /admin/whatsapp/version/refresh [post]
func RefreshWhatsAppWebVersion(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	status, _, err := pkgWhatsApp.RefreshWAVersion(ctx, true)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to refresh WhatsApp Web version: "+err.Error())
	}
	return router.ResponseSuccessWithData(c, "WhatsApp Web version refreshed", status)
}
