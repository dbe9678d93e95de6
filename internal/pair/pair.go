package pair

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/auth"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/router"
)

// responseSlack lets the coordinator report its own code timeout before the
// request gives up.
const responseSlack = 15 * time.Second

type Pairer interface {
	Begin(ctx context.Context, identifier string) (*pairing.Result, error)
}

type Handler struct {
	pairer  Pairer
	tickets *auth.Tickets
	timeout time.Duration
}

func New(pairer Pairer, tickets *auth.Tickets, codeTimeout time.Duration) *Handler {
	return &Handler{pairer: pairer, tickets: tickets, timeout: codeTimeout + responseSlack}
}

// Pair
// @Summary     Request a Pairing Code
// @Description Starts a pairing session for the number and returns the 8 character code to enter under Linked Devices
// @Tags        Pairing
// @Produce     json
// @Param       number query string true "Phone number in international format, digits only or with separators"
// @Success     200 {object} router.PairResponse
// @Failure     400 {object} router.PairResponse
// @Failure     409 {object} router.PairResponse
// @Failure     429 {object} router.Response
// @Failure     502 {object} router.PairResponse
// @Failure     503 {object} router.PairResponse
// @Router      /pair [get]
func (h *Handler) Pair(c *fiber.Ctx) error {
	number := strings.TrimSpace(c.Query("number"))
	if number == "" {
		return router.ResponsePairError(c, http.StatusBadRequest, pairing.Tag(pairing.ErrInvalidIdentifier), "number query parameter is required")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	res, err := h.pairer.Begin(ctx, number)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: no pairing code within %s", pairing.ErrPairingFailed, h.timeout)
		}
		return router.ResponsePairError(c, pairing.HTTPStatus(err), pairing.Tag(err), err.Error())
	}

	ticket, err := h.tickets.Issue(res.SessionID, string(res.Mode))
	if err != nil {
		log.Print(c).WithError(err).Warn("unable to issue session ticket")
	}
	return router.ResponsePair(c, router.PairResponse{
		Code:    res.Code,
		Session: res.SessionID,
		Ticket:  ticket,
	})
}
