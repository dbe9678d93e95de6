package index

import (
	"embed"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-session/pkg/router"
)

//go:embed pages/*.html
var pages embed.FS

func page(name string) fiber.Handler {
	body, err := pages.ReadFile("pages/" + name)
	if err != nil {
		panic("missing embedded page " + name)
	}
	return func(c *fiber.Ctx) error {
		c.Type("html", "utf-8")
		return c.Send(body)
	}
}

// Index
// @Summary     Landing Page
// @Description Choose between pairing code and QR pairing
// @Tags        Root
// @Produce     html
// @Success     200
// @Router      / [get]
func Index() fiber.Handler { return page("main.html") }

// QR serves the QR pairing page.
func QR() fiber.Handler { return page("qr.html") }

// PairPage serves the pairing code form to browsers that open /pair without a
// number. Every other request falls through to the pairing API.
func PairPage() fiber.Handler {
	send := page("pair.html")
	return func(c *fiber.Ctx) error {
		if c.Query("number") == "" && strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMETextHTML) {
			return send(c)
		}
		return c.Next()
	}
}

type health struct {
	Sessions int `json:"sessions"`
}

// Health
// @Summary     Show The Status of The Server
// @Description Reports liveness and the number of running pairing sessions
// @Tags        Root
// @Produce     json
// @Success     200 {object} router.Response
// @Router      /health [get]
func Health(count func() int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return router.ResponseSuccessWithData(c, "WhatsApp pair session service is running", health{Sessions: count()})
	}
}
