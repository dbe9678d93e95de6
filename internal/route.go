package internal

import (
	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"github.com/gdbrns/go-whatsapp-pair-session/docs"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/auth"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/router"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/broadcast"

	ctlAdmin "github.com/gdbrns/go-whatsapp-pair-session/internal/admin"
	ctlIndex "github.com/gdbrns/go-whatsapp-pair-session/internal/index"
	ctlPair "github.com/gdbrns/go-whatsapp-pair-session/internal/pair"
	ctlQR "github.com/gdbrns/go-whatsapp-pair-session/internal/qr"
)

// StaticPaths are the page routes served through the static cache.
func StaticPaths() []string {
	base := router.BaseURL
	if base == "" {
		return []string{"/", "/qr"}
	}
	return []string{base, base + "/", base + "/qr"}
}

func Routes(app *fiber.App, svc *Services) {
	// Configure OpenAPI / Swagger
	specURL := router.BaseURL + "/docs/swagger.json"
	swaggerHandler := swagger.New(swagger.Config{
		URL: specURL,
	})

	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index())
	} else {
		app.Get(router.BaseURL, ctlIndex.Index())
		app.Get(router.BaseURL+"/", ctlIndex.Index())
	}
	app.Get(router.BaseURL+"/qr", ctlIndex.QR())
	app.Get(router.BaseURL+"/health", ctlIndex.Health(svc.Coordinator.Count))

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		c.Type("json")
		return c.Send(docs.SwaggerJSON)
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)

	// ============================================================
	// PAIRING (per-IP rate limited, no auth)
	// ============================================================
	limiter := router.HttpRateLimit(router.NewIPRateLimiter(router.RateLimitPerMinute, 0))
	cfg := svc.Coordinator.Config()

	pair := ctlPair.New(svc.Coordinator, svc.Tickets, cfg.CodeTimeout)
	app.Get(router.BaseURL+"/pair", ctlIndex.PairPage(), limiter, pair.Pair)

	qr := ctlQR.New(svc.Coordinator, svc.Hub, svc.Tickets)
	app.Post(router.BaseURL+"/server/qr/start", limiter, qr.Start)
	app.Get(router.BaseURL+"/server/qr.png", qr.Image)

	// ============================================================
	// STATUS STREAM (session ticket in ?ticket=)
	// ============================================================
	app.Get(router.BaseURL+"/server/ws", broadcast.Upgrade(svc.Tickets), broadcast.Stream(svc.Hub))

	// ============================================================
	// ADMIN ROUTES (X-Admin-Secret authentication)
	// ============================================================
	adminMiddleware := auth.AdminAuth()

	var history ctlAdmin.History
	if svc.Ledger != nil {
		history = svc.Ledger
	}
	admin := ctlAdmin.New(svc.Coordinator, history, svc.Sweep)

	app.Get(router.BaseURL+"/admin/sessions", adminMiddleware, admin.ListSessions)
	app.Get(router.BaseURL+"/admin/sessions/:id", adminMiddleware, admin.GetSession)
	app.Delete(router.BaseURL+"/admin/sessions/:id", adminMiddleware, admin.CancelSession)
	app.Get(router.BaseURL+"/admin/ledger", adminMiddleware, admin.Ledger)
	app.Post(router.BaseURL+"/admin/sweep", adminMiddleware, admin.Sweep)
	app.Get(router.BaseURL+"/admin/whatsapp/version", adminMiddleware, ctlAdmin.GetWhatsAppWebVersion)
	app.Post(router.BaseURL+"/admin/whatsapp/version/refresh", adminMiddleware, ctlAdmin.RefreshWhatsAppWebVersion)
}
