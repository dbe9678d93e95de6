package main

// @title Go WhatsApp Pair Session
// @version 1.0.0
// @description Links a WhatsApp account by pairing code or QR, sends the session credentials to the account's own chat and deletes the local copy

// @contact.name gdbrns
// @contact.url https://github.com/gdbrns/go-whatsapp-pair-session

// @license.name MIT

// @host localhost:8000
// @BasePath /

// @securityDefinitions.apikey AdminAuth
// @in header
// @name X-Admin-Secret
// @description Admin secret key for session management

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/go-whatsapp-pair-session/pkg/auth"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-session/pkg/whatsapp"

	"github.com/gdbrns/go-whatsapp-pair-session/internal"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/broadcast"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/ledger"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
)

type Server struct {
	Address string
	Port    string
}

func main() {
	log.SetLevel(env.GetEnvStringOrDefault("LOG_LEVEL", "info"))

	// Intialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Status sinks: hub for browsers, optional webhook and ledger
	hub := broadcast.NewHub(env.GetEnvDurationOrDefault("PAIR_STATUS_RETENTION", 2*time.Minute))
	sinks := broadcast.Multi{hub}

	var notifier *broadcast.Notifier
	if cfg := broadcast.NotifierConfigFromEnv(); cfg.URL != "" {
		n, err := broadcast.NewNotifier(cfg)
		if err != nil {
			log.Print(nil).Fatal("Invalid PAIR_WEBHOOK_URL: " + err.Error())
		}
		notifier = n
		sinks = append(sinks, notifier)
	}

	var store *ledger.Store
	if uri, err := env.GetEnvString("PAIR_LEDGER_URI"); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err = ledger.Open(ctx, uri)
		cancel()
		if err != nil {
			log.Print(nil).Fatal("Failed to open pairing ledger: " + err.Error())
		}
		sinks = append(sinks, store)
	}

	// Coordinator
	cfg := pairing.ConfigFromEnv()
	if path, err := env.GetEnvString("PAIR_EXPORT_THUMBNAIL"); err == nil {
		thumb, err := pkgWhatsApp.Thumbnail(path)
		if err != nil {
			log.Print(nil).WithError(err).Warn("Unable to load export thumbnail, sending without one")
		}
		cfg.Thumbnail = thumb
	}

	dialer := pkgWhatsApp.NewDialer()
	if env.GetEnvBoolOrDefault("PAIR_QR_TERMINAL", false) {
		dialer.OnQR = pkgWhatsApp.TerminalQR(os.Stdout)
	}
	coordinator := pairing.NewCoordinator(cfg, dialer, sinks)

	svc := &internal.Services{
		Coordinator: coordinator,
		Hub:         hub,
		Ledger:      store,
		Tickets:     auth.DefaultTickets,
		SweepMaxAge: internal.SweepMaxAge(),
	}

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler: router.HttpErrorHandler,
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "docs") || strings.HasSuffix(c.Path(), "/ws")
		},
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, X-Admin-Secret",
		AllowMethods: "GET,POST,DELETE",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		// pages use inline scripts and data: images
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self' ws: wss:",
	}))

	// Router Cache
	app.Use(router.HttpCacheStatic(router.CacheTTLSeconds, internal.StaticPaths()...))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	// Load Internal Routes
	internal.Routes(app, svc)

	// Running Startup Tasks
	internal.Startup(svc)

	// Running Routines Tasks
	internal.Routines(c, svc)

	// Get Server Configuration with defaults
	var serverConfig Server
	serverConfig.Address = env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")
	serverConfig.Port = env.GetEnvStringOrDefault("PORT", "8000")

	// Start Server
	go func() {
		if err := app.Listen(serverConfig.Address + ":" + serverConfig.Port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown
	log.Print(nil).Info("Shutting down")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	// Stop cron first so no sweep races the session teardown
	<-c.Stop().Done()

	// Server and sessions stop together; sinks drain after the last status update
	g, ctx := errgroup.WithContext(ctxShutdown)
	g.Go(func() error { return app.ShutdownWithContext(ctx) })
	g.Go(func() error { return coordinator.Stop(ctx) })
	if err := g.Wait(); err != nil {
		log.Print(nil).WithError(err).Error("Shutdown incomplete")
	}

	var sinksGroup errgroup.Group
	if notifier != nil {
		sinksGroup.Go(func() error { return notifier.Shutdown(ctxShutdown) })
	}
	if store != nil {
		sinksGroup.Go(func() error { return store.Close(ctxShutdown) })
	}
	if err := sinksGroup.Wait(); err != nil {
		log.Print(nil).WithError(err).Error("Failed to drain status sinks")
	}
}
