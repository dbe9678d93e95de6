package internal

import (
	"context"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/broadcast"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/ledger"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/auth"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-session/pkg/whatsapp"
)

// Services are the long-lived components shared by routes, startup and routines.
type Services struct {
	Coordinator *pairing.Coordinator
	Hub         *broadcast.Hub
	Ledger      *ledger.Store
	Tickets     *auth.Tickets
	SweepMaxAge time.Duration
}

func SweepMaxAge() time.Duration {
	return env.GetEnvDurationOrDefault("PAIR_SWEEP_MAX_AGE", 30*time.Minute)
}

// Sweep deletes session directories left behind by crashed or abandoned runs.
func (s *Services) Sweep() ([]string, error) {
	removed, err := session.Sweep(s.Coordinator.Config().Root, s.SweepMaxAge, s.Coordinator.Live)
	for _, name := range removed {
		log.Print(nil).WithField("directory", log.Mask(name)).Info("Removed stale session directory")
	}
	if err != nil {
		log.Print(nil).WithError(err).Warn("Session directory sweep finished with errors")
	}
	return removed, err
}

func Startup(svc *Services) {
	log.Print(nil).Info("Running Startup Tasks")

	// Nothing is live yet, so every directory older than the max age belongs to a
	// previous process.
	if removed, _ := svc.Sweep(); len(removed) > 0 {
		log.Print(nil).WithField("count", len(removed)).Info("Startup sweep removed stale session directories")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		status, _, err := pkgWhatsApp.RefreshWAVersion(ctx, true)
		if err != nil {
			log.Print(nil).WithError(err).Warn("WA Web version refresh at startup failed, using the built-in version")
			return
		}
		log.Print(nil).WithField("version", status.CurrentVersion.String()).Info("WA Web version refreshed")
	}()
}
