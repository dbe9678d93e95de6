package internal

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gdbrns/go-whatsapp-pair-session/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-session/pkg/whatsapp"
)

func Routines(c *cron.Cron, svc *Services) {
	log.Print(nil).Info("Running Routine Tasks")

	sweepSpec := getSweepCronSpec()
	_, err := c.AddFunc(sweepSpec, func() {
		_, _ = svc.Sweep()
		if n := svc.Hub.Sweep(time.Now()); n > 0 {
			log.Print(nil).WithField("count", n).Debug("Dropped finished sessions from the status hub")
		}
	})
	if err != nil {
		log.Print(nil).WithField("error", err.Error()).Error("Failed to add session sweep cron job")
	} else {
		log.Print(nil).WithField("spec", sweepSpec).WithField("max_age", svc.SweepMaxAge.String()).Info("Session sweep cron enabled")
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false) {
		spec := getWAVersionRefreshCronSpec()
		force := env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false)
		_, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			status, refreshed, err := pkgWhatsApp.RefreshWAVersion(ctx, force)
			versionStr := status.CurrentVersion.String()
			if err != nil {
				log.Print(nil).WithField("version", versionStr).WithField("force", force).Error("WA Web version refresh failed: " + err.Error())
				return
			}
			log.Print(nil).WithField("version", versionStr).WithField("refreshed", refreshed).WithField("force", force).Info("WA Web version refresh completed")
		})
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add WA Web version refresh cron job")
		} else {
			log.Print(nil).WithField("spec", spec).WithField("force", force).Info("WA Web version refresh cron enabled")
		}
	}

	c.Start()
}

func getSweepCronSpec() string {
	// robfig/cron with seconds field (6 parts). Default: every 5 minutes.
	spec := strings.TrimSpace(env.GetEnvStringOrDefault("PAIR_SWEEP_CRON_SPEC", ""))
	if spec == "" {
		return "0 */5 * * * *"
	}
	return spec
}

func getWAVersionRefreshCronSpec() string {
	// Default: daily at 03:00:00.
	spec := strings.TrimSpace(env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", ""))
	if spec == "" {
		return "0 0 3 * * *"
	}
	return spec
}
