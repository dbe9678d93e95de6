package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-pair-session/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
)

var ErrWAVersionOutdatedForQR = errors.New("whatsapp client version is outdated for pairing")

type WAVersionRefreshStatus struct {
	CurrentVersion store.WAVersionContainer `json:"current_version"`
	LastRefreshed  *time.Time               `json:"last_refreshed,omitempty"`
	LastError      string                   `json:"last_error,omitempty"`
}

var (
	waVersionRefreshGroup singleflight.Group

	waVersionRefreshMu       sync.RWMutex
	waVersionLastRefreshedAt *time.Time
	waVersionLastError       string

	// fetchLatestVersion is replaced in tests.
	fetchLatestVersion = func(ctx context.Context) (*store.WAVersionContainer, error) {
		return whatsmeow.GetLatestVersion(ctx, &http.Client{Timeout: 15 * time.Second})
	}
)

func waVersionRefreshMinInterval() time.Duration {
	return env.GetEnvDurationOrDefault("WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL", 10*time.Minute)
}

func WAVersionStatus() WAVersionRefreshStatus {
	waVersionRefreshMu.RLock()
	defer waVersionRefreshMu.RUnlock()

	var last *time.Time
	if waVersionLastRefreshedAt != nil {
		t := *waVersionLastRefreshedAt
		last = &t
	}
	return WAVersionRefreshStatus{
		CurrentVersion: store.GetWAVersion(),
		LastRefreshed:  last,
		LastError:      waVersionLastError,
	}
}

func recordRefresh(err error) {
	waVersionRefreshMu.Lock()
	now := time.Now()
	waVersionLastRefreshedAt = &now
	waVersionLastError = ""
	if err != nil {
		waVersionLastError = err.Error()
	}
	waVersionRefreshMu.Unlock()
}

// RefreshWAVersion fetches the current WhatsApp Web version and applies it to every
// client created afterwards. Unless force is set, calls inside
// WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL are skipped. Concurrent callers share
// one request. The bool result reports whether a fetch ran.
func RefreshWAVersion(ctx context.Context, force bool) (WAVersionRefreshStatus, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if minInterval := waVersionRefreshMinInterval(); !force && minInterval > 0 {
		waVersionRefreshMu.RLock()
		last := waVersionLastRefreshedAt
		waVersionRefreshMu.RUnlock()
		if last != nil && time.Since(*last) < minInterval {
			return WAVersionStatus(), false, nil
		}
	}

	_, err, _ := waVersionRefreshGroup.Do("refresh", func() (interface{}, error) {
		latest, err := fetchLatestVersion(ctx)
		if err == nil && latest == nil {
			err = errors.New("latest WhatsApp Web version is nil")
		}
		if err != nil {
			recordRefresh(err)
			return nil, err
		}

		store.SetWAVersion(*latest)
		recordRefresh(nil)
		return store.GetWAVersion(), nil
	})
	return WAVersionStatus(), true, err
}

// refreshAfterOutdated runs when the server rejects the client version, so the
// next connection attempt uses a current one.
func refreshAfterOutdated() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, _, err := RefreshWAVersion(ctx, true)
	if err != nil {
		log.Print(nil).WithError(err).Warn("WA version refresh after outdated client failed")
		return
	}
	log.Print(nil).WithField("version", status.CurrentVersion.String()).Info("WA version refreshed after outdated client")
}
