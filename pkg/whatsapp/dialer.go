package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
)

var devicePropsOnce sync.Once

// Dialer opens a whatsmeow client backed by a sqlite store inside the session
// directory.
type Dialer struct {
	ProxyURL string
	// OnQR is called with every QR payload, e.g. to print it on a terminal.
	OnQR func(sessionDir string, payload string)
}

func NewDialer() *Dialer {
	devicePropsOnce.Do(func() {
		store.DeviceProps.Os = proto.String(runtime.GOOS)
		store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
		store.DeviceProps.RequireFullSync = proto.Bool(false)
	})

	proxyURL, _ := env.GetEnvString("WHATSAPP_CLIENT_PROXY_URL")
	return &Dialer{ProxyURL: proxyURL}
}

func storeDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func applyProxy(wa *whatsmeow.Client, addr string) error {
	if addr == "" {
		return nil
	}
	if err := wa.SetProxyAddress(addr); err != nil {
		return fmt.Errorf("set proxy: %w", err)
	}
	return nil
}

func (d *Dialer) Dial(ctx context.Context, dir *session.Directory, emit pairing.Emitter) (pairing.Client, error) {
	if err := dir.Ensure(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", storeDSN(dir.StorePath()))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	db.SetMaxOpenConns(1)

	container := sqlstore.NewWithDB(db, "sqlite", log.WhatsApp("Database"))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, log.WhatsApp("Client/"+dir.Name()))
	if err := applyProxy(wa, d.ProxyURL); err != nil {
		log.Print(nil).WithError(err).Warn("ignoring WhatsApp proxy, connecting directly")
	}
	// Reconnects after a drop are owned by the pairing supervisor.
	wa.EnableAutoReconnect = false
	wa.AutoTrustIdentity = true

	c := &Client{
		wa:   wa,
		db:   db,
		dir:  dir,
		emit: emit,
		onQR: d.OnQR,
	}
	wa.AddEventHandler(c.handleEvent)
	return c, nil
}
