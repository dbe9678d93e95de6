package qr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/broadcast"
	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/auth"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/router"
)

type stubPairer struct {
	hub *broadcast.Hub
	err error
}

func (s *stubPairer) Begin(_ context.Context, identifier string) (*pairing.Result, error) {
	if identifier != "" {
		panic("qr sessions are started without an identifier")
	}
	if s.err != nil {
		return nil, s.err
	}
	payload := "2@abc,def,ghi"
	s.hub.Publish(pairing.EventQR, pairing.Snapshot{SessionID: "qr-1", Mode: pairing.ModeQR, Status: pairing.StatusQR, QR: &payload})
	return &pairing.Result{SessionID: "qr-1", Mode: pairing.ModeQR}, nil
}

func newApp(h *Handler) *fiber.App {
	app := fiber.New()
	app.Post("/server/qr/start", h.Start)
	app.Get("/server/qr.png", h.Image)
	return app
}

func TestStartAndImage(t *testing.T) {
	hub := broadcast.NewHub(time.Minute)
	tickets := auth.NewTickets([]byte("secret"), time.Minute)
	app := newApp(New(&stubPairer{hub: hub}, hub, tickets))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/server/qr/start", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	var body router.PairResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if body.Session != "qr-1" || body.Ticket == "" {
		t.Fatalf("unexpected body %+v", body)
	}
	if !strings.HasPrefix(body.QR, "data:image/png;base64,") {
		t.Errorf("expected a data url, got %.40q", body.QR)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/server/qr.png?ticket="+body.Ticket, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	png, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status %d, content type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Error("body is not a png")
	}
}

func TestImageRequiresTicket(t *testing.T) {
	hub := broadcast.NewHub(time.Minute)
	app := newApp(New(&stubPairer{hub: hub}, hub, auth.NewTickets([]byte("secret"), time.Minute)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/server/qr.png?ticket=bogus", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestImageWithoutQR(t *testing.T) {
	hub := broadcast.NewHub(time.Minute)
	tickets := auth.NewTickets([]byte("secret"), time.Minute)
	hub.Publish(pairing.EventStatus, pairing.Snapshot{SessionID: "qr-2", Status: pairing.StatusOpen})
	ticket, _ := tickets.Issue("qr-2", "qr")

	resp, err := newApp(New(&stubPairer{hub: hub}, hub, tickets)).Test(httptest.NewRequest(http.MethodGet, "/server/qr.png?ticket="+ticket, nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestStartFailure(t *testing.T) {
	hub := broadcast.NewHub(time.Minute)
	app := newApp(New(&stubPairer{hub: hub, err: pairing.ErrServiceUnavailable}, hub, auth.NewTickets([]byte("s"), time.Minute)))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/server/qr/start", nil))
	if err != nil {
		t.Fatal(err)
	}
	var body router.PairResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusServiceUnavailable || body.Code != "ServiceUnavailable" {
		t.Errorf("got %d %+v", resp.StatusCode, body)
	}
}
