package broadcast

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-session/pkg/log"
)

type EventType string

const (
	EventPairingExported   EventType = "pairing.exported"
	EventPairingTerminated EventType = "pairing.terminated"
)

type NotifierEvent struct {
	EventType EventType              `json:"event_type"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

type NotifierConfig struct {
	URL          string
	Secret       string
	Workers      int
	RetryLimit   int
	RetryDelay   time.Duration
	AllowPrivate bool
}

func NotifierConfigFromEnv() NotifierConfig {
	return NotifierConfig{
		URL:        env.GetEnvStringOrDefault("PAIR_WEBHOOK_URL", ""),
		Secret:     env.GetEnvStringOrDefault("PAIR_WEBHOOK_SECRET", ""),
		Workers:    env.GetEnvPositiveIntOrDefault("PAIR_WEBHOOK_WORKERS", 2),
		RetryLimit: env.GetEnvPositiveIntOrDefault("PAIR_WEBHOOK_RETRY_LIMIT", 3),
		RetryDelay: env.GetEnvDurationOrDefault("PAIR_WEBHOOK_RETRY_DELAY", 2*time.Second),
	}
}

// Notifier posts an HMAC signed JSON event when a session is exported or ends.
type Notifier struct {
	cfg        NotifierConfig
	httpClient *http.Client
	queue      chan NotifierEvent
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu   sync.Mutex
	sent map[string]pairing.Status
}

func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is empty")
	}
	if err := validateURL(cfg.URL, cfg.AllowPrivate); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan NotifierEvent, 256),
		ctx:        ctx,
		cancel:     cancel,
		sent:       make(map[string]pairing.Status),
	}
	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n, nil
}

// Shutdown stops accepting events and waits for in-flight deliveries until ctx ends.
func (n *Notifier) Shutdown(ctx context.Context) error {
	close(n.queue)
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n.cancel()
		return ctx.Err()
	}
}

func (n *Notifier) Publish(_ string, snap pairing.Snapshot) {
	var eventType EventType
	switch snap.Status {
	case pairing.StatusExported:
		eventType = EventPairingExported
	case pairing.StatusTerminated:
		eventType = EventPairingTerminated
	default:
		return
	}

	n.mu.Lock()
	if n.sent[snap.SessionID] == snap.Status {
		n.mu.Unlock()
		return
	}
	if snap.Status == pairing.StatusTerminated {
		delete(n.sent, snap.SessionID)
	} else {
		n.sent[snap.SessionID] = snap.Status
	}
	n.mu.Unlock()

	event := NotifierEvent{
		EventType: eventType,
		SessionID: snap.SessionID,
		Timestamp: snap.UpdatedAt,
		Data: map[string]interface{}{
			"mode":      snap.Mode,
			"directory": log.Mask(snap.Directory),
			"export":    snap.Export,
			"attempt":   snap.Attempt,
			"error":     snap.Error,
		},
	}

	defer func() {
		// queue closed by Shutdown
		_ = recover()
	}()
	select {
	case n.queue <- event:
	default:
		log.Session(snap.SessionID).Warn("webhook queue full, dropping " + string(eventType))
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case event, ok := <-n.queue:
			if !ok {
				return
			}
			n.deliver(event)
		}
	}
}

func (n *Notifier) deliver(event NotifierEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Unhandled(err)
		return
	}
	signature := signPayload(payload, n.cfg.Secret)
	entry := log.Session(event.SessionID).WithField("event", string(event.EventType))

	var lastErr error
	for attempt := 1; attempt <= n.cfg.RetryLimit; attempt++ {
		if lastErr = n.post(payload, signature, event.EventType); lastErr == nil {
			entry.WithField("attempt", attempt).Debug("webhook delivered")
			return
		}
		if attempt < n.cfg.RetryLimit {
			select {
			case <-n.ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * n.cfg.RetryDelay):
			}
		}
	}
	entry.WithError(lastErr).Warn("webhook delivery failed")
}

func (n *Notifier) post(payload []byte, signature string, eventType EventType) error {
	req, err := http.NewRequestWithContext(n.ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Hub-Signature-256", signature)
	req.Header.Set("X-Webhook-Event", string(eventType))
	req.Header.Set("User-Agent", "WhatsApp-Pair-Session/1.0")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var errPrivateURL = errors.New("private/local network URLs are not allowed")

func validateURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if allowPrivate {
		return nil
	}
	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return errPrivateURL
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.IsLoopback() || addr.IsUnspecified() || addr.IsPrivate() || addr.IsLinkLocalUnicast() {
			return errPrivateURL
		}
	}
	return nil
}
