package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/session"
)

type fakeClient struct {
	emit Emitter
	dir  *session.Directory

	mu         sync.Mutex
	codes      []string
	codeErr    error
	sendErr    error
	registered bool
	docs       []Document
	texts      []string
	quoted     []*Sent
	closed     bool
	persists   int
	onPersist  func() error
}

func (f *fakeClient) Connect(context.Context) error { return nil }

func (f *fakeClient) Registered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

func (f *fakeClient) RequestPairingCode(_ context.Context, phone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codeErr != nil {
		return "", f.codeErr
	}
	f.codes = append(f.codes, phone)
	return "ABCDEFGH", nil
}

func (f *fakeClient) OwnJID() string { return "14155550100@s.whatsapp.net" }

func (f *fakeClient) Persist(context.Context) error {
	f.mu.Lock()
	f.persists++
	hook := f.onPersist
	f.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook()
}

func (f *fakeClient) SendDocument(_ context.Context, _ string, doc Document) (*Sent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.docs = append(f.docs, doc)
	return &Sent{ID: "3EB0DOC", Document: &doc}, nil
}

func (f *fakeClient) SendText(_ context.Context, _ string, text string, quoted *Sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.quoted = append(f.quoted, quoted)
	return nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeClient) counts() (codes, docs, texts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.codes), len(f.docs), len(f.texts)
}

func (f *fakeClient) firstCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		return ""
	}
	return f.codes[0]
}

func (f *fakeClient) firstDoc() Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.docs) == 0 {
		return Document{}
	}
	return f.docs[0]
}

func (f *fakeClient) firstQuoted() *Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.quoted) == 0 {
		return nil
	}
	return f.quoted[0]
}

func (f *fakeClient) persistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persists
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	dialErr error
	setup   func(*fakeClient)
	dialed  chan *fakeClient
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeClient, 8)}
}

func (d *fakeDialer) Dial(_ context.Context, dir *session.Directory, emit Emitter) (Client, error) {
	d.mu.Lock()
	d.dials++
	err, setup := d.dialErr, d.setup
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	fc := &fakeClient{emit: emit, dir: dir}
	if setup != nil {
		setup(fc)
	}
	d.dialed <- fc
	return fc, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeClient {
	t.Helper()
	select {
	case fc := <-d.dialed:
		return fc
	case <-time.After(3 * time.Second):
		t.Fatal("no connection attempt was dialed")
		return nil
	}
}

type published struct {
	event string
	snap  Snapshot
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(event string, snap Snapshot) {
	r.mu.Lock()
	r.events = append(r.events, published{event, snap})
	r.mu.Unlock()
}

func (r *recorder) has(event string, match func(Snapshot) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.events {
		if p.event == event && (match == nil || match(p.snap)) {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) Config {
	return Config{
		Root:         t.TempDir(),
		SettleDelay:  150 * time.Millisecond,
		SettlePoll:   5 * time.Millisecond,
		CodeTimeout:  2 * time.Second,
		SessionTTL:   time.Minute,
		EmitTimeout:  time.Second,
		MaxRetries:   3,
		BackoffBase:  time.Millisecond,
		BackoffMax:   2 * time.Millisecond,
		ExportFormat: ExportJSON,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type beginResult struct {
	res *Result
	err error
}

func beginAsync(ctx context.Context, c *Coordinator, identifier string) <-chan beginResult {
	out := make(chan beginResult, 1)
	go func() {
		res, err := c.Begin(ctx, identifier)
		out <- beginResult{res, err}
	}()
	return out
}

func await(t *testing.T, ch <-chan beginResult) beginResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("Begin did not return")
		return beginResult{}
	}
}

func stopCoordinator(t *testing.T, c *Coordinator) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Stop: %v", err)
		}
	})
}

func writeBundle(t *testing.T, dir *session.Directory, registered bool) {
	t.Helper()
	if err := dir.WriteBundle(testBundle(registered)); err != nil {
		t.Fatal(err)
	}
}

func testBundle(registered bool) *session.CredentialBundle {
	pair := &session.KeyPair{Private: session.Buffer{1, 2}, Public: session.Buffer{3, 4}}
	return &session.CredentialBundle{
		NoiseKey:          pair,
		SignedIdentityKey: pair,
		SignedPreKey:      &session.SignedKeyPair{KeyPair: *pair, Signature: session.Buffer{5}, KeyID: 1},
		RegistrationID:    7,
		AdvSecretKey:      "c2VjcmV0",
		Me:                &session.Contact{ID: "14155550100:3@s.whatsapp.net"},
		Platform:          "android",
		MyAppStateKeyID:   "AAAAAA==",
		Registered:        registered,
	}
}
