package session

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestBufferEncodesTaggedBase64(t *testing.T) {
	raw, err := json.Marshal(Buffer{0x01, 0x02, 0xff})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"type":"Buffer","data":"AQL/"}` {
		t.Fatalf("unexpected encoding %s", raw)
	}

	var back Buffer
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, Buffer{0x01, 0x02, 0xff}) {
		t.Errorf("unexpected decode %v", back)
	}
}

func TestBufferDecodesByteArrayForm(t *testing.T) {
	var b Buffer
	if err := json.Unmarshal([]byte(`{"type":"Buffer","data":[1,2,255]}`), &b); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte{1, 2, 255}) {
		t.Errorf("unexpected decode %v", b)
	}

	if err := json.Unmarshal([]byte(`{"type":"Buffer","data":[256]}`), &b); err == nil {
		t.Error("expected out of range error")
	}
	if err := json.Unmarshal([]byte(`{"type":"Uint8Array","data":"AA=="}`), &b); err == nil {
		t.Error("expected type error")
	}
}

func completeBundle() *CredentialBundle {
	pair := &KeyPair{Private: Buffer{1}, Public: Buffer{2}}
	return &CredentialBundle{
		NoiseKey:          pair,
		SignedIdentityKey: pair,
		SignedPreKey:      &SignedKeyPair{KeyPair: *pair, Signature: Buffer{3}, KeyID: 1},
		RegistrationID:    42,
		AdvSecretKey:      "c2VjcmV0",
		Me:                &Contact{ID: "14155550100:7@s.whatsapp.net"},
		Platform:          "android",
		MyAppStateKeyID:   "AAAAAA==",
	}
}

func TestMissingFields(t *testing.T) {
	if missing := completeBundle().Missing(); len(missing) != 0 {
		t.Fatalf("complete bundle reported missing %v", missing)
	}

	b := completeBundle()
	b.NoiseKey = nil
	b.SignedPreKey.Signature = nil
	b.Me = &Contact{}
	got := strings.Join(b.Missing(), ",")
	if got != "noiseKey,signedPreKey,me" {
		t.Errorf("unexpected missing list %q", got)
	}

	if n := len((&CredentialBundle{}).Missing()); n != 7 {
		t.Errorf("empty bundle should miss all 7 fields, got %d", n)
	}
}
