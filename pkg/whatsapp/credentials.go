package whatsapp

import (
	"context"
	"encoding/base64"
	"time"

	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/util/keys"

	"github.com/gdbrns/go-whatsapp-pair-session/internal/session"
)

const snapshotTimeout = 5 * time.Second

func keyPair(kp *keys.KeyPair) *session.KeyPair {
	if kp == nil || kp.Pub == nil || kp.Priv == nil {
		return nil
	}
	return &session.KeyPair{
		Private: session.Buffer(kp.Priv[:]),
		Public:  session.Buffer(kp.Pub[:]),
	}
}

// signalPublicKey prefixes a curve25519 key with the djb type byte.
func signalPublicKey(pub *[32]byte) session.Buffer {
	out := make([]byte, 0, 33)
	out = append(out, 0x05)
	return append(out, pub[:]...)
}

// Snapshot converts a whatsmeow device into the exported credential bundle.
// Registered stays false; the export hand-off flips it.
func Snapshot(ctx context.Context, device *store.Device) *session.CredentialBundle {
	bundle := &session.CredentialBundle{
		NoiseKey:          keyPair(device.NoiseKey),
		SignedIdentityKey: keyPair(device.IdentityKey),
		RegistrationID:    device.RegistrationID,
		Platform:          device.Platform,
	}
	if len(device.AdvSecretKey) > 0 {
		bundle.AdvSecretKey = base64.StdEncoding.EncodeToString(device.AdvSecretKey)
	}

	if pk := device.SignedPreKey; pk != nil {
		signed := &session.SignedKeyPair{KeyID: pk.KeyID}
		if kp := keyPair(&pk.KeyPair); kp != nil {
			signed.KeyPair = *kp
		}
		if pk.Signature != nil {
			signed.Signature = session.Buffer(pk.Signature[:])
		}
		bundle.SignedPreKey = signed
	}

	if device.ID != nil {
		me := &session.Contact{ID: device.ID.String(), Name: device.PushName}
		if !device.LID.IsEmpty() {
			me.LID = device.LID.String()
		}
		bundle.Me = me

		if device.IdentityKey != nil && device.IdentityKey.Pub != nil {
			bundle.SignalIdentities = []session.SignalIdentity{{
				Identifier:    session.SignalIdentifier{Name: device.ID.String(), DeviceID: 0},
				IdentifierKey: signalPublicKey(device.IdentityKey.Pub),
			}}
		}
	}

	if acc := device.Account; acc != nil {
		bundle.Account = &session.Account{
			Details:             session.Buffer(acc.GetDetails()),
			AccountSignatureKey: session.Buffer(acc.GetAccountSignatureKey()),
			AccountSignature:    session.Buffer(acc.GetAccountSignature()),
			DeviceSignature:     session.Buffer(acc.GetDeviceSignature()),
		}
	}

	if device.AppStateKeys != nil {
		if keyID, err := device.AppStateKeys.GetLatestAppStateSyncKeyID(ctx); err == nil && len(keyID) > 0 {
			bundle.MyAppStateKeyID = base64.StdEncoding.EncodeToString(keyID)
		}
	}
	return bundle
}

// writeSnapshot keeps the registered flag of a bundle the export already marked.
func writeSnapshot(ctx context.Context, dir *session.Directory, device *store.Device) error {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	bundle := Snapshot(ctx, device)
	if prev, err := dir.ReadBundle(); err == nil && prev.Registered {
		bundle.Registered = true
	}
	return dir.WriteBundle(bundle)
}
