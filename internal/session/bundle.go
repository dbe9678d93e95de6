package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Buffer is binary key material. It is encoded as {"type":"Buffer","data":"<base64>"}
// so the exported creds.json stays readable by Baileys based bots.
type Buffer []byte

type bufferJSON struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (b Buffer) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(base64.StdEncoding.EncodeToString(b))
	if err != nil {
		return nil, err
	}
	return json.Marshal(bufferJSON{Type: "Buffer", Data: data})
}

// UnmarshalJSON accepts the base64 form and the legacy byte-array form.
func (b *Buffer) UnmarshalJSON(raw []byte) error {
	if string(raw) == "null" {
		*b = nil
		return nil
	}
	var wrapped bufferJSON
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return err
	}
	if wrapped.Type != "Buffer" {
		return errors.New("buffer: unexpected type " + wrapped.Type)
	}

	var encoded string
	if err := json.Unmarshal(wrapped.Data, &encoded); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return err
		}
		*b = decoded
		return nil
	}

	var ints []int
	if err := json.Unmarshal(wrapped.Data, &ints); err != nil {
		return errors.New("buffer: data is neither base64 nor a byte array")
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return errors.New("buffer: byte out of range")
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

type KeyPair struct {
	Private Buffer `json:"private"`
	Public  Buffer `json:"public"`
}

func (k *KeyPair) empty() bool {
	return k == nil || len(k.Public) == 0 || len(k.Private) == 0
}

type SignedKeyPair struct {
	KeyPair   KeyPair `json:"keyPair"`
	Signature Buffer  `json:"signature"`
	KeyID     uint32  `json:"keyId"`
}

type Contact struct {
	ID   string `json:"id"`
	LID  string `json:"lid,omitempty"`
	Name string `json:"name,omitempty"`
}

type Account struct {
	Details             Buffer `json:"details"`
	AccountSignatureKey Buffer `json:"accountSignatureKey"`
	AccountSignature    Buffer `json:"accountSignature"`
	DeviceSignature     Buffer `json:"deviceSignature"`
}

type SignalIdentifier struct {
	Name     string `json:"name"`
	DeviceID int    `json:"deviceId"`
}

type SignalIdentity struct {
	Identifier    SignalIdentifier `json:"identifier"`
	IdentifierKey Buffer           `json:"identifierKey"`
}

// CredentialBundle is the persisted authentication material of one linked device.
type CredentialBundle struct {
	NoiseKey                *KeyPair         `json:"noiseKey,omitempty"`
	PairingEphemeralKeyPair *KeyPair         `json:"pairingEphemeralKeyPair,omitempty"`
	SignedIdentityKey       *KeyPair         `json:"signedIdentityKey,omitempty"`
	SignedPreKey            *SignedKeyPair   `json:"signedPreKey,omitempty"`
	RegistrationID          uint32           `json:"registrationId"`
	AdvSecretKey            string           `json:"advSecretKey,omitempty"`
	Me                      *Contact         `json:"me,omitempty"`
	Account                 *Account         `json:"account,omitempty"`
	SignalIdentities        []SignalIdentity `json:"signalIdentities,omitempty"`
	Platform                string           `json:"platform,omitempty"`
	MyAppStateKeyID         string           `json:"myAppStateKeyId,omitempty"`
	Registered              bool             `json:"registered"`
}

// Missing lists the required fields that are absent. An incomplete bundle is still
// exported; callers log the result as a warning.
func (b *CredentialBundle) Missing() []string {
	var missing []string
	if b.NoiseKey.empty() {
		missing = append(missing, "noiseKey")
	}
	if b.SignedIdentityKey.empty() {
		missing = append(missing, "signedIdentityKey")
	}
	if b.SignedPreKey == nil || b.SignedPreKey.KeyPair.empty() || len(b.SignedPreKey.Signature) == 0 {
		missing = append(missing, "signedPreKey")
	}
	if b.AdvSecretKey == "" {
		missing = append(missing, "advSecretKey")
	}
	if b.Me == nil || b.Me.ID == "" {
		missing = append(missing, "me")
	}
	if b.Platform == "" {
		missing = append(missing, "platform")
	}
	if b.MyAppStateKeyID == "" {
		missing = append(missing, "myAppStateKeyId")
	}
	return missing
}
