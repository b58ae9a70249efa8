package gree

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope tags.
const (
	TagScan   = "scan"
	TagDev    = "dev"
	TagBind   = "bind"
	TagBindOK = "bindok"
	TagStatus = "status"
	TagCmd    = "cmd"
	TagRes    = "res"
	TagPack   = "pack"
)

// appCID is the client identifier every request carries.
const appCID = "app"

// Envelope is the outer frame of every datagram.
//
// Pack is kept raw because it takes two shapes on the wire: a JSON string
// holding base64 ciphertext, or (for plaintext frames from some firmware) a
// JSON object.
type Envelope struct {
	CID  string          `json:"cid"`
	I    int             `json:"i"`
	T    string          `json:"t"`
	UID  int             `json:"uid"`
	TCID string          `json:"tcid,omitempty"`
	Pack json.RawMessage `json:"pack,omitempty"`
}

// NewScanRequest builds the unencrypted broadcast discovery probe.
func NewScanRequest() Envelope {
	return Envelope{CID: appCID, I: 1, T: TagScan, UID: 0}
}

// bindRequest is the plaintext body of a bind frame.
type bindRequest struct {
	MAC string `json:"mac"`
	T   string `json:"t"`
	UID int    `json:"uid"`
}

// NewBindRequest builds an unencrypted bind frame for mac. TCID stays unset.
func NewBindRequest(mac string) (Envelope, error) {
	body, err := json.Marshal(bindRequest{MAC: mac, T: TagBind, UID: 0})
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding bind request: %w", err)
	}
	return Envelope{CID: appCID, I: 1, T: TagBind, UID: 0, Pack: body}, nil
}

// NewPackRequest serialises inner, encrypts it under key and wraps it in a
// pack frame addressed to mac.
func NewPackRequest(mac string, inner any, key string) (Envelope, error) {
	body, err := json.Marshal(inner)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding pack body: %w", err)
	}
	cipher, err := Encrypt(body, key)
	if err != nil {
		return Envelope{}, err
	}
	pack, err := json.Marshal(cipher)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding pack: %w", err)
	}
	return Envelope{CID: appCID, I: 0, T: TagPack, UID: 0, TCID: mac, Pack: pack}, nil
}

// Marshal encodes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// ParseEnvelope decodes a received datagram. A frame without a tag is
// rejected with ErrUnexpectedResponse.
func ParseEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("%w: missing tag", ErrUnexpectedResponse)
	}
	return e, nil
}

// Open returns the inner JSON of the envelope. An encrypted pack is
// decrypted with key; a plaintext object is returned as is.
func (e Envelope) Open(key string) ([]byte, error) {
	raw := bytes.TrimSpace(e.Pack)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: %s frame has no pack", ErrUnexpectedResponse, e.T)
	}

	if raw[0] == '{' {
		return raw, nil
	}

	var cipher string
	if err := json.Unmarshal(raw, &cipher); err != nil {
		return nil, fmt.Errorf("%w: pack is neither string nor object", ErrUnexpectedResponse)
	}
	return Decrypt(cipher, key)
}

// DecodePack opens the pack with key and unmarshals it into v.
func (e Envelope) DecodePack(key string, v any) error {
	inner, err := e.Open(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(inner, v); err != nil {
		return &CryptoError{Op: "decrypt", Err: fmt.Errorf("decoding pack json: %w", err)}
	}
	return nil
}

// innerTag is used to peek at the tag of a decrypted pack.
type innerTag struct {
	T string `json:"t"`
}
