package reports

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks a field written by FieldCipher. Values without it are
// returned unchanged so rows written before encryption was enabled stay readable.
const sealedPrefix = "enc:v1:"

var ErrCorruptField = errors.New("reports: sealed field cannot be opened")

// FieldCipher seals individual report columns with XChaCha20-Poly1305.
// The report id is bound as additional data so a sealed value cannot be
// moved to another row.
type FieldCipher struct {
	aead cipher.AEAD
}

func NewFieldCipher(key []byte) (*FieldCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("reports: field cipher: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// Seal returns plaintext unchanged when it is empty.
func (c *FieldCipher) Seal(reportID, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(reportID))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

func (c *FieldCipher) Open(reportID, stored string) (string, error) {
	raw, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil || len(data) < c.aead.NonceSize() {
		return "", ErrCorruptField
	}
	nonce, sealed := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, []byte(reportID))
	if err != nil {
		return "", ErrCorruptField
	}
	return string(plain), nil
}

func (c *FieldCipher) sealReport(r Report) (Report, error) {
	var err error
	if r.Phone, err = c.Seal(r.ID, r.Phone); err != nil {
		return Report{}, err
	}
	if r.ClientName, err = c.Seal(r.ID, r.ClientName); err != nil {
		return Report{}, err
	}
	if r.Memo, err = c.Seal(r.ID, r.Memo); err != nil {
		return Report{}, err
	}
	return r, nil
}

func (c *FieldCipher) openReport(r Report) (Report, error) {
	var err error
	if r.Phone, err = c.Open(r.ID, r.Phone); err != nil {
		return Report{}, err
	}
	if r.ClientName, err = c.Open(r.ID, r.ClientName); err != nil {
		return Report{}, err
	}
	if r.Memo, err = c.Open(r.ID, r.Memo); err != nil {
		return Report{}, err
	}
	return r, nil
}
