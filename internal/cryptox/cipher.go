// Package cryptox encrypts secret values at rest with the process master key.
//
// Values are encoded as hex(iv) ":" hex(ciphertext || tag) where ciphertext is
// AES-256-CBC with PKCS#7 padding and tag is HMAC-SHA256 over iv||ciphertext.
// Encryption and MAC keys are derived from the master key with HKDF-SHA256.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	apperrors "lms/internal/errors"
	"lms/internal/secure"
)

const (
	// MasterKeySize is the master key length in bytes.
	MasterKeySize = 32
	ivSize        = aes.BlockSize
	tagSize       = sha256.Size
	delimiter     = ":"
)

var (
	encInfo = []byte("lms secret encryption v1")
	macInfo = []byte("lms secret authentication v1")
)

// Cipher encrypts and decrypts secret values. It is safe for concurrent use.
type Cipher struct {
	key *secure.Key
}

// NewCipher validates a hex encoded 32-byte master key and returns a Cipher
// holding it in protected memory.
func NewCipher(masterKeyHex string) (*Cipher, error) {
	if masterKeyHex == "" {
		return nil, apperrors.Configuration("master key is not set")
	}
	if len(masterKeyHex) != MasterKeySize*2 {
		return nil, apperrors.Configuration(fmt.Sprintf("master key must be %d hex characters", MasterKeySize*2))
	}
	raw, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, apperrors.Configuration("master key is not valid hex")
	}
	key, err := secure.NewKey(raw)
	if err != nil {
		return nil, apperrors.Configuration("master key is empty")
	}
	return &Cipher{key: key}, nil
}

// GenerateMasterKey returns a fresh random 32-byte key, hex encoded.
func GenerateMasterKey() (string, error) {
	b := make([]byte, MasterKeySize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Encrypt returns the at-rest representation of plaintext. Every call uses a
// new random IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", apperrors.New(apperrors.ErrCrypto, "encryption failed")
	}

	var out string
	err := c.key.Use(func(master []byte) error {
		encKey, macKey, err := deriveKeys(master)
		if err != nil {
			return err
		}
		block, err := aes.NewCipher(encKey)
		if err != nil {
			return err
		}
		padded := pad([]byte(plaintext))
		ct := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

		body := append(ct, sign(macKey, iv, ct)...)
		out = hex.EncodeToString(iv) + delimiter + hex.EncodeToString(body)
		return nil
	})
	if err != nil {
		return "", apperrors.New(apperrors.ErrCrypto, "encryption failed")
	}
	return out, nil
}

// Decrypt reverses Encrypt. Malformed or tampered input fails with
// apperrors.ErrDecryption.
func (c *Cipher) Decrypt(value string) (string, error) {
	iv, body, ok := split(value)
	if !ok {
		return "", apperrors.ErrDecryption
	}
	ct, tag := body[:len(body)-tagSize], body[len(body)-tagSize:]

	var out string
	err := c.key.Use(func(master []byte) error {
		encKey, macKey, err := deriveKeys(master)
		if err != nil {
			return err
		}
		if !hmac.Equal(tag, sign(macKey, iv, ct)) {
			return apperrors.ErrDecryption
		}
		block, err := aes.NewCipher(encKey)
		if err != nil {
			return err
		}
		plain := make([]byte, len(ct))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
		unpadded, ok := unpad(plain)
		if !ok {
			return apperrors.ErrDecryption
		}
		out = string(unpadded)
		return nil
	})
	if err != nil {
		return "", apperrors.ErrDecryption
	}
	return out, nil
}

// split parses and validates the wire format without touching key material.
func split(value string) (iv, body []byte, ok bool) {
	if strings.Count(value, delimiter) != 1 {
		return nil, nil, false
	}
	ivHex, bodyHex, _ := strings.Cut(value, delimiter)
	if !isLowerHex(ivHex) || !isLowerHex(bodyHex) {
		return nil, nil, false
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivSize {
		return nil, nil, false
	}
	body, err = hex.DecodeString(bodyHex)
	if err != nil || len(body) < tagSize+aes.BlockSize || (len(body)-tagSize)%aes.BlockSize != 0 {
		return nil, nil, false
	}
	return iv, body, true
}

// isLowerHex rejects upper-case digits so every encoded byte has exactly one
// textual form.
func isLowerHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return false
		}
	}
	return true
}

func deriveKeys(master []byte) (encKey, macKey []byte, err error) {
	encKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, encInfo), encKey); err != nil {
		return nil, nil, err
	}
	macKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, macInfo), macKey); err != nil {
		return nil, nil, err
	}
	return encKey, macKey, nil
}

func sign(macKey, iv, ct []byte) []byte {
	m := hmac.New(sha256.New, macKey)
	m.Write(iv)
	m.Write(ct)
	return m.Sum(nil)
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, false
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
