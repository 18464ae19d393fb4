// Package secure keeps key material in memguard enclaves so that it is
// encrypted while at rest in process memory and only decrypted into locked
// pages for the duration of a single operation.
package secure

import (
	"errors"

	"github.com/awnumar/memguard"
)

// ErrEmptyKey is returned when a key is created from no bytes.
var ErrEmptyKey = errors.New("secure: empty key")

// Key holds sensitive bytes inside a memguard enclave.
type Key struct {
	enclave *memguard.Enclave
}

// NewKey moves b into an enclave. b is wiped before NewKey returns.
func NewKey(b []byte) (*Key, error) {
	if len(b) == 0 {
		return nil, ErrEmptyKey
	}
	return &Key{enclave: memguard.NewEnclave(b)}, nil
}

// Use opens the enclave, passes the plaintext key to fn and destroys the
// plaintext copy when fn returns. fn must not retain the slice.
func (k *Key) Use(fn func(key []byte) error) error {
	locked, err := k.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

