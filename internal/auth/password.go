package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for password hashes.
const BcryptCost = 10

// dummyHash is compared against when a login names an unknown account so the
// response time does not reveal whether the account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("lms-timing-equalizer"), BcryptCost)

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword reports whether password matches hash.
func ComparePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CompareDummy burns the same bcrypt work as ComparePassword and always fails.
func CompareDummy(password string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return false
}

// NormalizeEmail trims and lower-cases an address and drops characters that
// never appear in a valid one.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("._%+-@", r):
			return r
		}
		return -1
	}, email)
}
