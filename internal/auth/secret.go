package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const defaultCost = 12

// ErrSecretMismatch is returned by Verify when the plaintext does not match.
var ErrSecretMismatch = errors.New("auth: secret does not match")

// SecretHasher hashes one-time secrets, such as invitation tokens, with
// bcrypt. Only the hash is ever stored.
type SecretHasher struct {
	cost int
}

func NewSecretHasher() *SecretHasher {
	return &SecretHasher{cost: defaultCost}
}

// NewSecretHasherForTest uses a lower cost (bcrypt.MinCost is 4) so tests
// stay fast.
func NewSecretHasherForTest(cost int) *SecretHasher {
	return &SecretHasher{cost: cost}
}

// Hash rejects input longer than 72 bytes, which bcrypt would silently
// truncate.
func (h *SecretHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: secret must be 72 bytes or fewer")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing secret: %w", err)
	}
	return string(hashed), nil
}

func (h *SecretHasher) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrSecretMismatch
		}
		return fmt.Errorf("auth: comparing secret hash: %w", err)
	}
	return nil
}
