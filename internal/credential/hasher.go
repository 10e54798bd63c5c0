package credential

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns raw secrets into storable digests and compares them back.
type Hasher interface {
	Hash(raw string) (string, error)
	Compare(hash, raw string) bool
}

// BcryptHasher hashes a SHA-256 pre-digest of the secret with bcrypt, keeping
// every input under bcrypt's 72 byte limit.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher with the given cost, falling back to
// bcrypt.DefaultCost for out of range values.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	out, err := bcrypt.GenerateFromPassword(predigest(raw), h.Cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h *BcryptHasher) Compare(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), predigest(raw)) == nil
}

func predigest(raw string) []byte {
	sum := sha256.Sum256([]byte(raw))
	return []byte(hex.EncodeToString(sum[:]))
}
