package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const resetTokenBytes = 20

// ResetTokenHasher issues password reset tokens. Only the HMAC of a token is
// meant to be persisted; the plaintext goes into the email link.
type ResetTokenHasher struct {
	key []byte
}

func NewResetTokenHasher(secret string) *ResetTokenHasher {
	return &ResetTokenHasher{key: []byte(secret)}
}

func (h *ResetTokenHasher) Generate() (string, string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	plain := hex.EncodeToString(b)
	return plain, h.Hash(plain), nil
}

func (h *ResetTokenHasher) Hash(plain string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(plain))
	return hex.EncodeToString(mac.Sum(nil))
}
