package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

// maxPasswordBytes is the most input bcrypt reads.
const maxPasswordBytes = 72

// ErrWrongPassword is returned by Compare when the password does not match.
var ErrWrongPassword = errors.New("password does not match hash")

// BcryptHasher stores user passwords. Costs outside bcrypt's range fall back
// to bcrypt.DefaultCost.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Cost() int { return h.cost }

// Hash rejects passwords bcrypt would silently truncate, so two passwords
// sharing a 72-byte prefix never share a hash.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", domain.ErrInvalidField("password", fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", domain.ErrHashFailed(err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Compare(hash string, password string) error {
	if len(password) > maxPasswordBytes {
		return ErrWrongPassword
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrWrongPassword
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}
