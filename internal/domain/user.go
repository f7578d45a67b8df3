package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	NameMinLen     = 4
	NameMaxLen     = 30
	PasswordMinLen = 8
)

// Avatar references an uploaded profile picture.
type Avatar struct {
	PublicID string
	URL      string
}

// DefaultAvatar is stored for every new account until an upload replaces it.
func DefaultAvatar() Avatar {
	return Avatar{PublicID: "sample_id", URL: "profile_pic_url"}
}

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Avatar       Avatar
	Role         Role

	// ResetTokenHash is the keyed hash of the emailed token, never the token itself.
	ResetTokenHash   string
	ResetTokenExpiry *time.Time

	// TokenVersion is bumped on every password change; sessions signed with an
	// older version are rejected.
	TokenVersion int

	CreatedAt time.Time
}

// ResetTokenValid reports whether hash matches a still unexpired reset token.
func (u *User) ResetTokenValid(hash string, now time.Time) bool {
	if u.ResetTokenHash == "" || u.ResetTokenExpiry == nil {
		return false
	}
	return u.ResetTokenHash == hash && u.ResetTokenExpiry.After(now)
}

// ProfilePatch carries the fields a caller may change; nil means unchanged.
type ProfilePatch struct {
	Name  *string
	Email *string
	Role  *Role
}

// CheckName validates an already trimmed display name.
func CheckName(name string) error {
	n := utf8.RuneCountInString(name)
	switch {
	case n < NameMinLen:
		return ErrInvalidField("name", fmt.Sprintf("must be at least %d characters", NameMinLen))
	case n > NameMaxLen:
		return ErrInvalidField("name", fmt.Sprintf("must be at most %d characters", NameMaxLen))
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
