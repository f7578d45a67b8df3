package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

type JWTSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTSigner(secret string, issuer string) *JWTSigner {
	return &JWTSigner{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

type sessionClaims struct {
	UserID  string `json:"uid"`
	Role    string `json:"role"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

// Sign issues an HS256 session token with a random jti used for revocation
// and the user's token version.
func (s *JWTSigner) Sign(userID string, role domain.Role, version int, ttl time.Duration) (string, auth.SessionClaims, error) {
	now := s.now()
	exp := now.Add(ttl)
	jti := uuid.NewString()

	claims := sessionClaims{
		UserID:  userID,
		Role:    string(role),
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", auth.SessionClaims{}, domain.ErrTokenSignFailed(err)
	}
	return signed, auth.SessionClaims{
		UserID:    userID,
		Role:      role,
		Version:   version,
		TokenID:   jti,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *JWTSigner) Verify(token string) (auth.SessionClaims, error) {
	if token == "" {
		return auth.SessionClaims{}, domain.ErrTokenMissing()
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		// prevent alg confusion
		if t.Method != jwt.SigningMethodHS256 {
			return nil, domain.ErrTokenInvalid()
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return auth.SessionClaims{}, domain.ErrTokenExpired()
		}
		return auth.SessionClaims{}, domain.ErrTokenInvalid()
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return auth.SessionClaims{}, domain.ErrTokenInvalid()
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	return auth.SessionClaims{
		UserID:    claims.UserID,
		Role:      domain.Role(claims.Role),
		Version:   claims.Version,
		TokenID:   claims.ID,
		ExpiresAt: exp,
	}, nil
}
