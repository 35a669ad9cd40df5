package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer     = "webdiary-system"
	tokenAudience   = "webdiary-users"
	defaultTokenTTL = 24 * time.Hour
)

// Claims is the payload carried by a session token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Codec mints and verifies HS256-signed session tokens. It is a pure
// function of its secret and the clock, safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint issues a signed token for the user and returns it together with
// its lifetime in seconds.
func (c *Codec) Mint(userID int64, username string, role Role) (string, int64, error) {
	now := c.now().UTC()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}

	return signed, int64(c.ttl.Seconds()), nil
}

// Verify checks the token signature, expiry and required claims. Every
// failure wraps ErrInvalidToken so callers present a uniform rejection;
// the wrapped message names the actual reason for logging.
func (c *Codec) Verify(tokenStr string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %s", ErrInvalidToken, rejectReason(err))
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}
	if claims.UserID <= 0 || claims.Username == "" || claims.Role == "" {
		return Claims{}, fmt.Errorf("%w: missing fields", ErrInvalidToken)
	}

	return claims, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	default:
		return "bad encoding"
	}
}
