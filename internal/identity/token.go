package identity

import (
	"fmt"
	"time"

	"github.com/fjod/petmarket/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 account tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

func (t *Tokens) Issue(accountID string, role Role, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies the token and returns the account it names.
func (t *Tokens) Parse(raw string) (Account, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %w", apperr.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return Account{}, fmt.Errorf("%w: token has no subject", apperr.ErrUnauthorized)
	}
	role := claims.Role
	if role == "" {
		role = RoleCustomer
	}
	if !role.Valid() {
		return Account{}, fmt.Errorf("%w: unknown role %q", apperr.ErrUnauthorized, role)
	}
	return Account{ID: claims.Subject, Role: role}, nil
}
