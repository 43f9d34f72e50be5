package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload: the standard registered claims plus a role.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue signs a token for subject with the given role. Used by tests and
// operator tooling; the storefront issues its own tokens with the same secret.
func (v *Verifier) Issue(subject string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Parse validates the Authorization header value and returns the identity.
func (v *Verifier) Parse(header string) (Identity, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return Anonymous, ErrMissingToken
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(strings.TrimPrefix(header, prefix), &claims,
		func(t *jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return Anonymous, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Anonymous, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	return Identity{Subject: claims.Subject, Role: claims.Role}, nil
}

// Middleware rejects requests without a valid token and stores the caller's
// identity in the request context. Role checks are left to the operations
// themselves so that a customer token reaches the authorization gate and is
// refused there.
func (v *Verifier) Middleware(onError func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Parse(r.Header.Get("Authorization"))
			if err != nil {
				onError(w, err)
				return
			}
			if id.Role == RoleSystem {
				// The system role is internal only.
				onError(w, fmt.Errorf("%w: reserved role", ErrInvalidToken))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
