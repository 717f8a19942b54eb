// file: internal/session/verifier.go
package session

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the session token claims the store cross-checks.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks session tokens issued by the auth service. Only session
// tokens are ever passed here; pre-auth tokens stay opaque.
type Verifier struct {
	method jwt.SigningMethod
	key    any
}

// NewVerifier builds a verifier for alg ("HS256" or "RS256"). For HS256 key is
// the shared secret; for RS256 it is a PEM encoded public key.
func NewVerifier(alg, key string) (*Verifier, error) {
	if key == "" {
		return nil, errors.New("session verify key is empty")
	}
	switch alg {
	case "", "HS256":
		return &Verifier{method: jwt.SigningMethodHS256, key: []byte(key)}, nil
	case "RS256":
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(key))
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse RS256 public key")
		}
		return &Verifier{method: jwt.SigningMethodRS256, key: pub}, nil
	default:
		return nil, errors.Newf("unsupported verify algorithm %q", alg)
	}
}

// Verify checks the signature and standard time claims of token and returns
// its role and expiry. A zero expiry means the token has none.
func (v *Verifier) Verify(token string) (Role, time.Time, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{v.method.Alg()}))
	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "session token verification failed")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", time.Time{}, jwt.ErrTokenInvalidClaims
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return "", time.Time{}, errors.Newf("session token carries unknown role %q", claims.Role)
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return role, exp, nil
}
