package tool

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DelegationClaims asserts that parentSessionID authorized childSessionID
// to act on its behalf, per spec.md §4.7's Delegated/ParentSessionID
// provenance fields.
type DelegationClaims struct {
	ParentSessionID string `json:"parent_session_id"`
	ChildSessionID  string `json:"child_session_id"`
	jwt.RegisteredClaims
}

// DelegationSigner issues and validates DelegationClaims tokens with a
// shared HMAC secret, mirroring the claims/ValidateToken shape of a
// registered-claims JWT manager but over HS256 rather than RSA, since
// delegation tokens are minted and verified by the same process rather
// than exchanged between trust domains.
type DelegationSigner struct {
	secret []byte
	expiry time.Duration
}

// NewDelegationSigner builds a signer. An empty secret still produces
// syntactically valid tokens (useful for tests) but should never be used
// in a deployed server.
func NewDelegationSigner(secret []byte, expiry time.Duration) *DelegationSigner {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &DelegationSigner{secret: secret, expiry: expiry}
}

// Issue mints a signed delegation token for a parent->child handoff.
func (s *DelegationSigner) Issue(parentSessionID, childSessionID string) (string, error) {
	now := time.Now()
	claims := DelegationClaims{
		ParentSessionID: parentSessionID,
		ChildSessionID:  childSessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			Subject:   childSessionID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses tokenString and confirms it authorizes childSessionID to
// claim delegation from some parent.
func (s *DelegationSigner) Validate(tokenString, childSessionID string) (*DelegationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DelegationClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse delegation token: %w", err)
	}
	claims, ok := token.Claims.(*DelegationClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid delegation token")
	}
	if claims.ChildSessionID != childSessionID {
		return nil, fmt.Errorf("delegation token does not match session %q", childSessionID)
	}
	return claims, nil
}
