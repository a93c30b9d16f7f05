// Package token derives safe cache liveness from a token's claimed expiry.
//
// Nothing here verifies signatures: the client holds no verification key and
// treats the claimed expiry as a liveness hint only. The backend remains the
// authority on whether a credential is actually valid.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// minTTL is the floor for computed TTLs. A token about to expire still gets
// a short positive window so a fetched session is observable at least once.
const minTTL = time.Second

// Claims is the subset of registered claims the evaluator cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Evaluator computes cache TTLs from token expiry, a clock-skew buffer and
// a fallback for tokens whose expiry cannot be read. Both knobs are
// configuration, not constants: they are the sole liveness/correctness
// tuning points of the cache layer.
type Evaluator struct {
	DefaultTTL time.Duration // used when expiry is unknown
	Skew       time.Duration // safety margin against client/issuer clock drift

	now func() time.Time
}

func NewEvaluator(defaultTTL, skew time.Duration) Evaluator {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if skew < 0 {
		skew = 0
	}
	return Evaluator{DefaultTTL: defaultTTL, Skew: skew, now: time.Now}
}

// NewEvaluatorWithClock is for tests that need a controlled clock.
func NewEvaluatorWithClock(defaultTTL, skew time.Duration, now func() time.Time) Evaluator {
	e := NewEvaluator(defaultTTL, skew)
	if now != nil {
		e.now = now
	}
	return e
}

// Decode extracts claims without verifying the signature. Malformed input
// or a missing exp claim reports ok=false, never an error or panic; callers
// must treat that as "expiry unknown, use the default TTL".
func (e Evaluator) Decode(raw string) (Claims, bool) {
	if raw == "" {
		return Claims{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Claims{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, false
	}
	sub, _ := claims.GetSubject()
	return Claims{Subject: sub, ExpiresAt: exp.Time}, true
}

// Expired reports whether a token with the given expiry should already be
// treated as dead: now + skew >= expiresAt.
func (e Evaluator) Expired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !e.now().Add(e.Skew).Before(expiresAt)
}

// TTLFor returns how long a session holding raw may be cached:
// max(expiry - now - skew, 1s), or DefaultTTL when expiry is unknown.
// The result never claims validity past the token's true expiry.
func (e Evaluator) TTLFor(raw string) time.Duration {
	c, ok := e.Decode(raw)
	if !ok {
		return e.DefaultTTL
	}
	ttl := c.ExpiresAt.Sub(e.now()) - e.Skew
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}
