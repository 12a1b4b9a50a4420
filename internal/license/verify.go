package license

import (
	"crypto/subtle"
	"time"
)

// Verifier checks a presented license key against a device identifier.
// Verification failure is an expected outcome, not an error: implementations
// report it through the boolean, never by panicking or returning an error
// value, and the caller decides presentation.
type Verifier interface {
	// Verify reports whether key is valid for deviceID right now. On
	// success the decoded key is returned for plan inspection.
	Verify(deviceID, key string) (Key, bool)
}

// KeyVerifier is the offline [Verifier] backed by the compiled-in signing
// secret. The zero value is not usable; construct with [NewKeyVerifier].
type KeyVerifier struct {
	// now is swapped out in tests for deterministic expiry checks.
	now func() time.Time
}

// Compile-time interface assertion.
var _ Verifier = (*KeyVerifier)(nil)

// NewKeyVerifier returns a KeyVerifier using the wall clock.
func NewKeyVerifier() *KeyVerifier {
	return &KeyVerifier{now: time.Now}
}

// Verify implements [Verifier]. It recomputes the expected signature from
// the locally known deviceID and the expiry/plan fields extracted from the
// presented key, then checks expiry for non-lifetime keys.
func (v *KeyVerifier) Verify(deviceID, key string) (Key, bool) {
	k, ok := Parse(key)
	if !ok {
		return Key{}, false
	}

	expected := Sign(deviceID, k.ExpiryCode, k.Plan)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(k.Signature)) != 1 {
		return Key{}, false
	}

	if !k.Lifetime() {
		expiresAt, ok := k.ExpiresAt()
		if !ok {
			return Key{}, false
		}
		if v.now().After(expiresAt) {
			return Key{}, false
		}
	}

	return k, true
}
