package license

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Plan selects the usage tier encoded in a key.
type Plan string

const (
	// PlanUnlimited places no cap on responses.
	PlanUnlimited Plan = "U"

	// PlanLimited caps the number of responses (quota enforced by the
	// session layer, not by the key itself).
	PlanLimited Plan = "L"
)

// IsValid reports whether p is a recognised plan code.
func (p Plan) IsValid() bool {
	return p == PlanUnlimited || p == PlanLimited
}

// LifetimeCode is the expiry sentinel meaning the key never expires.
const LifetimeCode = "FFFF"

const (
	expiryLength = 4
	keyLength    = expiryLength + 1 + sigLength // 16
	groupSize    = 4
)

// Epoch is the fixed reference instant expiry codes count days from.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Key is the decoded form of a license key string.
type Key struct {
	// ExpiryCode is the 4-hex-char expiry field, [LifetimeCode] for keys
	// that never expire.
	ExpiryCode string

	// Plan is the usage tier character.
	Plan Plan

	// Signature is the 11-char truncated keyed-hash signature.
	Signature string
}

// Lifetime reports whether the key carries the never-expires sentinel.
func (k Key) Lifetime() bool { return k.ExpiryCode == LifetimeCode }

// ExpiresAt returns the expiration instant encoded in the key. The second
// return is false for lifetime keys and for undecodable expiry fields.
func (k Key) ExpiresAt() (time.Time, bool) {
	if k.Lifetime() {
		return time.Time{}, false
	}
	days, err := strconv.ParseInt(k.ExpiryCode, 16, 32)
	if err != nil {
		return time.Time{}, false
	}
	return Epoch.Add(time.Duration(days) * 24 * time.Hour), true
}

// String returns the canonical dash-grouped display form.
func (k Key) String() string {
	return Format(k.ExpiryCode + string(k.Plan) + k.Signature)
}

// Generate mints a key for deviceID. durationDays is the validity period
// from now; pass a negative value for a lifetime key.
func Generate(deviceID string, durationDays int, plan Plan, now time.Time) (Key, error) {
	if deviceID == "" {
		return Key{}, fmt.Errorf("license: device ID must not be empty")
	}
	if !plan.IsValid() {
		return Key{}, fmt.Errorf("license: invalid plan %q", plan)
	}

	expiryCode := LifetimeCode
	if durationDays >= 0 {
		expiration := now.Add(time.Duration(durationDays) * 24 * time.Hour)
		days := int64(math.Ceil(expiration.Sub(Epoch).Hours() / 24))
		if days < 0 {
			return Key{}, fmt.Errorf("license: expiration predates the epoch")
		}
		if days >= 0xFFFF {
			return Key{}, fmt.Errorf("license: expiration %d days past epoch overflows the expiry field", days)
		}
		expiryCode = fmt.Sprintf("%04X", days)
	}

	return Key{
		ExpiryCode: expiryCode,
		Plan:       plan,
		Signature:  Sign(deviceID, expiryCode, plan),
	}, nil
}

// Parse canonicalises and splits a presented key string. Dashes and
// surrounding whitespace are stripped and the key is uppercased, so input
// is case-insensitive. It performs no signature or expiry checking; use
// [Verifier.Verify] for that.
func Parse(raw string) (Key, bool) {
	cleaned := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", ""))
	if len(cleaned) != keyLength {
		return Key{}, false
	}
	return Key{
		ExpiryCode: cleaned[:expiryLength],
		Plan:       Plan(cleaned[expiryLength : expiryLength+1]),
		Signature:  cleaned[expiryLength+1:],
	}, true
}

// Format groups a raw 16-character key into dash-separated blocks of four
// (XXXX-XXXX-XXXX-XXXX). Input shorter than one group is returned as is.
func Format(raw string) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i += groupSize {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := min(i+groupSize, len(raw))
		sb.WriteString(raw[i:end])
	}
	return sb.String()
}
