// Package license implements the offline activation key scheme: a keyed
// hash signs {device ID, expiry code, plan} into a compact 16-character key
// that the client can verify without a server round trip.
//
// The scheme is deliberately symmetric: the signing secret ships inside the
// verifying client, so anyone who extracts it can mint valid keys for any
// device. That is an accepted limitation of the design, documented here
// rather than hardened. [Verifier] isolates the scheme so a server-validated
// replacement can be dropped in without touching callers.
package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signingSecret is the shared secret compiled into both the key generator
// and the verifying client. Changing it invalidates every issued key.
const signingSecret = "GLASSWING_PREMIUM_LICENSE_SECRET_KEY_V1"

// sigLength is the number of hex digest characters kept as the signature.
// 11 chars leave room for the 4-char expiry code and 1-char plan inside a
// 16-character key.
const sigLength = 11

// Sign computes the truncated keyed-hash signature over deviceID, expiry
// code and plan. The digest is HMAC-SHA-256 of the plain concatenation,
// uppercase hex, cut to the first 11 characters.
func Sign(deviceID, expiryCode string, plan Plan) string {
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(deviceID + expiryCode + string(plan)))
	digest := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
	return digest[:sigLength]
}
