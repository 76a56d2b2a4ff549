package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Header names set on every signed callback.
const (
	HeaderSignature = "X-Wave-Signature"
	HeaderTimestamp = "X-Wave-Timestamp"
	HeaderEvent     = "X-Wave-Event"
)

// Sign returns lowercase hex HMAC-SHA256 over "<unix ts>.<body>".
func Sign(secret string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign and rejects timestamps older
// than maxAge relative to now.
func Verify(secret string, tsHeader string, body []byte, provided string, now time.Time, maxAge time.Duration) bool {
	sec, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	ts := time.Unix(sec, 0)
	if maxAge > 0 && now.Sub(ts) > maxAge {
		return false
	}
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, ts, body))
	return hmac.Equal(want, got)
}

func formatUnix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }
