// Package verify checks inbound webhook signatures for common provider
// schemes. Every check returns a plain bool: unparseable input is simply a
// failed verification, never an error.
package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/wayposthq/waypost/internal/signature"
)

const DefaultTolerance = 5 * time.Minute

type options struct {
	tolerance time.Duration
	now       func() time.Time
}

type Option func(*options)

func WithTolerance(tolerance time.Duration) Option {
	return func(o *options) {
		o.tolerance = tolerance
	}
}

// WithClock overrides the wall clock. Tests use this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) fresh(unix int64) bool {
	timestamp := time.Unix(unix, 0)
	diff := o.now().Sub(timestamp)
	return diff <= o.tolerance && -diff <= o.tolerance
}

// Native verifies our own outbound scheme: "v1=<hex>" elements over
// "<timestamp>.<body>", timestamp carried in its own header.
func Native(secret string, body []byte, signatureHeader, timestampHeader string, opts ...Option) bool {
	o := newOptions(opts)
	verifier := signature.NewVerifier(
		signature.WithTolerance(o.tolerance),
		signature.WithClock(o.now),
	)
	return verifier.Verify(secret, body, signatureHeader, timestampHeader) == nil
}

// Stripe verifies a Stripe-style header: comma-separated "k=v" elements with
// a "t" timestamp and one or more "v1" signatures, HMAC-SHA256 hex over
// "<t>.<body>".
func Stripe(secret string, body []byte, header string, opts ...Option) bool {
	o := newOptions(opts)

	var timestamp string
	var candidates [][]byte
	for _, element := range strings.Split(header, ",") {
		key, value, found := strings.Cut(element, "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			if decoded, err := hex.DecodeString(value); err == nil {
				candidates = append(candidates, decoded)
			}
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || !o.fresh(unix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		if hmac.Equal(expected, candidate) {
			return true
		}
	}
	return false
}

// GitHub verifies a GitHub-style header: "sha256=<hex>" over the body alone.
// The scheme carries no timestamp, so there is no freshness check.
func GitHub(secret string, body []byte, header string) bool {
	value, found := strings.CutPrefix(header, "sha256=")
	if !found {
		return false
	}
	candidate, err := hex.DecodeString(value)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), candidate)
}

// Slack verifies a Slack-style signature: "v0=<hex>" over "v0:<ts>:<body>"
// with the timestamp in its own header.
func Slack(secret string, body []byte, timestampHeader, signatureHeader string, opts ...Option) bool {
	o := newOptions(opts)

	unix, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil || !o.fresh(unix) {
		return false
	}

	value, found := strings.CutPrefix(signatureHeader, "v0=")
	if !found {
		return false
	}
	candidate, err := hex.DecodeString(value)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:"))
	mac.Write([]byte(timestampHeader))
	mac.Write([]byte(":"))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), candidate)
}

// StandardWebhooks verifies a Standard Webhooks signature: space-separated
// "v1,<base64>" elements over "<msgID>.<ts>.<body>", keyed with the base64
// payload of a "whsec_" secret.
func StandardWebhooks(secret string, body []byte, msgID, timestampHeader, signatureHeader string, opts ...Option) bool {
	o := newOptions(opts)

	unix, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil || !o.fresh(unix) {
		return false
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestampHeader))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := []byte(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	for _, element := range strings.Split(signatureHeader, " ") {
		version, value, found := strings.Cut(element, ",")
		if !found || version != "v1" {
			continue
		}
		if hmac.Equal(expected, []byte(value)) {
			return true
		}
	}
	return false
}
