package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Version is the signature scheme identifier. Header elements are
// "v1=<lowercase hex>"; unknown versions are ignored on verification so the
// scheme can evolve without breaking existing consumers.
const Version = "v1"

const DefaultTolerance = 5 * time.Minute

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrBadSignature       = errors.New("signature mismatch")
	ErrStaleTimestamp     = errors.New("timestamp outside tolerance")
)

// Sign computes the hex-encoded HMAC-SHA256 of "<unix timestamp>.<body>".
func Sign(secret string, timestamp time.Time, body []byte) string {
	return hex.EncodeToString(sign(secret, timestamp, body))
}

func sign(secret string, timestamp time.Time, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Header builds the signature header value: one "v1=<hex>" element per
// secret, comma separated. Callers pass secrets newest first so consumers
// that only check the first element keep working during rotation.
func Header(secrets []string, timestamp time.Time, body []byte) string {
	elements := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		elements = append(elements, Version+"="+Sign(secret, timestamp, body))
	}
	return strings.Join(elements, ",")
}

// Timestamp renders the timestamp header value: whole unix seconds.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

type Verifier struct {
	tolerance time.Duration
	now       func() time.Time
}

type VerifierOption func(*Verifier)

func WithTolerance(tolerance time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.tolerance = tolerance
	}
}

// WithClock overrides the wall clock. Tests use this to pin "now".
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks a signature header against the body and secret.
//
// It returns ErrStaleTimestamp when the timestamp falls outside the tolerance
// window in either direction, ErrMalformedSignature when either header cannot
// be parsed, and ErrBadSignature when no element matches. Comparison is
// constant time per element.
func (v *Verifier) Verify(secret string, body []byte, signatureHeader, timestampHeader string) error {
	unix, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}

	timestamp := time.Unix(unix, 0)
	if diff := v.now().Sub(timestamp); diff > v.tolerance || -diff > v.tolerance {
		return ErrStaleTimestamp
	}

	candidates, err := parseHeader(signatureHeader)
	if err != nil {
		return err
	}

	expected := sign(secret, timestamp, body)
	for _, candidate := range candidates {
		if hmac.Equal(expected, candidate) {
			return nil
		}
	}
	return ErrBadSignature
}

// parseHeader extracts the decoded v1 signatures from a header value.
// Elements with an unknown version are skipped; a header with no valid v1
// element is malformed.
func parseHeader(header string) ([][]byte, error) {
	if header == "" {
		return nil, ErrMalformedSignature
	}
	var candidates [][]byte
	for _, element := range strings.Split(header, ",") {
		version, value, found := strings.Cut(element, "=")
		if !found {
			return nil, ErrMalformedSignature
		}
		if version != Version {
			continue
		}
		decoded, err := hex.DecodeString(value)
		if err != nil {
			return nil, ErrMalformedSignature
		}
		candidates = append(candidates, decoded)
	}
	if len(candidates) == 0 {
		return nil, ErrMalformedSignature
	}
	return candidates, nil
}
