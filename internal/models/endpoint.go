package models

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net"
	"net/url"
	"time"
)

const (
	// SecretPrefix marks server-generated signing secrets.
	SecretPrefix = "whsec_"

	secretByteLength = 32
)

var (
	ErrInvalidEventTypes       = errors.New("validation failed: invalid event types")
	ErrInvalidEventTypesFormat = errors.New("validation failed: invalid event types format")
	ErrInvalidEndpointURL      = errors.New("validation failed: invalid endpoint url")
	ErrInsecureEndpointURL     = errors.New("validation failed: endpoint url must use https")
	ErrInvalidRetryConfig      = errors.New("validation failed: invalid retry config")
)

type Endpoint struct {
	ID             string       `json:"id" redis:"id"`
	URL            string       `json:"url" redis:"url"`
	Secret         string       `json:"secret,omitempty" redis:"secret"`
	PreviousSecret string       `json:"-" redis:"previous_secret"`
	EventTypes     EventTypes   `json:"events" redis:"-"`
	Headers        Headers      `json:"headers,omitempty" redis:"-"`
	RetryConfig    *RetryConfig `json:"retry_config,omitempty" redis:"-"`
	Active         bool         `json:"active" redis:"active"`
	CreatedAt      time.Time    `json:"created_at" redis:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" redis:"updated_at"`
	RotatedAt      *time.Time   `json:"rotated_at,omitempty" redis:"rotated_at"`
}

// NewSecret generates a signing secret: the "whsec_" prefix followed by
// 32 random bytes, base64-encoded.
func NewSecret() (string, error) {
	key := make([]byte, secretByteLength)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return SecretPrefix + base64.StdEncoding.EncodeToString(key), nil
}

// Matches reports whether the endpoint should receive events of the given type.
// Inactive endpoints never match.
func (e *Endpoint) Matches(eventType string) bool {
	return e.Active && e.EventTypes.Matches(eventType)
}

// RotateSecret replaces the signing secret and retains the previous one so
// consumers can verify in-flight deliveries during the rotation window.
func (e *Endpoint) RotateSecret(now time.Time) error {
	secret, err := NewSecret()
	if err != nil {
		return err
	}
	e.PreviousSecret = e.Secret
	e.Secret = secret
	rotatedAt := now
	e.RotatedAt = &rotatedAt
	return nil
}

// SigningSecrets returns the secrets to sign with, newest first. The previous
// secret is included while the rotation window is still open.
func (e *Endpoint) SigningSecrets(now time.Time, rotationWindow time.Duration) []string {
	secrets := []string{e.Secret}
	if e.PreviousSecret != "" && e.RotatedAt != nil && now.Sub(*e.RotatedAt) < rotationWindow {
		secrets = append(secrets, e.PreviousSecret)
	}
	return secrets
}

// Validate checks the endpoint's URL and event type subscription. knownTypes
// is the configured event type registry; an empty registry accepts any type.
func (e *Endpoint) Validate(knownTypes []string, allowInsecureURL bool) error {
	if err := validateEndpointURL(e.URL, allowInsecureURL); err != nil {
		return err
	}
	if err := e.EventTypes.Validate(knownTypes); err != nil {
		return err
	}
	if e.RetryConfig != nil {
		if err := e.RetryConfig.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateEndpointURL(rawURL string, allowInsecure bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ErrInvalidEndpointURL
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if allowInsecure || isLoopbackHost(parsed.Hostname()) {
			return nil
		}
		return ErrInsecureEndpointURL
	default:
		return ErrInvalidEndpointURL
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func (e *Endpoint) Clone() *Endpoint {
	clone := *e
	clone.EventTypes = append(EventTypes(nil), e.EventTypes...)
	if e.Headers != nil {
		clone.Headers = make(Headers, len(e.Headers))
		for k, v := range e.Headers {
			clone.Headers[k] = v
		}
	}
	if e.RetryConfig != nil {
		retryConfig := *e.RetryConfig
		clone.RetryConfig = &retryConfig
	}
	if e.RotatedAt != nil {
		rotatedAt := *e.RotatedAt
		clone.RotatedAt = &rotatedAt
	}
	return &clone
}
