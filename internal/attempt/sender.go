package attempt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wayposthq/waypost/internal/models"
	"github.com/wayposthq/waypost/internal/signature"
)

const (
	DefaultTimeout          = 30 * time.Second
	DefaultUserAgent        = "Webhook-Service/1.0"
	DefaultSignatureHeader  = "x-webhook-signature"
	DefaultTimestampHeader  = "x-webhook-timestamp"
	DefaultDeliveryIDHeader = "x-webhook-delivery-id"
	DefaultMaxResponseBytes = 4096
)

// Sender executes one HTTP delivery attempt: it signs the body, builds the
// request, posts it, and classifies the outcome.
type Sender struct {
	client           *http.Client
	timeout          time.Duration
	followRedirects  bool
	userAgent        string
	signatureHeader  string
	timestampHeader  string
	deliveryIDHeader string
	maxResponseBytes int
	now              func() time.Time

	reserved map[string]struct{}
}

type SenderOption func(*Sender)

func WithTimeout(timeout time.Duration) SenderOption {
	return func(s *Sender) {
		s.timeout = timeout
	}
}

func WithUserAgent(userAgent string) SenderOption {
	return func(s *Sender) {
		s.userAgent = userAgent
	}
}

func WithSignatureHeader(header string) SenderOption {
	return func(s *Sender) {
		s.signatureHeader = header
	}
}

func WithTimestampHeader(header string) SenderOption {
	return func(s *Sender) {
		s.timestampHeader = header
	}
}

func WithDeliveryIDHeader(header string) SenderOption {
	return func(s *Sender) {
		s.deliveryIDHeader = header
	}
}

// WithFollowRedirects lets the client chase redirects. Off by default: a 3xx
// is treated as a failed attempt rather than silently posting elsewhere.
func WithFollowRedirects(follow bool) SenderOption {
	return func(s *Sender) {
		s.followRedirects = follow
	}
}

func WithMaxResponseBytes(n int) SenderOption {
	return func(s *Sender) {
		s.maxResponseBytes = n
	}
}

// WithHTTPClient replaces the client entirely; timeout and redirect options
// are ignored. Intended for tests.
func WithHTTPClient(client *http.Client) SenderOption {
	return func(s *Sender) {
		s.client = client
	}
}

func WithClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		s.now = now
	}
}

func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		timeout:          DefaultTimeout,
		userAgent:        DefaultUserAgent,
		signatureHeader:  DefaultSignatureHeader,
		timestampHeader:  DefaultTimestampHeader,
		deliveryIDHeader: DefaultDeliveryIDHeader,
		maxResponseBytes: DefaultMaxResponseBytes,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
		if !s.followRedirects {
			s.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			}
		}
	}
	s.reserved = make(map[string]struct{})
	for _, header := range []string{"Content-Type", "User-Agent", s.signatureHeader, s.timestampHeader, s.deliveryIDHeader} {
		s.reserved[http.CanonicalHeaderKey(header)] = struct{}{}
	}
	return s
}

// Send posts body to the endpoint signed with secrets. The response snapshot
// is non-nil whenever the receiver replied, success or not. A nil error means
// the attempt was delivered (2xx).
func (s *Sender) Send(ctx context.Context, endpoint *models.Endpoint, deliveryID string, body []byte, secrets []string) (*models.DeliveryResponse, time.Duration, error) {
	req, err := s.buildRequest(ctx, endpoint, deliveryID, body, secrets)
	if err != nil {
		return nil, 0, NewPreAttemptError(models.ErrorCodeRequestFailed, err)
	}

	start := s.now()
	resp, err := s.client.Do(req)
	duration := s.now().Sub(start)
	if err != nil {
		code := ClassifyNetworkError(err)
		errorCode := models.ErrorCodeRequestFailed
		if code == "timeout" {
			errorCode = models.ErrorCodeTimeout
		}
		return nil, duration, NewAttemptError(errorCode, true, 0,
			fmt.Errorf("request failed (%s): %w", code, err))
	}
	defer resp.Body.Close()

	response := s.snapshotResponse(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return response, duration, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return response, duration, NewAttemptError(models.ErrorCodeUnexpectedRedirect, false, resp.StatusCode,
			fmt.Errorf("unexpected redirect: status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return response, duration, NewAttemptError(models.ErrorCodeHTTPStatus, true, resp.StatusCode,
			fmt.Errorf("request failed with status %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return response, duration, NewAttemptError(models.ErrorCodeHTTPStatus, false, resp.StatusCode,
			fmt.Errorf("request failed with status %d", resp.StatusCode))
	default:
		return response, duration, NewAttemptError(models.ErrorCodeHTTPStatus, true, resp.StatusCode,
			fmt.Errorf("request failed with status %d", resp.StatusCode))
	}
}

func (s *Sender) buildRequest(ctx context.Context, endpoint *models.Endpoint, deliveryID string, body []byte, secrets []string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	timestamp := s.now()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(s.signatureHeader, signature.Header(secrets, timestamp, body))
	req.Header.Set(s.timestampHeader, signature.Timestamp(timestamp))
	req.Header.Set(s.deliveryIDHeader, deliveryID)

	for key, value := range endpoint.Headers {
		if _, ok := s.reserved[http.CanonicalHeaderKey(key)]; ok {
			continue
		}
		req.Header.Set(key, value)
	}

	return req, nil
}

// snapshotResponse captures status, headers, and a bounded UTF-8 prefix of
// the body.
func (s *Sender) snapshotResponse(resp *http.Response) *models.DeliveryResponse {
	limited := io.LimitReader(resp.Body, int64(s.maxResponseBytes)+1)
	bodyBytes, _ := io.ReadAll(limited)
	if len(bodyBytes) > s.maxResponseBytes {
		bodyBytes = bodyBytes[:s.maxResponseBytes]
	}
	bodyBytes = trimPartialRune(bodyBytes)

	headers := make(models.Headers, len(resp.Header))
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	return &models.DeliveryResponse{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
		Headers:    headers,
	}
}

// trimPartialRune drops a trailing UTF-8 sequence cut mid-rune by the byte
// cap. At most UTFMax-1 bytes go; bodies that were never valid UTF-8 pass
// through mostly untouched.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

// ClassifyNetworkError returns a descriptive error code based on the error type.
//
// Error codes and their meanings:
//   - dns_error:          Domain doesn't exist or DNS lookup failed
//   - connection_refused: Server not running or rejecting connections
//   - connection_reset:   Connection was dropped by the server
//   - network_unreachable: Network path to destination is unavailable
//   - timeout:            Request took too long (I/O timeout or context deadline)
//   - tls_error:          TLS/SSL certificate or handshake failure
//   - redirect_error:     Too many redirects
//   - network_error:      Other network-related failures (catch-all)
func ClassifyNetworkError(err error) string {
	if err == nil {
		return "unknown"
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "no such host"):
		return "dns_error"
	case strings.Contains(errStr, "connection refused"):
		return "connection_refused"
	case strings.Contains(errStr, "connection reset"):
		return "connection_reset"
	case strings.Contains(errStr, "network is unreachable"):
		return "network_unreachable"
	case strings.Contains(errStr, "i/o timeout"):
		return "timeout"
	case strings.Contains(errStr, "context deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "Client.Timeout exceeded"):
		return "timeout"
	case strings.Contains(errStr, "tls:") || strings.Contains(errStr, "x509:"):
		return "tls_error"
	case strings.Contains(errStr, "too many redirects") || strings.Contains(errStr, "stopped after"):
		return "redirect_error"
	default:
		return "network_error"
	}
}
