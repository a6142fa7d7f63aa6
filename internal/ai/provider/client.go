package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// Options are the transport settings shared by every backend.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	// HTTPClient overrides the default client; used by tests.
	HTTPClient *http.Client
}

// Client posts JSON to an AI backend and maps failures to the sentinel
// errors in this package.
type Client struct {
	baseURL string
	headers http.Header
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Client for baseURL. Every request carries headers.
func NewClient(baseURL string, headers map[string]string, opts Options) *Client {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		if b := int(opts.RequestsPerSecond); b > burst {
			burst = b
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		headers: h,
		client:  hc,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// PostJSON sends in as the JSON body of a POST to path and decodes the
// response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot accommodate the next token.
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrInvalidResponse, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(snippet))

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case resp.StatusCode >= 500:
		sentinel = ErrProviderUnavailable
	default:
		sentinel = ErrRequestRejected
	}
	if msg == "" {
		return fmt.Errorf("%w: status %d", sentinel, resp.StatusCode)
	}
	return fmt.Errorf("%w: status %d: %s", sentinel, resp.StatusCode, msg)
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
