package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	xhttp "MarketState/pkg/http"
)

var ErrNotConfigured = errors.New("analytics: http client not configured")

// HTTPServiceBase posts JSON to an external analytics service rooted at
// baseURL.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	backoff time.Duration
}

// NewHTTPServiceBase builds a client with the given timeout; zero means 3s.
func NewHTTPServiceBase(baseURL string, timeout time.Duration, opts ...xhttp.ClientOption) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(opts...),
		backoff: 50 * time.Millisecond,
	}
}

// Enabled reports whether a base URL is configured.
func (b *HTTPServiceBase) Enabled() bool {
	return b != nil && b.baseURL != ""
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if !b.Enabled() {
		return ErrNotConfigured
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    b.baseURL + path,
		Body:   payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transient failures up to retries more times with
// linear backoff. Client errors are returned at once.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, retries int) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil || attempt >= retries || !xhttp.IsTemporary(err) || errors.Is(err, ErrNotConfigured) {
			return err
		}
		select {
		case <-time.After(time.Duration(attempt+1) * b.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
