package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// AdminClient calls the Supabase auth admin API with the service-role key.
type AdminClient struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	backoff    func() retry.Backoff
}

type Option func(*AdminClient)

func WithHTTPClient(c *http.Client) Option {
	return func(a *AdminClient) {
		a.httpClient = c
	}
}

// WithBackoff replaces the retry policy used for transient failures. b is
// called once per request.
func WithBackoff(b func() retry.Backoff) Option {
	return func(a *AdminClient) {
		a.backoff = b
	}
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
}

func NewAdminClient(baseURL, serviceKey string, opts ...Option) *AdminClient {
	a := &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Configured returns true if both the project URL and service key are set.
func (a *AdminClient) Configured() bool {
	return a.baseURL != "" && a.serviceKey != ""
}

// DeleteUser removes an auth user. A user that no longer exists is treated as
// deleted. 5xx responses and network errors are retried.
func (a *AdminClient) DeleteUser(ctx context.Context, userID string) error {
	if !a.Configured() {
		return fmt.Errorf("supabase admin client not configured")
	}
	endpoint := a.baseURL + "/auth/v1/admin/users/" + url.PathEscape(userID)

	return retry.Do(ctx, a.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("apikey", a.serviceKey)
		req.Header.Set("Authorization", "Bearer "+a.serviceKey)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("delete auth user: %w", err))
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode < 300, resp.StatusCode == http.StatusNotFound:
			return nil
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("supabase admin API error: status %d", resp.StatusCode))
		default:
			return fmt.Errorf("supabase admin API error: status %d", resp.StatusCode)
		}
	})
}
