package historian

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/feederpull/internal/infrastructure/config"
)

// maxResponseSize caps how much of a response body is read. A year of
// hourly samples is well under 1 MiB, so hitting this means something is wrong.
const maxResponseSize = 64 << 20

// Client fetches summarised series from a PI Web API server.
//
// Every request uses the same summary window. The client holds no
// connection state beyond the underlying http.Client, so it is safe for
// concurrent use, though the runner calls it from one goroutine.
type Client struct {
	baseURL    string
	username   string
	password   string
	window     config.WindowConfig
	httpClient *http.Client
}

// New creates a historian client.
//
// Parameters:
//   - cfg: Historian connection settings from config.yaml
//   - window: Summary window requested for every tag
//
// Returns:
//   - *Client: Client ready to fetch summaries
//   - error: If the base URL is missing or invalid
func New(cfg config.HistorianConfig, window config.WindowConfig) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("historian: invalid base url %q", cfg.BaseURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		// PI Web API servers commonly present certificates from an internal CA.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via historian.insecure_skip_verify
	}

	return &Client{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		window:   window,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
		},
	}, nil
}

// summaryURL builds the summary request URL for one stream.
func (c *Client) summaryURL(webID string) string {
	params := url.Values{}
	params.Set("startTime", c.window.Start)
	params.Set("endTime", c.window.End)
	params.Set("summaryType", c.window.SummaryType)
	params.Set("summaryDuration", c.window.SummaryDuration)
	params.Set("interval", c.window.Interval)

	return c.baseURL + "/streams/" + url.PathEscape(webID) + "/summary?" + params.Encode()
}

// HealthCheck requests the API root with the configured credentials. Any
// 200 response counts as healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.get(ctx, c.baseURL+"/")
	return err
}

// get issues an authenticated GET and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}
	if len(body) > maxResponseSize {
		return nil, ErrResponseTooLarge
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Header.Get("Content-Type"), body),
		}
	}
	return body, nil
}
