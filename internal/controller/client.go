package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/procon"
)

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrTimeout        = errors.New("controller request timed out")
	ErrRequest        = errors.New("controller request failed")
)

// StatusError is returned for non-200 responses other than 401/403.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("controller %s returned status %d", e.Path, e.StatusCode)
}

const formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// maxBodySize bounds responses; GetState.csv is a few kilobytes.
const maxBodySize = 1 << 20

// Client is the HTTP transport of a single ProCon.IP controller.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	http     *http.Client
	timeout  time.Duration
	mu       sync.Mutex
}

func NewClient(baseURL, username, password string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing host", baseURL)
	}

	return &Client{
		baseURL:  base,
		username: username,
		password: password,
		http:     &http.Client{},
		timeout:  timeout,
	}, nil
}

// BaseURL returns the controller address without credentials.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// GetState fetches the raw GetState.csv feed.
func (c *Client) GetState(ctx context.Context) (string, error) {
	return c.do(ctx, http.MethodGet, &url.URL{Path: procon.PathGetState}, "")
}

// GetDMX fetches the raw GetDmx.csv feed.
func (c *Client) GetDMX(ctx context.Context) (string, error) {
	return c.do(ctx, http.MethodGet, &url.URL{Path: procon.PathGetDMX}, "")
}

// PostUsrCfg posts a form payload to usrcfg.cgi.
func (c *Client) PostUsrCfg(ctx context.Context, payload string) (string, error) {
	return c.do(ctx, http.MethodPost, &url.URL{Path: procon.PathUsrCfg}, payload)
}

// Command sends a query to Command.htm. The query is sent unescaped since
// the firmware expects literal commas.
func (c *Client) Command(ctx context.Context, query string) (string, error) {
	return c.do(ctx, http.MethodGet, &url.URL{Path: procon.PathCommand, RawQuery: query}, "")
}

func (c *Client) do(ctx context.Context, method string, rel *url.URL, body string) (string, error) {
	// Der Controller verarbeitet nur eine Anfrage gleichzeitig
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqURL := c.baseURL.ResolveReference(rel)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", formContentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w: %s %s", ErrTimeout, method, rel.Path)
		}
		return "", fmt.Errorf("%w: %s %s: %v", ErrRequest, method, rel.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w (status %d)", ErrBadCredentials, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", &StatusError{Path: rel.Path, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w: reading %s", ErrTimeout, rel.Path)
		}
		return "", fmt.Errorf("%w: reading %s: %v", ErrRequest, rel.Path, err)
	}
	return string(data), nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
