package participant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Options configures one participant client. Timeout bounds every call and
// must be positive.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

const maxErrorBody = 4 << 10

type client struct {
	name       string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func newClient(name string, opts Options) (client, error) {
	if opts.BaseURL == "" {
		return client{}, fmt.Errorf("%s client: base url is required", name)
	}
	if opts.Timeout <= 0 {
		return client{}, fmt.Errorf("%s client: timeout must be positive", name)
	}
	return client{
		name:    name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
	}, nil
}

// do performs one call and maps the result onto the participant error kinds.
// out may be nil, a *string (raw body) or any JSON target.
func (c client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w: %w", c.name, ErrUnexpected, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w: %w", c.name, ErrUnexpected, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s %s: %w: %w", c.name, method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if kind := statusKind(resp.StatusCode); kind != nil {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s %s: %w: status %d %s", c.name, method, path, kind, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	switch dst := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *string:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read body: %w: %w", c.name, ErrUnavailable, err)
		}
		*dst = string(b)
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			if errors.Is(err, io.EOF) {
				// an empty 200 is how the upstream services report "no such entity"
				return fmt.Errorf("%s %s %s: %w: empty body", c.name, method, path, ErrNotFound)
			}
			return fmt.Errorf("%s: decode response: %w: %w", c.name, ErrUnexpected, err)
		}
		return nil
	}
}

func statusKind(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return ErrUnavailable
	case code >= 400:
		return ErrRejected
	default:
		return ErrUnexpected
	}
}
