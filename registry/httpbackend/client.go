// Package httpbackend exposes a registry backend over HTTP and provides the
// matching client.
//
// Routes:
//
//	PUT /dids/{did}  body {"owner": "...", "record": ResolutionRecord}
//	GET /dids/{did}  -> ResolutionRecord
package httpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pilacorp/go-trackback-agent/registry"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultMaxRetries    = 2
	defaultRetryInterval = 200 * time.Millisecond
)

type putRequest struct {
	Owner  string                     `json:"owner"`
	Record *registry.ResolutionRecord `json:"record"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client is a registry.Backend talking to a remote registry server.
type Client struct {
	baseURL       string
	client        *http.Client
	maxRetries    uint64
	retryInterval time.Duration
}

// ClientOpt configures a Client.
type ClientOpt func(*Client)

// WithHTTPClient replaces the traced default HTTP client.
func WithHTTPClient(c *http.Client) ClientOpt {
	return func(cl *Client) {
		cl.client = c
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n uint64) ClientOpt {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// WithRetryInterval sets the first backoff interval.
func WithRetryInterval(d time.Duration) ClientOpt {
	return func(cl *Client) {
		cl.retryInterval = d
	}
}

// NewClient creates a client for the registry served at baseURL.
func NewClient(baseURL string, opts ...ClientOpt) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries:    defaultMaxRetries,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Put implements registry.Backend.
func (c *Client) Put(ctx context.Context, owner string, rec *registry.ResolutionRecord) error {
	if rec == nil || rec.DIDDocument == nil {
		return fmt.Errorf("record has no DID document")
	}

	body, err := json.Marshal(putRequest{Owner: owner, Record: rec})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = c.do(ctx, http.MethodPut, rec.DIDDocument.ID, body)
	return err
}

// Get implements registry.Backend.
func (c *Client) Get(ctx context.Context, id string) (*registry.ResolutionRecord, error) {
	body, err := c.do(ctx, http.MethodGet, id, nil)
	if err != nil {
		return nil, err
	}

	var rec registry.ResolutionRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolution record: %w", err)
	}

	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, id string, body []byte) ([]byte, error) {
	endpoint := c.baseURL + "/dids/" + url.PathEscape(id)

	var out []byte
	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to make HTTP request to DID registry: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body from DID registry: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			out = respBody
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", registry.ErrNotFound, id))
		case resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: %s", registry.ErrUnauthorized, remoteMessage(respBody, resp.Status)))
		case resp.StatusCode >= 500:
			return fmt.Errorf("DID registry returned %s: %s", resp.Status, remoteMessage(respBody, resp.Status))
		default:
			return backoff.Permanent(fmt.Errorf("%w: DID registry returned %s: %s", registry.ErrRegistry, resp.Status, remoteMessage(respBody, resp.Status)))
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		return nil, err
	}

	return out, nil
}

func remoteMessage(body []byte, fallback string) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return fallback
}
