// Package coordinator talks to the coordinating registry and to peer
// member nodes over HTTP.
package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v5"

	"mn-go/internal/fault"
	"mn-go/internal/mn"
)

// SubjectHeader carries the subject this node acts as.
const SubjectHeader = "X-Node-Subject"

// DefaultMaxTries bounds the attempts made for one call.
const DefaultMaxTries = 5

// maxErrorBody bounds the response text kept in a StatusError.
const maxErrorBody = 4096

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the base URL of the coordinating registry.
	BaseURL string
	// NodeID identifies this node in replica notifications.
	NodeID string
	// Subject is sent with every request when set.
	Subject string
	// Codec decodes descriptors returned by the registry.
	Codec mn.DescriptorCodec
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// MaxTries bounds attempts per call. Zero means DefaultMaxTries.
	MaxTries uint
	// NewBackOff returns the retry schedule of one call. If nil, an
	// exponential backoff is used.
	NewBackOff func() backoff.BackOff
}

// Client is a coordinating registry client.
type Client struct {
	baseURL    string
	nodeID     string
	subject    string
	codec      mn.DescriptorCodec
	httpClient *http.Client
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("coordinator: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("coordinator: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("coordinator: Codec is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		nodeID:     cfg.NodeID,
		subject:    cfg.Subject,
		codec:      cfg.Codec,
		httpClient: cfg.HTTPClient,
		maxTries:   cfg.MaxTries,
		newBackOff: cfg.NewBackOff,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.maxTries == 0 {
		c.maxTries = DefaultMaxTries
	}
	if c.newBackOff == nil {
		c.newBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return c, nil
}

// StatusError is an unexpected HTTP response status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coordinator: unexpected %d response from %s %s: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// Describe asks the registry for the descriptor headers of pid and returns
// the response status. Server errors are retried; the last status is
// returned once the attempts are spent.
func (c *Client) Describe(ctx context.Context, pid string) (int, error) {
	return c.status(ctx, http.MethodHead, c.baseURL+"/v2/meta/"+url.PathEscape(pid), nil)
}

// Synchronize asks the registry to harvest pid from this node and returns
// the response status.
func (c *Client) Synchronize(ctx context.Context, pid string) (int, error) {
	form := url.Values{"pid": {pid}}
	return c.status(ctx, http.MethodPost, c.baseURL+"/v2/synchronize", form)
}

// GetSystemMetadata fetches the registry's descriptor of pid.
func (c *Client) GetSystemMetadata(ctx context.Context, pid string) (*mn.Descriptor, error) {
	rc, err := c.open(ctx, c.baseURL+"/v2/meta/"+url.PathEscape(pid))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fault.MarkRetryable(fmt.Errorf("coordinator: reading descriptor of %s: %w", pid, err))
	}
	d, err := c.codec.Decode(b)
	if err != nil {
		return nil, fault.NewInvalidSystemMetadata("registry returned an invalid descriptor. pid=%q, error=%v", pid, err).
			WithIdentifier(pid)
	}
	return d, nil
}

// SetReplicationStatus reports the status of this node's replica of pid.
// cause describes a failure and may be nil.
func (c *Client) SetReplicationStatus(ctx context.Context, pid string, status mn.ReplicationStatus, cause error) error {
	form := url.Values{"nodeRef": {c.nodeID}, "status": {string(status)}}
	if cause != nil {
		form.Set("failure", cause.Error())
	}
	code, err := c.status(ctx, http.MethodPut, c.baseURL+"/v2/replicaNotifications/"+url.PathEscape(pid), form)
	if err != nil {
		return err
	}
	if code < 200 || code >= 300 {
		return &StatusError{Method: http.MethodPut, URL: "/v2/replicaNotifications/" + pid, StatusCode: code}
	}
	return nil
}

// GetReplica streams the bytes of pid from the peer at peerBaseURL.
// The caller closes the returned reader.
func (c *Client) GetReplica(ctx context.Context, peerBaseURL, pid string) (io.ReadCloser, error) {
	if peerBaseURL == "" {
		return nil, fmt.Errorf("coordinator: no base url for replica source of %s", pid)
	}
	return c.open(ctx, strings.TrimRight(peerBaseURL, "/")+"/v2/replica/"+url.PathEscape(pid))
}

// Open streams the body at rawURL. It lets Client serve as the fetcher of
// proxy objects.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return c.open(ctx, rawURL)
}

// status performs a request and returns the final status code. Network
// failures are returned as errors once the attempts are spent.
func (c *Client) status(ctx context.Context, method, rawURL string, form url.Values) (int, error) {
	var lastStatus int
	code, err := backoff.Retry(ctx, func() (int, error) {
		resp, err := c.do(ctx, method, rawURL, form)
		if err != nil {
			return 0, err
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		lastStatus = resp.StatusCode
		if resp.StatusCode >= 500 {
			return 0, &StatusError{Method: method, URL: rawURL, StatusCode: resp.StatusCode}
		}
		return resp.StatusCode, nil
	}, c.retryOptions()...)
	var se *StatusError
	if errors.As(err, &se) {
		return lastStatus, nil
	}
	return code, err
}

// open performs a GET and returns the body of a 2xx response.
func (c *Client) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, err := backoff.Retry(ctx, func() (io.ReadCloser, error) {
		resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.Body, nil
		}
		defer resp.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &StatusError{Method: http.MethodGet, URL: rawURL, StatusCode: resp.StatusCode, Body: string(text)}
		switch {
		case resp.StatusCode >= 500:
			return nil, fault.MarkRetryable(se)
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(fault.NewNotFound("not found at %s", rawURL))
		default:
			return nil, backoff.Permanent(se)
		}
	}, c.retryOptions()...)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values) (*http.Response, error) {
	var body io.Reader
	if form != nil {
		body = bytes.NewReader([]byte(form.Encode()))
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("coordinator: failed to create request: %w", err))
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.subject != "" {
		req.Header.Set(SubjectHeader, c.subject)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coordinator: request to %s %s failed: %w", method, rawURL, err)
	}
	return resp, nil
}

func (c *Client) retryOptions() []backoff.RetryOption {
	return []backoff.RetryOption{
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
	}
}

// Compile-time check that Client can fetch proxy objects
var _ mn.Fetcher = (*Client)(nil)
