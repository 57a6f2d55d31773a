package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrStatus    = errors.New("unexpected status")
	ErrShortBody = errors.New("body shorter than expected")
)

// Client fetches canvas snapshots and metadata. It adds no timeout of its own;
// cancellation comes from the caller's context.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

func New(base *url.URL) *Client {
	return &Client{base: base, httpClient: &http.Client{}}
}

// NewWithHTTP lets tests and callers supply their own transport.
func NewWithHTTP(base *url.URL, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{base: base, httpClient: hc}
}

func (c *Client) Base() *url.URL { return c.base }

func (c *Client) get(ctx context.Context, p string) (*http.Response, error) {
	u := c.base.JoinPath(strings.TrimPrefix(p, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %w %d: %s", p, ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// JSON returns the raw body of a JSON endpoint. Decoding and validation are up
// to the caller.
func (c *Client) JSON(ctx context.Context, p string) ([]byte, error) {
	resp, err := c.get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", p, err)
	}
	return b, nil
}

// Raw reads exactly size bytes from a binary endpoint. Extra trailing bytes
// are ignored; fewer is ErrShortBody.
func (c *Client) Raw(ctx context.Context, p string, size int) ([]byte, error) {
	resp, err := c.get(ctx, p)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	buf := make([]byte, size)
	n, err := io.ReadFull(resp.Body, buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("GET %s: %w: got %d of %d bytes", p, ErrShortBody, n, size)
		}
		return nil, fmt.Errorf("GET %s: %w", p, err)
	}
	return buf, nil
}
