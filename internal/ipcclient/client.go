// Package ipcclient implements the minimal keep-alive HTTP/1.1 client
// used by the ol_ipc.function_call binding: TCP_NODELAY enabled, with
// up to 64 idle connections kept per endpoint and reused across calls
// when the server supports keep-alive.
package ipcclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client is a single shared, connection-pooling HTTP client used for
// self-targeted function calls (POST http://<ipc_endpoint>/run/<name>).
// Behaviorally equivalent to one connection per call with keep-alive
// available; the underlying http.Transport is free to reuse
// connections per endpoint, which is an acceptable optimization that
// does not change observable semantics.
type Client struct {
	http *http.Client
}

// New builds an IPC Client with a transport tuned for low-latency
// loopback calls to the worker's own front-end.
func New() *Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(true)
			}
			return conn, nil
		},
		MaxIdleConnsPerHost:   64,
		DisableCompression:    true,
		ResponseHeaderTimeout: 0, // unbounded: only the dial is timed out; the host never times out waiting for a response
	}
	return &Client{http: &http.Client{Transport: transport}}
}

// FunctionCall performs the HTTP POST to http://<endpoint>/run/<name>
// that backs ol_ipc.function_call, returning the raw response body.
// Any transport error or non-2xx status is returned as an error for
// the caller to fold into a Call Result Err.
func (c *Client) FunctionCall(ctx context.Context, endpoint, name string, args []byte) ([]byte, error) {
	url := fmt.Sprintf("http://%s/run/%s", endpoint, name)
	return c.do(ctx, http.MethodPost, url, args)
}

// Post performs an arbitrary outbound HTTP POST, backing ol_ipc.http_post.
func (c *Client) Post(ctx context.Context, addr, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("http://%s%s", addr, path), body)
}

// Get performs an arbitrary outbound HTTP GET, backing ol_ipc.http_get.
func (c *Client) Get(ctx context.Context, addr, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("http://%s%s", addr, path), nil)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("non-2xx status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
