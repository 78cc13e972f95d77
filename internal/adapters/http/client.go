package http

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/config"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

// maxResponseBytes bounds how much of a backend response is read into memory.
const maxResponseBytes = 10 << 20

// Client implements domain.HTTPClient on net/http. Cancellation follows the
// request context; the per-request timeout comes from remote.timeout_seconds.
type Client struct {
	httpClient *http.Client
}

func NewClient(cfgProvider config.Provider) *Client {
	return NewClientWithTimeout(cfgProvider.Get().RemoteTimeout())
}

func NewClientWithTimeout(timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	return &Client{httpClient: &http.Client{Timeout: timeout, Transport: transport}}
}

func (c *Client) Do(req *http.Request) (*domain.HTTPResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}
	return &domain.HTTPResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
