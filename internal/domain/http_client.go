package domain

import "net/http"

// HTTPResponse is the fully read result of a request.
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPClient performs a network fetch. Cancelling the request's context cancels the fetch.
// Only transport failures are returned as errors; any status code is a successful fetch.
type HTTPClient interface {
	Do(req *http.Request) (*HTTPResponse, error)
}
