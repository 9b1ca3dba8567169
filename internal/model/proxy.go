// Package model defines shared types for the proxy route.
package model

import (
	"io"
	"net/http"
	"time"
)

// FetchResult is the buffered payload of a successful fetch.
type FetchResult struct {
	Body        []byte
	ContentType string
}

// Attempt records the outcome of one outbound fetch. Exactly one of Result
// and Err is set.
type Attempt struct {
	Number  int
	Timeout time.Duration
	Result  *FetchResult
	Err     error
}

// OK reports whether the attempt produced a result.
func (a Attempt) OK() bool {
	return a.Err == nil && a.Result != nil
}

// UpstreamResponse is the unbuffered response to a single outbound request.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
