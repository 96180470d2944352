package intercept

import (
	"context"
	"net/http"
)

const (
	// ModeHeader carries the request mode set by browsers.
	ModeHeader     = "Sec-Fetch-Mode"
	ModeSameOrigin = "same-origin"
)

// Descriptor captures an intercepted request. It is never modified, each
// attempt derives its own request from it.
type Descriptor struct {
	url     string
	mode    string
	request *http.Request
}

func NewDescriptor(req *http.Request) Descriptor {
	return Descriptor{
		url:     req.URL.String(),
		mode:    req.Header.Get(ModeHeader),
		request: req,
	}
}

func (d Descriptor) URL() string {
	return d.url
}

func (d Descriptor) Mode() string {
	return d.mode
}

// Context is the caller's context, cancelling it cancels every attempt.
func (d Descriptor) Context() context.Context {
	return d.request.Context()
}

// Request returns a copy of the intercepted request bound to ctx.
func (d Descriptor) Request(ctx context.Context) *http.Request {
	return d.request.Clone(ctx)
}
