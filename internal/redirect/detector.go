// Package redirect detects a lower level redirect layer that already sends
// requests to the same mirror, in which case racing them again is pointless.
package redirect

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rb3ckers/cdnrace/internal/config"
)

const (
	StateActivated = "activated"
	ScriptPath     = "/sw.js"

	StateHeader  = "X-Redirect-Controller-State"
	ScriptHeader = "X-Redirect-Controller-Script"
)

// Controller describes a redirect layer: its lifecycle state and the script
// URL identifying it, which carries its mirror configuration as query parameters.
type Controller struct {
	State     string
	ScriptURL string
}

// Source reports the controller in charge of a request, or nil if there is none.
type Source interface {
	Controller(req *http.Request) *Controller
}

// StaticSource always reports the same controller.
type StaticSource struct {
	controller *Controller
}

func NewStaticSource(state, scriptURL string) *StaticSource {
	if state == "" && scriptURL == "" {
		return &StaticSource{}
	}

	return &StaticSource{controller: &Controller{State: state, ScriptURL: scriptURL}}
}

func (s *StaticSource) Controller(_ *http.Request) *Controller {
	return s.controller
}

// HeaderSource reads the controller announced by an upstream layer on the request itself.
type HeaderSource struct{}

func (HeaderSource) Controller(req *http.Request) *Controller {
	state := req.Header.Get(StateHeader)
	if state == "" {
		return nil
	}

	return &Controller{
		State:     strings.TrimSpace(state),
		ScriptURL: strings.TrimSpace(req.Header.Get(ScriptHeader)),
	}
}

// Sources reports the first controller found.
type Sources []Source

func (s Sources) Controller(req *http.Request) *Controller {
	for _, src := range s {
		if c := src.Controller(req); c != nil {
			return c
		}
	}

	return nil
}

type Detector struct {
	source Source
	mirror config.MirrorConfig
}

func NewDetector(mirror config.MirrorConfig, source Source) *Detector {
	return &Detector{
		source: source,
		mirror: mirror,
	}
}

// Active reports whether an activated redirect layer, configured with exactly
// the same mirror root and fallback page, is in charge of req.
func (d *Detector) Active(req *http.Request) bool {
	if d == nil || d.source == nil {
		return false
	}

	c := d.source.Controller(req)
	if c == nil || c.State != StateActivated {
		return false
	}

	u, err := url.Parse(c.ScriptURL)
	if err != nil {
		return false
	}

	q := u.Query()

	return u.Path == ScriptPath &&
		q.Get("t") == d.mirror.Root &&
		q.Get("404") == d.mirror.FallbackPage
}

// ScriptURL is the identity a redirect layer serving mirror declares.
func ScriptURL(mirror config.MirrorConfig) string {
	q := url.Values{}
	q.Set("t", mirror.Root)
	q.Set("404", mirror.FallbackPage)

	return strings.TrimSuffix(mirror.Origin, "/") + ScriptPath + "?" + q.Encode()
}
