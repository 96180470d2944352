package redirect

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rb3ckers/cdnrace/internal/config"
	"github.com/stretchr/testify/assert"
)

var mirrorConfig = config.MirrorConfig{
	Origin:       "https://site.example/",
	Root:         "https://cdn.example/site/",
	FallbackPage: "404.html",
}

func TestDetectorActive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://site.example/a.js", nil)

	tests := []struct {
		name       string
		controller *Controller
		active     bool
	}{
		{"no controller", nil, false},
		{"matching", &Controller{StateActivated, ScriptURL(mirrorConfig)}, true},
		{"installing", &Controller{"installing", ScriptURL(mirrorConfig)}, false},
		{"other script", &Controller{StateActivated, "https://site.example/worker.js?t=https%3A%2F%2Fcdn.example%2Fsite%2F&404=404.html"}, false},
		{"other root", &Controller{StateActivated, "https://site.example/sw.js?t=https%3A%2F%2Fcdn.example%2F&404=404.html"}, false},
		{"other fallback", &Controller{StateActivated, "https://site.example/sw.js?t=https%3A%2F%2Fcdn.example%2Fsite%2F&404=%2F404.html"}, false},
		{"missing parameters", &Controller{StateActivated, "https://site.example/sw.js"}, false},
		{"invalid url", &Controller{StateActivated, "://"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var source *StaticSource
			if tc.controller == nil {
				source = NewStaticSource("", "")
			} else {
				source = NewStaticSource(tc.controller.State, tc.controller.ScriptURL)
			}

			assert.Equal(t, tc.active, NewDetector(mirrorConfig, source).Active(req))
		})
	}
}

func TestHeaderSource(t *testing.T) {
	d := NewDetector(mirrorConfig, Sources{NewStaticSource("", ""), HeaderSource{}})

	req := httptest.NewRequest(http.MethodGet, "https://site.example/a.js", nil)
	assert.False(t, d.Active(req))

	req.Header.Set(StateHeader, StateActivated)
	req.Header.Set(ScriptHeader, ScriptURL(mirrorConfig))
	assert.True(t, d.Active(req))
}

func TestNilDetectorIsInactive(t *testing.T) {
	var d *Detector

	assert.False(t, d.Active(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestScriptURL(t *testing.T) {
	assert.Equal(t, "https://site.example/sw.js?404=404.html&t=https%3A%2F%2Fcdn.example%2Fsite%2F", ScriptURL(mirrorConfig))
}
