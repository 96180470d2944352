// Package intercept races same-origin requests between the origin and a mirror.
//
// The Transport returned by Install is a drop-in http.RoundTripper. Requests
// that can be sent twice (GET/HEAD without a body) and that target the
// configured origin are sent both to the origin and to the mirror. The first
// usable response wins and the other request is cancelled. When both fail,
// RoundTrip returns a *race.AggregateError holding both reasons, the direct
// one first, instead of a single error.
package intercept

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rb3ckers/cdnrace/datatypes"
	"github.com/rb3ckers/cdnrace/internal/config"
	"github.com/rb3ckers/cdnrace/internal/metrics"
	"github.com/rb3ckers/cdnrace/internal/mirror"
	"github.com/rb3ckers/cdnrace/internal/redirect"
	"github.com/rs/zerolog/log"
)

type Transport struct {
	base     http.RoundTripper
	config   config.MirrorConfig
	mirror   *mirror.Mirror
	detector *redirect.Detector
	stats    *datatypes.RaceStats
	racer    *Racer
}

type Option func(*Transport)

// WithMirror sets the mirror to race against, instead of one without circuit breaker.
func WithMirror(m *mirror.Mirror) Option {
	return func(t *Transport) {
		t.mirror = m
	}
}

// WithDetector makes requests bypass the race while a matching redirect layer is active.
func WithDetector(d *redirect.Detector) Option {
	return func(t *Transport) {
		t.detector = d
	}
}

func WithStats(s *datatypes.RaceStats) Option {
	return func(t *Transport) {
		t.stats = s
	}
}

// Install wraps base. Installing over a Transport returns it unchanged.
func Install(base http.RoundTripper, cfg config.MirrorConfig, opts ...Option) *Transport {
	if t, ok := base.(*Transport); ok {
		return t
	}

	if base == nil {
		base = http.DefaultTransport
	}

	t := &Transport{
		base:   base,
		config: cfg,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.mirror == nil {
		t.mirror = mirror.NewMirror(cfg, base)
	}

	t.racer = NewRacer(base, t.mirror, cfg.Cancellation)

	return t
}

var (
	installOnce sync.Once
	installed   *Transport
)

// Default installs the Transport over http.DefaultTransport. Only the first
// call in a process installs, later calls return that same Transport.
func Default(cfg config.MirrorConfig, opts ...Option) *Transport {
	installOnce.Do(func() {
		installed = Install(http.DefaultTransport, cfg, opts...)
	})

	return installed
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.eligible(req) {
		t.stats.Record(host(req), datatypes.OutcomeBypass)
		metrics.RacesTotal.WithLabelValues(string(datatypes.OutcomeBypass)).Inc()

		return t.base.RoundTrip(req)
	}

	d := NewDescriptor(req)
	logger := log.With().Str("race", uuid.NewString()).Str("url", d.URL()).Logger()
	start := time.Now()

	response, source, err := t.racer.Race(d)
	took := time.Since(start)

	if err != nil {
		logger.Debug().Err(err).Dur("took", took).Msg("Origin and mirror both failed")
		t.record(req, datatypes.OutcomeFailed, took)

		return nil, err
	}

	logger.Debug().Str("source", string(source)).Int("status", response.StatusCode).Dur("took", took).Msg("Race won")
	t.record(req, datatypes.Outcome(source), took)

	return Normalize(response, d), nil
}

func (t *Transport) record(req *http.Request, outcome datatypes.Outcome, took time.Duration) {
	t.stats.Record(host(req), outcome)
	metrics.ObserveRace(string(outcome), took)
}

func host(req *http.Request) string {
	if req.URL == nil {
		return ""
	}

	return req.URL.Host
}

// eligible reports whether req may be raced: it can be sent twice, it targets
// the origin and no redirect layer already takes care of it.
func (t *Transport) eligible(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}

	if req.Body != nil && req.Body != http.NoBody {
		return false
	}

	// Protocol upgrades need the raw connection of a single response
	if req.Header.Get("Upgrade") != "" {
		return false
	}

	if req.URL == nil || !strings.HasPrefix(req.URL.String(), t.config.Origin) {
		return false
	}

	return !t.detector.Active(req)
}

// Mirror is the mirror requests are raced against.
func (t *Transport) Mirror() *mirror.Mirror {
	return t.mirror
}
