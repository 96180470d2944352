package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rb3ckers/cdnrace/internal/config"
	"github.com/rb3ckers/cdnrace/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned when the mirror answered, but not with a usable response.
var ErrUnavailable = errors.New("mirror unavailable")

type Mirror struct {
	sync.Mutex
	netClient        *http.Client
	config           config.MirrorConfig
	breaker          *gobreaker.TwoStepCircuitBreaker
	firstFailureTime time.Time
}

type MirrorState string

var (
	StateFailing  MirrorState = "failing"
	StateRetrying MirrorState = "retrying"
	StateAlive    MirrorState = "alive"
	StateUnknown  MirrorState = "unknown"
)

type MirrorStatus struct {
	State        MirrorState
	FailingSince time.Time
	URL          string
}

type Option func(*Mirror)

// WithBreaker stops using the mirror for retryAfter once it failed the given
// number of consecutive times.
func WithBreaker(failures int, retryAfter time.Duration) Option {
	return func(m *Mirror) {
		if failures <= 0 {
			return
		}

		settings := gobreaker.Settings{
			Name:        m.config.Root,
			MaxRequests: 1,
			Interval:    0,          // Never clear counts
			Timeout:     retryAfter, // When open retry after this
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(failures)
			},
			OnStateChange: LoggingStatusHandler(m),
		}

		m.breaker = gobreaker.NewTwoStepCircuitBreaker(settings)
	}
}

// NewMirror creates the mirrored side of the race. Requests go out through
// transport, following redirects.
func NewMirror(cfg config.MirrorConfig, transport http.RoundTripper, opts ...Option) *Mirror {
	mirror := &Mirror{
		netClient: &http.Client{
			Transport: transport,
		},
		config: cfg,
	}

	for _, opt := range opts {
		opt(mirror)
	}

	return mirror
}

// Rewrite replaces the origin prefix of rawURL with the mirror root.
func (m *Mirror) Rewrite(rawURL string) string {
	return m.config.Root + strings.TrimPrefix(rawURL, m.config.Origin)
}

// Fetch requests the mirrored counterpart of req. A not-found answer is
// replaced by the fallback page, any answer that is not 2xx in the end fails
// with ErrUnavailable.
func (m *Mirror) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	target := m.Rewrite(req.URL.String())

	if m.breaker == nil {
		return m.fetch(ctx, req, target)
	}

	// Already cancelled, nothing to tell the breaker
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done, err := m.breaker.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	response, err := m.fetch(ctx, req, target)

	switch {
	case err == nil:
		done(true)
	case ctx.Err() == nil:
		done(false)
	case m.breaker.State() != gobreaker.StateClosed:
		// A trial request that lost the race proves nothing, try again later
		done(false)
	}

	return response, err
}

func (m *Mirror) fetch(ctx context.Context, req *http.Request, target string) (*http.Response, error) {
	response, err := m.do(ctx, req, target)
	if err != nil {
		return nil, err
	}

	if response.StatusCode == http.StatusNotFound {
		drain(response)
		metrics.MirrorFallbacksTotal.Inc()

		response, err = m.do(ctx, req, m.config.Root+m.config.FallbackPage)
		if err != nil {
			return nil, err
		}
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		drain(response)
		return nil, fmt.Errorf("%w: %s answered '%s'", ErrUnavailable, response.Request.URL, response.Status)
	}

	return response, nil
}

func (m *Mirror) do(ctx context.Context, req *http.Request, target string) (*http.Response, error) {
	newRequest, err := http.NewRequestWithContext(ctx, req.Method, target, nil)
	if err != nil {
		return nil, err
	}

	newRequest.Header = req.Header.Clone()

	log.Trace().Str("url", target).Msg("Requesting mirror")

	return m.netClient.Do(newRequest)
}

func drain(response *http.Response) {
	// Drain the body, but discard it, to make sure connection can be reused
	io.Copy(io.Discard, response.Body) //nolint:errcheck
	response.Body.Close()
}

func (m *Mirror) GetStatus() *MirrorStatus {
	state := StateAlive

	if m.breaker != nil {
		switch m.breaker.State() {
		case gobreaker.StateOpen:
			state = StateFailing
		case gobreaker.StateHalfOpen:
			state = StateRetrying
		case gobreaker.StateClosed:
			state = StateAlive
		default:
			state = StateUnknown
		}
	}

	m.Lock()
	defer m.Unlock()

	return &MirrorStatus{
		State:        state,
		FailingSince: m.firstFailureTime,
		URL:          m.config.Root,
	}
}
