package intercept

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rb3ckers/cdnrace/internal/mirror"
	"github.com/rb3ckers/cdnrace/internal/race"
)

type Source string

var (
	SourceDirect Source = "direct"
	SourceMirror Source = "mirror"
)

// errLostRace is the result of an attempt that completed after the race was decided.
var errLostRace = errors.New("lost the race")

type outcome struct {
	response *http.Response
	source   Source
	attempt  *race.Attempt
}

// Racer sends a request both to the origin and to the mirror and keeps the
// first usable response.
type Racer struct {
	base         http.RoundTripper
	mirror       *mirror.Mirror
	cancellation bool
}

func NewRacer(base http.RoundTripper, m *mirror.Mirror, cancellation bool) *Racer {
	return &Racer{
		base:         base,
		mirror:       m,
		cancellation: cancellation,
	}
}

// Race runs the direct and the mirrored attempt for d. When both fail the
// *race.AggregateError holds the direct error first, then the mirrored one.
func (r *Racer) Race(d Descriptor) (*http.Response, Source, error) {
	broadcast := race.NewBroadcast(r.cancellation)

	directCtx, direct := broadcast.Attempt(d.Context())
	mirrorCtx, mirrored := broadcast.Attempt(d.Context())

	ops := []race.Op[outcome]{
		func() (outcome, error) {
			response, err := r.base.RoundTrip(d.Request(directCtx))
			if err != nil {
				direct.Release()
				return outcome{}, err
			}

			if !direct.Succeed() {
				return outcome{}, lose(response, direct)
			}

			return outcome{response: response, source: SourceDirect, attempt: direct}, nil
		},
		func() (outcome, error) {
			response, err := r.mirror.Fetch(mirrorCtx, d.Request(mirrorCtx))
			if err != nil {
				mirrored.Release()
				return outcome{}, err
			}

			if !mirrored.Succeed() {
				return outcome{}, lose(response, mirrored)
			}

			return outcome{response: response, source: SourceMirror, attempt: mirrored}, nil
		},
	}

	won, err := race.First(ops, nil)
	if err != nil {
		return nil, "", err
	}

	won.response.Body = &releasingBody{ReadCloser: won.response.Body, release: won.attempt.Release}

	return won.response, won.source, nil
}

// lose drops a response that completed, but not in time to win.
func lose(response *http.Response, attempt *race.Attempt) error {
	response.Body.Close()
	attempt.Release()

	return errLostRace
}

// releasingBody releases the winning attempt's context once the caller is done with the body.
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)

	return err
}
