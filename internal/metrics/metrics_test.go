package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRace(t *testing.T) {
	before := testutil.ToFloat64(RacesTotal.WithLabelValues("mirror"))

	ObserveRace("mirror", 10*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(RacesTotal.WithLabelValues("mirror")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveRace("direct", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cdnrace_requests_total")
	assert.Contains(t, rec.Body.String(), "cdnrace_mirror_available 1")
}
