package proxy

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rb3ckers/cdnrace/internal/race"
	"github.com/rs/zerolog/log"
)

// ReverseProxyHandler serves requests from target, sending them through transport.
func ReverseProxyHandler(transport http.RoundTripper, target *url.URL) http.HandlerFunc {
	proxyTo := httputil.NewSingleHostReverseProxy(target)
	proxyTo.Transport = transport
	proxyTo.ErrorHandler = errorHandler

	return func(res http.ResponseWriter, req *http.Request) {
		// Update the headers to allow for SSL redirection
		req.URL.Host = target.Host
		req.URL.Scheme = target.Scheme
		req.Host = target.Host

		proxyTo.ServeHTTP(res, req)
	}
}

func errorHandler(res http.ResponseWriter, req *http.Request, err error) {
	logger := log.Warn().Str("url", req.URL.String())

	var agg *race.AggregateError
	if errors.As(err, &agg) && len(agg.Errors) == 2 {
		logger = logger.AnErr("direct", agg.Errors[0]).AnErr("mirror", agg.Errors[1])
	} else {
		logger = logger.Err(err)
	}

	logger.Msg("Failed to serve request")

	res.WriteHeader(http.StatusBadGateway)
}
