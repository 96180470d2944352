package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rb3ckers/cdnrace/datatypes"
	"github.com/rb3ckers/cdnrace/internal/config"
	"github.com/rb3ckers/cdnrace/internal/intercept"
	"github.com/rb3ckers/cdnrace/internal/metrics"
	"github.com/rb3ckers/cdnrace/internal/mirror"
	"github.com/rb3ckers/cdnrace/internal/redirect"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Proxy serves the static site from its origin, racing every asset request
// against the mirror.
type Proxy struct {
	config    *config.Config
	origin    *url.URL
	transport *intercept.Transport
	stats     *datatypes.RaceStats
	servers   []*http.Server
	addrs     []net.Addr
	group     *errgroup.Group
}

func NewProxy(cfg *config.Config) (*Proxy, error) {
	mirrorConfig, err := cfg.Mirror()
	if err != nil {
		return nil, err
	}

	origin, err := url.Parse(mirrorConfig.Origin)
	if err != nil {
		return nil, err
	}

	base, err := newBaseTransport(cfg)
	if err != nil {
		return nil, err
	}

	sources := redirect.Sources{redirect.NewStaticSource(cfg.ControllerState, cfg.ControllerScript)}
	if cfg.TrustControllerHeaders {
		sources = append(sources, redirect.HeaderSource{})
	}

	stats := datatypes.NewRaceStats()
	m := mirror.NewMirror(mirrorConfig, base, mirror.WithBreaker(cfg.BreakerFailures, cfg.BreakerTimeout()))

	transport := intercept.Install(base, mirrorConfig,
		intercept.WithMirror(m),
		intercept.WithDetector(redirect.NewDetector(mirrorConfig, sources)),
		intercept.WithStats(stats),
	)

	return &Proxy{
		config:    cfg,
		origin:    origin,
		transport: transport,
		stats:     stats,
	}, nil
}

func newBaseTransport(cfg *config.Config) (*http.Transport, error) {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: cfg.ClientTimeout(),
	}

	if err := http2.ConfigureTransport(t); err != nil {
		return nil, fmt.Errorf("failed to enable http2: %w", err)
	}

	return t, nil
}

// Start listens on the configured addresses and returns once they accept connections.
func (p *Proxy) Start(ctx context.Context) error {
	siteMux := http.NewServeMux()

	var statusMux *http.ServeMux

	if p.config.StatusListenAddress != "" {
		statusMux = http.NewServeMux()
	} else {
		statusMux = siteMux
	}

	statusHandler := p.statusHandler

	username, password := p.config.Username, p.config.Password
	if p.config.PasswordFile != "" {
		var err error

		username, password, err = parseUsernamePassword(p.config.PasswordFile)
		if err != nil {
			return err
		}
	}

	if username != "" {
		statusHandler = BasicAuth(statusHandler, username, password, "Please provide username and password to see the race status")
	}

	statusMux.HandleFunc("/"+p.config.StatusEndpoint, statusHandler)
	statusMux.Handle("/metrics", metrics.Handler())
	siteMux.HandleFunc("/", ReverseProxyHandler(p.transport, p.origin))

	p.group, ctx = errgroup.WithContext(ctx)

	if err := p.serve(ctx, p.config.ListenAddress, siteMux); err != nil {
		return err
	}

	// start status server if needed
	if p.config.StatusListenAddress != "" {
		if err := p.serve(ctx, p.config.StatusListenAddress, statusMux); err != nil {
			p.Stop() //nolint:errcheck
			return err
		}
	}

	return nil
}

func (p *Proxy) serve(ctx context.Context, address string, handler http.Handler) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on '%s': %w", address, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	p.servers = append(p.servers, server)
	p.addrs = append(p.addrs, listener.Addr())

	log.Info().Str("address", listener.Addr().String()).Msg("Listening")

	p.group.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return nil
}

// Wait blocks until the proxy is stopped or one of its servers fails.
func (p *Proxy) Wait() error {
	return p.group.Wait()
}

func (p *Proxy) Stop() error {
	if p.group == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, server := range p.servers {
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
	}

	return p.group.Wait()
}

// Addr is the address the site is served on.
func (p *Proxy) Addr() string {
	if len(p.addrs) == 0 {
		return ""
	}

	return p.addrs[0].String()
}

func (p *Proxy) statusHandler(res http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(res, "Only GET is supported.", http.StatusMethodNotAllowed)
		return
	}

	status := p.transport.Mirror().GetStatus()
	if status.State == mirror.StateAlive {
		fmt.Fprintf(res, "%s: %s\n", status.URL, status.State)
	} else {
		fmt.Fprintf(res, "%s: %s (since: %s)\n", status.URL, status.State, status.FailingSince.UTC().Format(time.RFC3339))
	}

	p.stats.ForEach(func(c datatypes.OutcomeCount) {
		fmt.Fprintf(res, "%s %s: %d\n", c.Host, c.Outcome, c.Count)
	})
}

func parseUsernamePassword(passwordFile string) (string, string, error) {
	data, err := os.ReadFile(passwordFile)
	if err != nil {
		return "", "", fmt.Errorf("failed to load password file")
	}

	split := strings.SplitN(strings.TrimSpace(string(data)), ":", 2) //nolint:gomnd
	if len(split) != 2 {                                             //nolint:gomnd
		return "", "", fmt.Errorf("failed to parse username/password. Expected username and password separated by ':'")
	}

	return split[0], split[1], nil
}
