package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
)

type Config struct {
	ListenAddress          string `yaml:"listen" default:":8080"`
	Origin                 string `yaml:"origin" default:"http://localhost:8888"`
	MirrorRoot             string `yaml:"mirror"`
	FallbackPage           string `yaml:"fallback-page" default:"404.html"`
	Cancellation           bool   `yaml:"cancellation" default:"true"`
	StatusEndpoint         string `yaml:"status" default:"status"`
	StatusListenAddress    string `yaml:"status-address"`
	Username               string `yaml:"username"`
	Password               string `yaml:"password"`
	PasswordFile           string `yaml:"passwordFile"`
	BreakerFailures        int    `yaml:"breaker-failures" default:"5"`
	BreakerRetryAfter      int    `yaml:"breaker-retry-after" default:"60"`
	RequestTimeout         int    `yaml:"request-timeout" default:"20"`
	ControllerState        string `yaml:"controller-state"`
	ControllerScript       string `yaml:"controller-script"`
	TrustControllerHeaders bool   `yaml:"trust-controller-headers"`
}

// MirrorConfig holds the two values the redirect layer needs, normalized.
// It is built once at startup and never changed.
type MirrorConfig struct {
	// Origin is the scheme and host of the site, always ending in "/".
	Origin string
	// Root is the mirror root, always ending in "/".
	Root string
	// FallbackPage is relative to Root, without a leading "/".
	FallbackPage string
	// Cancellation enables per-attempt cancellation of the losing request.
	Cancellation bool
}

func (s *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	defaults.SetDefaults(s)

	type cfg Config

	if err := unmarshal((*cfg)(s)); err != nil {
		return err
	}

	return nil
}

func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)

	return c
}

func (s *Config) BreakerTimeout() time.Duration {
	return time.Duration(s.BreakerRetryAfter) * time.Second
}

func (s *Config) ClientTimeout() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// Mirror validates the origin and mirror settings and returns the normalized MirrorConfig.
func (s *Config) Mirror() (MirrorConfig, error) {
	origin, err := parseAbsolute("origin", s.Origin)
	if err != nil {
		return MirrorConfig{}, err
	}

	root, err := parseAbsolute("mirror", s.MirrorRoot)
	if err != nil {
		return MirrorConfig{}, err
	}

	return MirrorConfig{
		Origin:       origin.Scheme + "://" + origin.Host + "/",
		Root:         withTrailingSlash(root.String()),
		FallbackPage: strings.TrimPrefix(s.FallbackPage, "/"),
		Cancellation: s.Cancellation,
	}, nil
}

func parseAbsolute(name, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s url is required", name)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s url '%s': %w", name, raw, err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s url '%s' must be absolute", name, raw)
	}

	return u, nil
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}

	return s + "/"
}
