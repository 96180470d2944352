package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()

	assert.Equal(t, ":8080", c.ListenAddress)
	assert.Equal(t, "404.html", c.FallbackPage)
	assert.True(t, c.Cancellation)
	assert.Equal(t, 5, c.BreakerFailures)
}

func TestMirrorNormalizes(t *testing.T) {
	c := Default()
	c.Origin = "https://site.example/some/page"
	c.MirrorRoot = "https://cdn.example/site"
	c.FallbackPage = "/errors/404.html"

	m, err := c.Mirror()
	require.NoError(t, err)

	assert.Equal(t, "https://site.example/", m.Origin)
	assert.Equal(t, "https://cdn.example/site/", m.Root)
	assert.Equal(t, "errors/404.html", m.FallbackPage)
	assert.True(t, m.Cancellation)
}

func TestMirrorRequiresAbsoluteURLs(t *testing.T) {
	c := Default()

	_, err := c.Mirror()
	assert.ErrorContains(t, err, "mirror url is required")

	c.MirrorRoot = "cdn.example/site"
	_, err = c.Mirror()
	assert.ErrorContains(t, err, "must be absolute")
}
