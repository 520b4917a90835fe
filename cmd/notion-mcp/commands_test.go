package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggoodman/notion-mcp/auth"
	"github.com/ggoodman/notion-mcp/internal/config"
)

func TestInterceptors(t *testing.T) {
	assert.Empty(t, interceptors(config.Server{AuthHeader: "Authorization", AuthMode: "static"}))

	ics := interceptors(config.Server{AuthSecret: "s3cret", AuthHeader: "X-Api-Key", AuthMode: "static"})
	require.Len(t, ics, 1)
	r := httptest.NewRequest("GET", "/sse", nil)
	r.Header.Set("X-Api-Key", "s3cret")
	ui, err := ics[0].Intercept(r)
	require.NoError(t, err)
	assert.Equal(t, auth.StaticSecretUserID, ui.UserID())

	ics = interceptors(config.Server{AuthSecret: "s3cret", AuthHeader: "Authorization", AuthMode: "jwt"})
	require.Len(t, ics, 1)
	r = httptest.NewRequest("GET", "/sse", nil)
	r.Header.Set("Authorization", "Bearer s3cret")
	_, err = ics[0].Intercept(r)
	assert.Error(t, err, "a raw secret is not a valid token")
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		l, err := newLogger(config.Log{Level: "debug", Format: format})
		require.NoError(t, err)
		assert.NotNil(t, l)
	}

	_, err := newLogger(config.Log{Level: "loud", Format: "text"})
	assert.Error(t, err)
}
