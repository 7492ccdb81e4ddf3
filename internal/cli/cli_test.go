package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/infernum/internal/app"
)

func TestParse_Commands(t *testing.T) {
	testCases := []struct {
		name   string
		args   []string
		action Action
		check  func(t *testing.T, c *app.Config)
	}{
		{
			name:   "serve with defaults",
			args:   []string{"serve"},
			action: ActionServe,
			check: func(t *testing.T, c *app.Config) {
				assert.Equal(t, ".", c.Root)
				assert.Equal(t, ":8080", c.Addr)
				assert.Equal(t, "json", c.LogFormat)
				assert.Equal(t, "info", c.LogLevel)
				assert.Equal(t, app.CacheFile, c.Cache)
				assert.Equal(t, 5*time.Second, c.ShutdownTimeout)
			},
		},
		{
			name:   "serve with flags",
			args:   []string{"--root", "/srv/site", "--log-level", "DEBUG", "--log-format", "text", "serve", "--addr", ":9000", "--shutdown-timeout", "2s"},
			action: ActionServe,
			check: func(t *testing.T, c *app.Config) {
				assert.Equal(t, "/srv/site", c.Root)
				assert.Equal(t, ":9000", c.Addr)
				assert.Equal(t, "debug", c.LogLevel)
				assert.Equal(t, "text", c.LogFormat)
				assert.Equal(t, 2*time.Second, c.ShutdownTimeout)
			},
		},
		{
			name:   "redis cache",
			args:   []string{"extensions", "--cache", "redis", "--redis-url", "redis://localhost:6379/0"},
			action: ActionExtensions,
			check: func(t *testing.T, c *app.Config) {
				assert.Equal(t, app.CacheRedis, c.Cache)
				assert.Equal(t, "redis://localhost:6379/0", c.RedisURL)
			},
		},
		{
			name:   "cache clear",
			args:   []string{"cache", "clear", "--cache", "memory"},
			action: ActionClearCache,
			check: func(t *testing.T, c *app.Config) {
				assert.Equal(t, app.CacheMemory, c.Cache)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inv, shouldExit, err := Parse(tc.args, &bytes.Buffer{})
			require.NoError(t, err)
			require.False(t, shouldExit)
			assert.Equal(t, tc.action, inv.Action)
			tc.check(t, inv.Config)
		})
	}
}

func TestParse_Environment(t *testing.T) {
	t.Setenv("INFERNUM_ROOT", "/from/env")
	t.Setenv("INFERNUM_CACHE", "redis")
	t.Setenv("INFERNUM_REDIS_URL", "redis://cache:6379")
	t.Setenv("INFERNUM_LOG_LEVEL", "warn")

	inv, _, err := Parse([]string{"serve", "--log-level", "error"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/from/env", inv.Config.Root)
	assert.Equal(t, app.CacheRedis, inv.Config.Cache)
	assert.Equal(t, "redis://cache:6379", inv.Config.RedisURL)
	assert.Equal(t, "error", inv.Config.LogLevel, "flags win over the environment")
}

func TestParse_Help(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"serve", "--help"}} {
		out := &bytes.Buffer{}
		inv, shouldExit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, inv)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"serve", "--nope"}, "unknown flag: --nope"},
		{"unknown command", []string{"deploy"}, `unknown command "deploy"`},
		{"bad log format", []string{"serve", "--log-format", "xml"}, "invalid log-format"},
		{"bad log level", []string{"serve", "--log-level", "loud"}, "invalid log-level"},
		{"bad cache driver", []string{"serve", "--cache", "disk"}, `unknown cache driver "disk"`},
		{"redis without url", []string{"serve", "--cache", "redis"}, "redis URL is required"},
		{"unexpected argument", []string{"serve", "extra"}, "unknown command"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			require.Error(t, err)
			exitErr, ok := err.(*ExitError)
			require.True(t, ok, "expected *ExitError, got %T", err)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.want)
		})
	}
}
