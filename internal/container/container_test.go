package container

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContainer() *Container {
	return New("kernel", map[string]Contract{
		"logger": TypeOf[*slog.Logger](),
		"writer": TypeOf[io.Writer](),
		"config": TypeOf[map[string]string](),
	})
}

func TestProvide_ReservedKeyHonoursContract(t *testing.T) {
	testCases := []struct {
		name      string
		key       string
		value     any
		expectErr error
	}{
		{name: "concrete type accepted", key: "logger", value: slog.New(slog.DiscardHandler)},
		{name: "interface implementation accepted", key: "writer", value: io.Discard},
		{name: "map type accepted", key: "config", value: map[string]string{"a": "b"}},
		{name: "wrong type rejected", key: "logger", value: "not a logger", expectErr: ErrContractViolation},
		{name: "nil rejected", key: "writer", value: nil, expectErr: ErrContractViolation},
		{name: "empty key rejected", key: "", value: 1, expectErr: ErrInvalidKey},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestContainer()
			err := c.Provide(tc.key, tc.value)
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				assert.False(t, c.Has(tc.key))
				return
			}
			require.NoError(t, err)
			assert.True(t, c.Has(tc.key))
		})
	}
}

func TestProvide_SecondAssignmentIsImmutable(t *testing.T) {
	c := newTestContainer()
	first := slog.New(slog.DiscardHandler)
	require.NoError(t, c.Provide("logger", first))

	// A valid value and an invalid one both fail the same way.
	err := c.Provide("logger", slog.New(slog.DiscardHandler))
	require.ErrorIs(t, err, ErrImmutableKey)
	err = c.Provide("logger", 42)
	require.ErrorIs(t, err, ErrImmutableKey)

	got, err := Lookup[*slog.Logger](c, "logger")
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestSet_ReservedKeyRejectedOutsideBootstrap(t *testing.T) {
	c := newTestContainer()

	err := c.Set("logger", slog.New(slog.DiscardHandler))
	require.ErrorIs(t, err, ErrImmutableKey)
	assert.False(t, c.Has("logger"))
}

func TestSet_NonReservedRoundTrip(t *testing.T) {
	c := newTestContainer()
	value := &struct{ N int }{N: 7}

	require.NoError(t, c.Set("analytics.counter", value))
	got, err := c.Get("analytics.counter")
	require.NoError(t, err)
	assert.Same(t, value, got)

	// Non-reserved keys can be overwritten.
	require.NoError(t, c.Set("analytics.counter", "replaced"))
	got, err = c.Get("analytics.counter")
	require.NoError(t, err)
	assert.Equal(t, "replaced", got)

	require.NoError(t, c.Remove("analytics.counter"))
	assert.False(t, c.Has("analytics.counter"))
}

func TestGet_UndefinedKey(t *testing.T) {
	c := newTestContainer()

	_, err := c.Get("missing")
	require.ErrorIs(t, err, ErrUndefinedKey)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "kernel", cerr.Container)
	assert.Equal(t, "missing", cerr.Key)
}

func TestRemove_ReservedKey(t *testing.T) {
	c := newTestContainer()
	require.NoError(t, c.Provide("config", map[string]string{}))

	require.ErrorIs(t, c.Remove("config"), ErrImmutableKey)
	// Reserved keys are protected even before they are set.
	require.ErrorIs(t, c.Remove("writer"), ErrImmutableKey)
	assert.True(t, c.Has("config"))
}

func TestLookup_TypeMismatch(t *testing.T) {
	c := newTestContainer()
	require.NoError(t, c.Set("db", "dsn"))

	_, err := Lookup[int](c, "db")
	require.ErrorIs(t, err, ErrContractViolation)
}

func TestKeys_Sorted(t *testing.T) {
	c := newTestContainer()
	require.NoError(t, c.Set("b", 1))
	require.NoError(t, c.Set("a", 2))
	require.NoError(t, c.Provide("writer", io.Discard))

	assert.Equal(t, []string{"a", "b", "writer"}, c.Keys())
}

func TestContract_String(t *testing.T) {
	assert.Equal(t, "*slog.Logger", TypeOf[*slog.Logger]().String())
	assert.Equal(t, "io.Writer", TypeOf[io.Writer]().String())
}
