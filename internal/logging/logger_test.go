package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace":   TRACE,
		"DEBUG":   DEBUG,
		"":        INFO,
		"warning": WARN,
		"error":   ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogger_LevelsAndFile(t *testing.T) {
	var console bytes.Buffer
	Configure(Options{
		Dir:          t.TempDir(),
		File:         true,
		ConsoleLevel: WARN,
		FileLevel:    DEBUG,
		Console:      &console,
	})
	defer Configure(DefaultOptions())

	logger, err := NewLogger("engine")
	require.NoError(t, err)

	logger.Trace("trace message")
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message %d", 42)

	path := logger.Path()
	require.NotEmpty(t, path)
	require.NoError(t, logger.Close())

	out := console.String()
	assert.NotContains(t, out, "info message", "INFO ниже порога консоли")
	assert.Contains(t, out, "[WARN] [engine] warn message 42")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	file := string(data)
	assert.NotContains(t, file, "trace message")
	assert.Contains(t, file, "debug message")
	assert.Contains(t, file, "info message")
	assert.True(t, strings.Contains(file, "warn message 42"))
}

func TestRegistry_CachesComponents(t *testing.T) {
	var console bytes.Buffer
	Configure(Options{ConsoleLevel: INFO, Console: &console})
	defer Configure(DefaultOptions())

	r := NewRegistry()
	a := r.Get("storage")
	b := r.Get("storage")
	assert.Same(t, a, b)

	r.Get("api")
	assert.Equal(t, []string{"api", "storage"}, r.Components())

	assert.NoError(t, r.Close())
	assert.Empty(t, r.Components())
	assert.NotSame(t, a, r.Get("storage"), "После Close логгер создаётся заново")
}

func TestHexDump(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))
	assert.Contains(t, HexDump([]byte("hi")), "68 69")
}
