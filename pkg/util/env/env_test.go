package env

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setenv(t *testing.T, name, value string) func() {
	require.NoError(t, os.Setenv(name, value))
	return func() { require.NoError(t, os.Unsetenv(name)) }
}

func TestEnv(t *testing.T) {
	assert.Equal(t, 7, Int("ARQ_TEST_UNSET", 7))

	defer setenv(t, "ARQ_TEST_INT", "42")()
	assert.Equal(t, 42, Int("ARQ_TEST_INT", 7))

	defer setenv(t, "ARQ_TEST_BAD", "forty")()
	assert.Equal(t, 7, Int("ARQ_TEST_BAD", 7))
	assert.Equal(t, 0.5, Float64("ARQ_TEST_BAD", 0.5))
	assert.Equal(t, time.Second, Duration("ARQ_TEST_BAD", time.Second))

	defer setenv(t, "ARQ_TEST_FLOAT", "0.25")()
	assert.Equal(t, 0.25, Float64("ARQ_TEST_FLOAT", 0))

	defer setenv(t, "ARQ_TEST_DURATION", "150ms")()
	assert.Equal(t, 150*time.Millisecond, Duration("ARQ_TEST_DURATION", 0))
}
