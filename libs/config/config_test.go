package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90")
	d, err := Duration("TEST_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	t.Setenv("TEST_DURATION", "30m")
	d, err = Duration("TEST_DURATION", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	t.Setenv("TEST_DURATION", "soon")
	_, err = Duration("TEST_DURATION", time.Minute)
	assert.Error(t, err)

	d, err = Duration("TEST_DURATION_UNSET", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}

func TestListAndBool(t *testing.T) {
	t.Setenv("TEST_LIST", " 9:00 AM, ,10:00 AM ")
	assert.Equal(t, []string{"9:00 AM", "10:00 AM"}, List("TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, List("TEST_LIST_UNSET", []string{"x"}))

	t.Setenv("TEST_BOOL", "yes")
	assert.True(t, Bool("TEST_BOOL", false))
	t.Setenv("TEST_BOOL", "maybe")
	assert.False(t, Bool("TEST_BOOL", false))
}

func TestPortAndInt(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	_, err := Port("TEST_PORT", "8080")
	assert.Error(t, err)

	t.Setenv("TEST_INT", "42")
	n, err := Int("TEST_INT", 1)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DOTENV_A=from-file\nDOTENV_B=from-file\n"), 0o600))

	t.Setenv("DOTENV_A", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("DOTENV_B") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-env", os.Getenv("DOTENV_A"))
	assert.Equal(t, "from-file", os.Getenv("DOTENV_B"))
}
