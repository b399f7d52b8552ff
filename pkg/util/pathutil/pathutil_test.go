package pathutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConfigPath(t *testing.T) {
	dir, err := ioutil.TempDir("", "pathutil")
	require.NoError(t, err)
	defer func() { require.NoError(t, os.RemoveAll(dir)) }()

	existing := filepath.Join(dir, "home.json")
	require.NoError(t, ioutil.WriteFile(existing, []byte("{}"), 0600))

	defaults := ConfigPaths{
		WorkingDirLoc: filepath.Join(dir, "missing.json"),
		HomeLoc:       existing,
	}

	t.Run("args first", func(t *testing.T) {
		path, err := FindConfigPath([]string{"a.json"}, 0, "", defaults)
		require.NoError(t, err)
		assert.Equal(t, "a.json", path)
	})

	t.Run("env second", func(t *testing.T) {
		require.NoError(t, os.Setenv("ARQ_TEST_CONFIG", "b.json"))
		defer func() { require.NoError(t, os.Unsetenv("ARQ_TEST_CONFIG")) }()

		path, err := FindConfigPath(nil, 0, "ARQ_TEST_CONFIG", defaults)
		require.NoError(t, err)
		assert.Equal(t, "b.json", path)
	})

	t.Run("first existing default", func(t *testing.T) {
		path, err := FindConfigPath(nil, -1, "", defaults)
		require.NoError(t, err)
		assert.Equal(t, existing, path)
	})

	t.Run("nothing found", func(t *testing.T) {
		path, err := FindConfigPath(nil, -1, "", ConfigPaths{LocalLoc: filepath.Join(dir, "nope.json")})
		require.NoError(t, err)
		assert.Empty(t, path)
	})
}

func TestWriteJSONConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "pathutil")
	require.NoError(t, err)
	defer func() { require.NoError(t, os.RemoveAll(dir)) }()

	out := filepath.Join(dir, "nested", "conf.json")
	conf := map[string]int{"window": 10}

	require.NoError(t, WriteJSONConfig(conf, out, false))
	raw, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"window": 10}`, string(raw))

	require.Error(t, WriteJSONConfig(conf, out, false))
	require.NoError(t, WriteJSONConfig(map[string]int{"window": 5}, out, true))

	raw, err = ioutil.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"window": 5}`, string(raw))

	entries, err := ioutil.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConfigLocationType_Set(t *testing.T) {
	var lt ConfigLocationType
	require.NoError(t, lt.Set("HOME"))
	assert.Equal(t, HomeLoc, lt)
	require.Error(t, lt.Set("ELSEWHERE"))

	_, err := SimDefaults().Get(LocalLoc)
	require.NoError(t, err)
	_, err = ConfigPaths{}.Get(HomeLoc)
	require.Error(t, err)
}
