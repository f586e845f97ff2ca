package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestStart_InvalidPort(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "app-key")
	for _, port := range []string{"0", "70000"} {
		out, err := execute(t, "start", "--port", port)
		require.Error(t, err, "port %s", port)
		assert.Contains(t, err.Error(), "invalid port")
		assert.Contains(t, out, "invalid port")
	}
}

func TestStart_NonNumericPort(t *testing.T) {
	_, err := execute(t, "start", "--port", "abc")
	require.Error(t, err)
}

func TestStart_InvalidCORSOrigin(t *testing.T) {
	t.Setenv("DIFY_API_KEY", "app-key")
	_, err := execute(t, "start", "--cors-origin", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cors origin")
}

func TestStart_FlagsHaveEnvDefaults(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8080")
	cmd := newStartCmd()

	host, err := cmd.Flags().GetString("host")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", host)

	port, err := cmd.Flags().GetInt("port")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)
}
