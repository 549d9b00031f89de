package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadParsesKnownKeys(t *testing.T) {
	path := writeTestConfig(t, "# a comment\n\nWHIP_ENDPOINT_URL=https://example.com/whip\nBEARER_TOKEN=secret%20token\nLOG_LEVEL=debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/whip", cfg.Session.EndpointURL)
	require.Equal(t, "secret token", cfg.Session.BearerToken)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsMissingEndpoint(t *testing.T) {
	path := writeTestConfig(t, "BEARER_TOKEN=abc\n")
	_, err := Load(path)
	require.Error(t, err)
}
