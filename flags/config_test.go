package flags

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lancao008/google-pay/iap"
)

func writeEnvFile(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(writeEnvFile(t, ""))
	require.NoError(t, err)
	require.Equal(t, Default(), c)
	require.Equal(t, iap.APIVersion, c.APIVersion)
	require.Empty(t, c.Target)
	require.Zero(t, c.SkuCacheTTL)
}

func TestLoad_EnvFile(t *testing.T) {
	path := writeEnvFile(t, `
IAB_TARGET=localhost:9000
IAB_PACKAGE_NAME=com.example.game
IAB_PUBLIC_KEY=MCowBQYDK2VwAyEA
IAB_API_VERSION=5
IAB_PAGE_SIZE=10
IAB_LISTEN_ADDRESS=:9000
IAB_SKU_CACHE_TTL=90s
`)

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "localhost:9000", c.Target)
	require.Equal(t, "com.example.game", c.PackageName)
	require.Equal(t, "MCowBQYDK2VwAyEA", c.PublicKey)
	require.Equal(t, 5, c.APIVersion)
	require.Equal(t, 10, c.PageSize)
	require.Equal(t, ":9000", c.ListenAddress)
	require.Equal(t, 90*time.Second, c.SkuCacheTTL)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeEnvFile(t, "IAB_TARGET=from-file:1\nIAB_PAGE_SIZE=10\n")
	t.Setenv(EnvTarget, "from-env:1")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env:1", c.Target)
	require.Equal(t, 10, c.PageSize)

	// An explicitly empty target disables the provider.
	t.Setenv(EnvTarget, "")
	c, err = Load(path)
	require.NoError(t, err)
	require.Empty(t, c.Target)
}

func TestLoad_Invalid(t *testing.T) {
	for _, contents := range []string{
		"IAB_API_VERSION=three",
		"IAB_PAGE_SIZE=0",
		"IAB_PAGE_SIZE=-1",
		"IAB_SKU_CACHE_TTL=soon",
	} {
		_, err := Load(writeEnvFile(t, contents))
		require.Error(t, err, contents)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
