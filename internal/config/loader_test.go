package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, "/api/v2", cfg.APIV2Str)
	assert.Equal(t, "/compute", cfg.APIComputePrefix)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 100, cfg.MaxBatchInputs)
	assert.Equal(t, "compute", cfg.DefaultQueue)
	assert.Equal(t, []string{"RS256"}, cfg.Auth0Algorithms)
	assert.False(t, cfg.AuthConfigured())
	assert.Empty(t, cfg.JWTIssuer)
}

func TestLoadFrom_Environment(t *testing.T) {
	t.Setenv("MAX_BATCH_INPUTS", "25")
	t.Setenv("DEFAULT_QUEUE", "gpu")
	t.Setenv("AUTH0_DOMAIN", "tenant.us.auth0.com")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.MaxBatchInputs)
	assert.Equal(t, "gpu", cfg.DefaultQueue)
	assert.True(t, cfg.AuthConfigured())
	assert.Equal(t, "https://tenant.us.auth0.com/", cfg.JWTIssuer)
	assert.Equal(t, "https://tenant.us.auth0.com/.well-known/jwks.json", cfg.JWKSURL)
}

func TestLoadFrom_SecretsOverrideEnvironment(t *testing.T) {
	t.Setenv("AUTH0_CLIENT_SECRET", "from-env")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "AUTH0_CLIENT_SECRET"), []byte("from-file\n"), 0o600))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth0ClientSecret, "mounted secrets win, trailing whitespace trimmed")
}

func TestLoadFrom_MissingSecretsDirIsFine(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadFrom_RejectsNonPositiveBatchLimit(t *testing.T) {
	t.Setenv("MAX_BATCH_INPUTS", "0")

	_, err := LoadFrom("")
	require.Error(t, err)
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"RS256"}, splitList("RS256"))
	assert.Equal(t, []string{"RS256", "ES256"}, splitList("RS256, ES256,"))
}
