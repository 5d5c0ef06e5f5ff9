package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSecretsDir is read in preference to the environment when it
// exists (docker secrets mount).
const DefaultSecretsDir = "/var/secrets"

// Load resolves the configuration from the environment, an optional .env
// file, and the mounted secrets directory. Secrets take precedence over
// environment variables.
func Load() (*Config, error) {
	return LoadFrom(DefaultSecretsDir)
}

// LoadFrom is Load with an explicit secrets directory, for tests.
func LoadFrom(secretsDir string) (*Config, error) {
	// Missing .env is fine; the environment is the primary source.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := applySecrets(v, secretsDir); err != nil {
		return nil, err
	}

	cfg := &Config{
		APIV2Str:              v.GetString("api_v2_str"),
		APIComputePrefix:      v.GetString("api_compute_prefix"),
		APIOAuthPrefix:        v.GetString("api_oauth_prefix"),
		UsersPrefix:           v.GetString("users_prefix"),
		BaseURL:               v.GetString("base_url"),
		Host:                  v.GetString("host"),
		Port:                  v.GetInt("port"),
		MaxBatchInputs:        v.GetInt("max_batch_inputs"),
		Auth0Domain:           v.GetString("auth0_domain"),
		Auth0ClientID:         v.GetString("auth0_client_id"),
		Auth0ClientSecret:     v.GetString("auth0_client_secret"),
		Auth0APIAudience:      v.GetString("auth0_api_audience"),
		Auth0Algorithms:       splitList(v.GetString("auth0_algorithms")),
		IDTokenCookieKey:      v.GetString("id_token_cookie_key"),
		RefreshTokenCookieKey: v.GetString("refresh_token_cookie_key"),
		BrokerURL:             v.GetString("broker_url"),
		BackendURL:            v.GetString("backend_url"),
		DefaultQueue:          v.GetString("default_queue"),
		LogLevel:              v.GetString("log_level"),
		LogFormat:             v.GetString("log_format"),
	}

	if cfg.MaxBatchInputs < 1 {
		return nil, fmt.Errorf("max_batch_inputs must be positive, got %d", cfg.MaxBatchInputs)
	}

	if cfg.Auth0Domain != "" {
		cfg.JWTIssuer = fmt.Sprintf("https://%s/", cfg.Auth0Domain)
		cfg.JWKSURL = fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_v2_str", "/api/v2")
	v.SetDefault("api_compute_prefix", "/compute")
	v.SetDefault("api_oauth_prefix", "/oauth")
	v.SetDefault("users_prefix", "/users")
	v.SetDefault("base_url", "http://localhost:8000")
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 8000)
	v.SetDefault("max_batch_inputs", 100)
	v.SetDefault("auth0_algorithms", "RS256")
	v.SetDefault("id_token_cookie_key", "id_token")
	v.SetDefault("refresh_token_cookie_key", "refresh_token")
	v.SetDefault("broker_url", "redis://localhost:6379/0")
	v.SetDefault("backend_url", "redis://localhost:6379/0")
	v.SetDefault("default_queue", "compute")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// applySecrets overrides viper values from files in dir, one file per
// key, filename lowercased to the config key. A missing dir is not an
// error.
func applySecrets(v *viper.Viper, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read secrets dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read secret %s: %w", e.Name(), err)
		}
		v.Set(strings.ToLower(e.Name()), strings.TrimSpace(string(data)))
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
