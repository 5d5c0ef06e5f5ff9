package config

// Config holds the process-wide settings. It is resolved once at startup
// by Load and never mutated afterwards; share it by reference.
type Config struct {
	// HTTP surface
	APIV2Str         string
	APIComputePrefix string
	APIOAuthPrefix   string
	UsersPrefix      string
	BaseURL          string
	Host             string
	Port             int

	// Submission limits
	MaxBatchInputs int

	// Auth0 / OIDC
	Auth0Domain           string
	Auth0ClientID         string
	Auth0ClientSecret     string
	Auth0APIAudience      string
	Auth0Algorithms       []string
	IDTokenCookieKey      string
	RefreshTokenCookieKey string

	// Derived from Auth0Domain during Load; empty when auth is not
	// configured (tests, local development).
	JWTIssuer string
	JWKSURL   string

	// Broker and result backend connection strings (redis URLs).
	BrokerURL  string
	BackendURL string

	// DefaultQueue is the routing key used when a submission does not
	// name one.
	DefaultQueue string

	// Logging
	LogLevel  string
	LogFormat string
}

// AuthConfigured reports whether JWT validation can be performed.
func (c *Config) AuthConfigured() bool {
	return c.Auth0Domain != ""
}
