package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	// AuthMode is "none" or "token". Token mode verifies bearer tokens
	// against APITokens entries of the form token:subject[:role].
	AuthMode  string
	APITokens string

	// EsignEnv selects the challenge code source: "production" uses random
	// codes, anything else runs the deterministic demo source.
	EsignEnv string

	CertIssuer    string
	VerifyBaseURL string

	ChallengeTTLMinutes int
	OTPMaxAttempts      int
	SweepIntervalSecs   int

	PolicyBundlePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:            addr,
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		LogLevel:            envDefault("LOG_LEVEL", "info"),
		AuthMode:            envDefault("AUTH_MODE", "none"),
		APITokens:           os.Getenv("API_TOKENS"),
		EsignEnv:            envDefault("ESIGN_ENV", "demo"),
		CertIssuer:          envDefault("CERT_ISSUER", "esignd"),
		VerifyBaseURL:       envDefault("VERIFY_BASE_URL", "http://localhost:8080/verify-signature"),
		ChallengeTTLMinutes: envIntDefault("CHALLENGE_TTL_MINUTES", 10),
		OTPMaxAttempts:      envIntDefault("OTP_MAX_ATTEMPTS", 3),
		SweepIntervalSecs:   envIntDefault("EXPIRY_SWEEP_SECONDS", 60),
		PolicyBundlePath:    os.Getenv("POLICY_BUNDLE_PATH"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             envIntDefault("REDIS_DB", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) ChallengeTTL() time.Duration {
	if c.ChallengeTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.ChallengeTTLMinutes) * time.Minute
}

func (c Config) SweepInterval() time.Duration {
	if c.SweepIntervalSecs <= 0 {
		return time.Minute
	}
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

func (c Config) Production() bool {
	return c.EsignEnv == "production"
}
