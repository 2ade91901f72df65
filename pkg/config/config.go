package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	LogLevel    string

	DatabaseURL  string // empty runs on the in-memory stores
	RedisURL     string
	OTLPEndpoint string

	JWTSecret        string
	BcryptCost       int
	LockoutThreshold int
	LockoutDuration  time.Duration
	SessionTTLOwner  time.Duration
	SessionTTLAdmin  time.Duration
	SessionTTLUser   time.Duration

	AllocatorMaxAttempts int
	VisaNumberPrefix     string
	IssuanceStatuses     []string

	UploadDir      string
	UploadMaxBytes int64
	ArtifactDir    string
	CompanyName    string

	RenderQueue         string // redis or memory
	RenderSweepInterval time.Duration

	PublicRatePerMinute int
	PublicRateBurst     int
	CORSAllowedOrigins  []string

	OwnerEmail    string
	OwnerPassword string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var errs []error
	intEnv := func(key string, def int) int {
		v, err := strconv.Atoi(getEnv(key, strconv.Itoa(def)))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return v
	}
	durationEnv := func(key string, def time.Duration) time.Duration {
		v, err := time.ParseDuration(getEnv(key, def.String()))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		} else if v <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: must be positive", key))
		}
		return v
	}

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		ServerPort:   intEnv("SERVER_PORT", 8080),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		BcryptCost:       intEnv("BCRYPT_COST", 12),
		LockoutThreshold: intEnv("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:  time.Duration(intEnv("LOCKOUT_MINUTES", 15)) * time.Minute,
		SessionTTLOwner:  durationEnv("SESSION_TTL_OWNER", time.Hour),
		SessionTTLAdmin:  durationEnv("SESSION_TTL_ADMIN", 8*time.Hour),
		SessionTTLUser:   durationEnv("SESSION_TTL_USER", 8*time.Hour),

		AllocatorMaxAttempts: intEnv("ALLOCATOR_MAX_ATTEMPTS", 10),
		VisaNumberPrefix:     getEnv("VISA_NUMBER_PREFIX", "VN"),
		IssuanceStatuses:     parseCSVEnv("ISSUANCE_STATUSES", []string{"Issued"}),

		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		UploadMaxBytes: int64(intEnv("UPLOAD_MAX_BYTES", 5<<20)),
		ArtifactDir:    getEnv("ARTIFACT_DIR", "./generated-visas"),
		CompanyName:    os.Getenv("COMPANY_NAME"),

		RenderQueue:         strings.ToLower(getEnv("RENDER_QUEUE", "redis")),
		RenderSweepInterval: time.Duration(intEnv("RENDER_SWEEP_MINUTES", 5)) * time.Minute,

		PublicRatePerMinute: intEnv("PUBLIC_RATE_PER_MINUTE", 30),
		PublicRateBurst:     intEnv("PUBLIC_RATE_BURST", 10),
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),

		OwnerEmail:    os.Getenv("OWNER_EMAIL"),
		OwnerPassword: os.Getenv("OWNER_PASSWORD"),
	}

	if cfg.RenderQueue != "redis" && cfg.RenderQueue != "memory" {
		errs = append(errs, fmt.Errorf("invalid RENDER_QUEUE %q: want redis or memory", cfg.RenderQueue))
	}
	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			errs = append(errs, fmt.Errorf("JWT_SECRET is required in production"))
		}
		cfg.JWTSecret = "dev-only-secret"
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return cfg, nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
