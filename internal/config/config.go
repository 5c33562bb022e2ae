package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrSnakeDoc/cowrite/internal/policy"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Suggestion policy, from COWRITE_* variables, optionally overridden by PolicyFile
	Policy               policy.Policy
	PolicyFile           string         // optional YAML overrides, reloaded periodically
	PolicyReloadInterval time.Duration  // default: 5m
	QuotaLocation        *time.Location // quota day boundary, fixed at startup
	SessionIdleTTL       time.Duration  // sessions without edits for this long are ended
	ReaperInterval       time.Duration  // how often idle sessions are swept
	EventBuffer          int            // per-subscriber event buffer

	StoreBackend string // "redis" | "memory"
	UserHeader   string // header carrying the authenticated user id

	// Evidence retrieval
	SearchProvider     string // "http" | "static" | "none"
	SearchEndpoint     string
	SearchAPIKey       string
	SearchAPIKeyHeader string
	SearchResultsPath  string // gjson path to the result array
	SearchTitlePath    string
	SearchURLPath      string
	SearchAuthorPath   string
	SearchDatePath     string
	SearchTimeout      time.Duration
	EvidenceCacheSize  int
	EvidenceCacheTTL   time.Duration

	// Continuation generator
	GeneratorProvider    string // "openai" | "gemini" | "mock"
	GeneratorAPIKey      string
	GeneratorModel       string
	GeneratorBaseURL     string // optional, for OpenAI compatible gateways
	GeneratorTemperature float64
	GeneratorMaxTokens   int
	GeneratorTimeout     time.Duration

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedHosts      []string // optional, restrict access to specific Host headers
	AllowedCIDRS      []string // optional, restrict operational endpoints to these networks
	TrustProxy        bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	CORSOrigins       []string // origins allowed to call the editor API
	RateLimitBurst    int      // editor API requests a client may burst
	RateLimitPerMin   int      // editor API token refill per client per minute
	RateLimitMaxIPs   int      // cap on tracked clients
	RateLimitIdleTTL  time.Duration
	RateLimitSweepInt time.Duration
}

// defaultModels is used when COWRITE_GENERATOR_MODEL is unset.
var defaultModels = map[string]string{
	"openai": "gpt-4o-mini",
	"gemini": "gemini-2.5-flash",
}

func Load() *Config {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("COWRITE_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("COWRITE_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("COWRITE_LOG_LEVEL", "info"),
		PrettyLog: mustBool("COWRITE_PRETTY_LOG", false),

		// Suggestion policy
		Policy:               loadPolicy(),
		PolicyFile:           getenv("COWRITE_POLICY_FILE", ""),
		PolicyReloadInterval: mustDuration("COWRITE_POLICY_RELOAD_INTERVAL", 5*time.Minute),
		QuotaLocation:        mustLocation("COWRITE_QUOTA_TIMEZONE", "UTC"),
		SessionIdleTTL:       mustDuration("COWRITE_SESSION_IDLE_TTL", 30*time.Minute),
		ReaperInterval:       mustDuration("COWRITE_REAPER_INTERVAL", time.Minute),
		EventBuffer:          getenvInt("COWRITE_EVENT_BUFFER", 32),

		StoreBackend: strings.ToLower(getenv("COWRITE_STORE", StoreRedis)),
		UserHeader:   getenv("COWRITE_USER_HEADER", "X-User-ID"),

		// Evidence retrieval
		SearchProvider:     strings.ToLower(getenv("COWRITE_SEARCH_PROVIDER", "http")),
		SearchEndpoint:     getenv("COWRITE_SEARCH_ENDPOINT", ""),
		SearchAPIKey:       getenv("COWRITE_SEARCH_API_KEY", ""),
		SearchAPIKeyHeader: getenv("COWRITE_SEARCH_API_KEY_HEADER", "X-API-Key"),
		SearchResultsPath:  getenv("COWRITE_SEARCH_RESULTS_PATH", "results"),
		SearchTitlePath:    getenv("COWRITE_SEARCH_TITLE_PATH", "title"),
		SearchURLPath:      getenv("COWRITE_SEARCH_URL_PATH", "url"),
		SearchAuthorPath:   getenv("COWRITE_SEARCH_AUTHOR_PATH", "author"),
		SearchDatePath:     getenv("COWRITE_SEARCH_DATE_PATH", "published_date"),
		SearchTimeout:      mustDuration("COWRITE_SEARCH_TIMEOUT", 8*time.Second),
		EvidenceCacheSize:  getenvInt("COWRITE_EVIDENCE_CACHE_SIZE", 512),
		EvidenceCacheTTL:   mustDuration("COWRITE_EVIDENCE_CACHE_TTL", 6*time.Hour),

		// Continuation generator
		GeneratorProvider:    strings.ToLower(getenv("COWRITE_GENERATOR", "openai")),
		GeneratorAPIKey:      getenv("COWRITE_GENERATOR_API_KEY", ""),
		GeneratorModel:       getenv("COWRITE_GENERATOR_MODEL", ""),
		GeneratorBaseURL:     getenv("COWRITE_GENERATOR_BASE_URL", ""),
		GeneratorTemperature: getenvFloat("COWRITE_GENERATOR_TEMPERATURE", 0.7),
		GeneratorMaxTokens:   getenvInt("COWRITE_GENERATOR_MAX_TOKENS", 160),
		GeneratorTimeout:     mustDuration("COWRITE_GENERATOR_TIMEOUT", 20*time.Second),

		// Redis settings
		RedisUser:             getenv("COWRITE_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("COWRITE_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("COWRITE_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("COWRITE_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts:      splitAndTrim(getenv("COWRITE_ALLOWED_HOSTS", "")),
		AllowedCIDRS:      splitAndTrim(getenv("COWRITE_ALLOWED_CIDRS", "")),
		TrustProxy:        mustBool("COWRITE_TRUST_PROXY", true),
		CORSOrigins:       splitAndTrim(getenv("COWRITE_CORS_ORIGINS", "")),
		RateLimitBurst:    getenvInt("COWRITE_RATE_LIMIT_BURST", 60),
		RateLimitPerMin:   getenvInt("COWRITE_RATE_LIMIT_PER_MIN", 240),
		RateLimitMaxIPs:   getenvInt("COWRITE_RATE_LIMIT_MAX_IPS", 10000),
		RateLimitIdleTTL:  mustDuration("COWRITE_RATE_LIMIT_IDLE_TTL", 15*time.Minute),
		RateLimitSweepInt: mustDuration("COWRITE_RATE_LIMIT_SWEEP", time.Minute),
	}

	if cfg.GeneratorModel == "" {
		cfg.GeneratorModel = defaultModels[cfg.GeneratorProvider]
	}

	switch cfg.StoreBackend {
	case StoreRedis:
		cfg.RedisAddr = requireEnv("COWRITE_REDIS_ADDR")
		// Validate Redis password configuration
		if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
			panic("❌ FATAL: COWRITE_REDIS_PASSWORD is required when COWRITE_REDIS_PASSWORD_REQUIRED=true")
		}
	case StoreMemory:
	default:
		panic(fmt.Sprintf("❌ FATAL: COWRITE_STORE must be %q or %q, got %q", StoreRedis, StoreMemory, cfg.StoreBackend))
	}

	if err := cfg.Policy.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: invalid suggestion policy: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.SearchAPIKey = redact(cfg.SearchAPIKey)
		cfgCopy.GeneratorAPIKey = redact(cfg.GeneratorAPIKey)
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

func loadPolicy() policy.Policy {
	def := policy.Default()
	return policy.Policy{
		MinWordCount:        getenvInt("COWRITE_MIN_WORD_COUNT", def.MinWordCount),
		Debounce:            mustDuration("COWRITE_DEBOUNCE", def.Debounce),
		ConfidenceThreshold: getenvFloat("COWRITE_CONFIDENCE_THRESHOLD", def.ConfidenceThreshold),
		DailyQuota:          getenvInt("COWRITE_DAILY_QUOTA", def.DailyQuota),
		EvidenceK:           getenvInt("COWRITE_EVIDENCE_K", def.EvidenceK),
		SuggestionTTL:       mustDuration("COWRITE_SUGGESTION_TTL", def.SuggestionTTL),
		QueryMaxWords:       getenvInt("COWRITE_QUERY_MAX_WORDS", def.QueryMaxWords),
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***REDACTED***"
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// mustLocation resolves the quota timezone once. An unknown zone is fatal
// because the day boundary must never be ambiguous.
func mustLocation(key, def string) *time.Location {
	name := getenv(key, def)
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid timezone for %s: %s", key, name))
	}
	return loc
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
