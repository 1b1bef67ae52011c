package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Log       LogConfig
	Store     StoreConfig
	Redis     RedisConfig
	Proxy     ProxyConfig
	Brute     BruteForceConfig
	NotFound  NotFoundConfig
	Rate      RateConfig
	WAF       WAFConfig
	Antispam  AntispamConfig
	TwoFactor TwoFactorConfig
	Alert     AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AuthConfig struct {
	// MasterSecret is the root key. Token signing, backup code hashing and
	// secret encryption keys are derived from it.
	MasterSecret      string
	AccessTokenExpiry time.Duration
	CleanupInterval   time.Duration
}

type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type StoreConfig struct {
	Backend   string
	Timeout   time.Duration
	KeyPrefix string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ProxyConfig struct {
	// TrustedProxies is newline-delimited matcher rules
	TrustedProxies string
}

// Window is the shared counting configuration of a policy
type Window struct {
	Threshold    int
	Window       time.Duration
	LockDuration time.Duration
}

type BruteForceConfig struct {
	Enabled   bool
	Window    Window
	AllowList string
	// FailureDelayMin and FailureDelayMax bound the random delay after a failed login
	FailureDelayMin time.Duration
	FailureDelayMax time.Duration
}

type NotFoundConfig struct {
	Enabled        bool
	Window         Window
	AllowList      string
	SampleEvery    int
	IgnorePrefixes []string
}

type RateConfig struct {
	Enabled   bool
	Login     Window
	TwoFactor Window
	XMLRPC    Window
	REST      Window
	// RESTExceptions are path prefixes never counted as REST traffic
	RESTExceptions []string
}

type WAFConfig struct {
	Enabled            bool
	AllowList          string
	UserAgentAllowList []string
	RulesFile          string
	MaxBodyBytes       int64
}

type AntispamConfig struct {
	Enabled    bool
	Window     Window
	MinSeconds time.Duration
	MaxLinks   int
	AllowList  string
}

type TwoFactorConfig struct {
	Issuer          string
	EnforcedRoles   []string
	BackupCodeCount int
	ChallengeExpiry time.Duration
}

type AlertConfig struct {
	Enabled   bool
	Region    string
	FromEmail string
	ToEmail   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	masterSecret := getEnv("MASTER_SECRET", "")
	if masterSecret == "" {
		return nil, fmt.Errorf("MASTER_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "rampart"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          env,
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			MasterSecret:      masterSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Minute),
		},
		Log: LogConfig{
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
		Store: StoreConfig{
			Backend:   strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
			Timeout:   getEnvAsDuration("STORE_TIMEOUT", 250*time.Millisecond),
			KeyPrefix: getEnv("STORE_KEY_PREFIX", "rampart"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Proxy: ProxyConfig{
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", ""),
		},
		Brute: BruteForceConfig{
			Enabled: getEnvAsBool("BRUTEFORCE_ENABLED", true),
			Window: Window{
				Threshold:    max(1, getEnvAsInt("BRUTEFORCE_THRESHOLD", 5)),
				Window:       getEnvAsDuration("BRUTEFORCE_WINDOW", 15*time.Minute),
				LockDuration: getEnvAsDuration("BRUTEFORCE_LOCK_DURATION", 15*time.Minute),
			},
			AllowList:       getEnvAsList("BRUTEFORCE_ALLOWLIST", ""),
			FailureDelayMin: getEnvAsDuration("BRUTEFORCE_DELAY_MIN", 120*time.Millisecond),
			FailureDelayMax: getEnvAsDuration("BRUTEFORCE_DELAY_MAX", 300*time.Millisecond),
		},
		NotFound: NotFoundConfig{
			Enabled: getEnvAsBool("NOTFOUND_ENABLED", true),
			Window: Window{
				Threshold:    max(3, getEnvAsInt("NOTFOUND_THRESHOLD", 12)),
				Window:       getEnvAsDuration("NOTFOUND_WINDOW", 2*time.Minute),
				LockDuration: getEnvAsDuration("NOTFOUND_LOCK_DURATION", 30*time.Minute),
			},
			AllowList:   getEnvAsList("NOTFOUND_ALLOWLIST", ""),
			SampleEvery: max(1, getEnvAsInt("NOTFOUND_SAMPLE_EVERY", 5)),
			IgnorePrefixes: splitCSV(getEnv("NOTFOUND_IGNORE_PATHS",
				"/favicon.ico,/robots.txt,/.well-known,/sitemap.xml,/sitemap_index.xml")),
		},
		Rate: RateConfig{
			Enabled: getEnvAsBool("RATE_ENABLED", true),
			Login: Window{
				Threshold:    max(5, getEnvAsInt("RATE_LOGIN_LIMIT", 40)),
				Window:       getEnvAsDuration("RATE_LOGIN_WINDOW", time.Minute),
				LockDuration: getEnvAsDuration("RATE_LOGIN_LOCK_DURATION", 5*time.Minute),
			},
			TwoFactor: Window{
				Threshold:    max(5, getEnvAsInt("RATE_2FA_LIMIT", 20)),
				Window:       getEnvAsDuration("RATE_2FA_WINDOW", time.Minute),
				LockDuration: getEnvAsDuration("RATE_2FA_LOCK_DURATION", 5*time.Minute),
			},
			XMLRPC: Window{
				Threshold:    max(10, getEnvAsInt("RATE_XMLRPC_LIMIT", 20)),
				Window:       getEnvAsDuration("RATE_XMLRPC_WINDOW", time.Minute),
				LockDuration: getEnvAsDuration("RATE_XMLRPC_LOCK_DURATION", 5*time.Minute),
			},
			REST: Window{
				Threshold:    max(30, getEnvAsInt("RATE_REST_LIMIT", 120)),
				Window:       getEnvAsDuration("RATE_REST_WINDOW", time.Minute),
				LockDuration: getEnvAsDuration("RATE_REST_LOCK_DURATION", 5*time.Minute),
			},
			RESTExceptions: splitCSV(getEnv("RATE_REST_EXCEPTIONS", "/api/v1/ping")),
		},
		WAF: WAFConfig{
			Enabled:            getEnvAsBool("WAF_ENABLED", true),
			AllowList:          getEnvAsList("WAF_ALLOWLIST", ""),
			UserAgentAllowList: splitCSV(getEnv("WAF_UA_ALLOWLIST", "")),
			RulesFile:          getEnv("WAF_RULES_FILE", ""),
			MaxBodyBytes:       int64(getEnvAsInt("WAF_MAX_BODY_BYTES", 64*1024)),
		},
		Antispam: AntispamConfig{
			Enabled: getEnvAsBool("ANTISPAM_ENABLED", true),
			Window: Window{
				Threshold:    max(1, getEnvAsInt("ANTISPAM_THRESHOLD", 10)),
				Window:       getEnvAsDuration("ANTISPAM_WINDOW", time.Hour),
				LockDuration: getEnvAsDuration("ANTISPAM_LOCK_DURATION", time.Hour),
			},
			MinSeconds: getEnvAsDuration("ANTISPAM_MIN_SECONDS", 8*time.Second),
			MaxLinks:   max(0, getEnvAsInt("ANTISPAM_MAX_LINKS", 2)),
			AllowList:  getEnvAsList("ANTISPAM_ALLOWLIST", ""),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          getEnv("TWOFA_ISSUER", "Rampart"),
			EnforcedRoles:   splitCSV(getEnv("TWOFA_ENFORCED_ROLES", "")),
			BackupCodeCount: max(1, getEnvAsInt("TWOFA_BACKUP_CODE_COUNT", 10)),
			ChallengeExpiry: getEnvAsDuration("TWOFA_CHALLENGE_EXPIRY", 5*time.Minute),
		},
		Alert: AlertConfig{
			Enabled:   getEnvAsBool("ALERT_ENABLED", false),
			Region:    getEnv("AWS_REGION", "us-east-1"),
			FromEmail: getEnv("ALERT_FROM_EMAIL", ""),
			ToEmail:   getEnv("ALERT_TO_EMAIL", ""),
		},
	}

	if cfg.Store.Backend == StorePostgres && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required for the postgres store")
	}

	switch cfg.Store.Backend {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be one of memory, redis, postgres (got %q)", cfg.Store.Backend)
	}

	if err := cfg.validateWindows(); err != nil {
		return nil, err
	}

	if cfg.Alert.Enabled && (cfg.Alert.FromEmail == "" || cfg.Alert.ToEmail == "") {
		return nil, fmt.Errorf("ALERT_FROM_EMAIL and ALERT_TO_EMAIL are required when ALERT_ENABLED is set")
	}

	if err := validateMasterSecret(masterSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// minWindow is the shortest counting window or lock a policy may use
const minWindow = time.Second

func (c *Config) validateWindows() error {
	windows := []struct {
		prefix string
		w      Window
	}{
		{"BRUTEFORCE", c.Brute.Window},
		{"NOTFOUND", c.NotFound.Window},
		{"RATE_LOGIN", c.Rate.Login},
		{"RATE_2FA", c.Rate.TwoFactor},
		{"RATE_XMLRPC", c.Rate.XMLRPC},
		{"RATE_REST", c.Rate.REST},
		{"ANTISPAM", c.Antispam.Window},
	}
	for _, w := range windows {
		if w.w.Window < minWindow {
			return fmt.Errorf("%s_WINDOW must be at least %s (got %s)", w.prefix, minWindow, w.w.Window)
		}
		if w.w.LockDuration < minWindow {
			return fmt.Errorf("%s_LOCK_DURATION must be at least %s (got %s)", w.prefix, minWindow, w.w.LockDuration)
		}
	}
	return nil
}

// validateMasterSecret enforces minimum security standards for the master secret
func validateMasterSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("MASTER_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("MASTER_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvAsList returns newline-delimited rule text; a literal "\n" or a comma
// also separates entries.
func getEnvAsList(key, defaultVal string) string {
	value := getEnv(key, defaultVal)
	value = strings.ReplaceAll(value, `\n`, "\n")
	return strings.ReplaceAll(value, ",", "\n")
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
