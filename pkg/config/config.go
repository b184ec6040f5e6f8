package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MERAKI_DB_DSN"
	EnvDBHost = "MERAKI_DB_HOST"
	EnvDBUser = "MERAKI_DB_USER"
	EnvDBName = "MERAKI_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Guest         GuestConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Janitor       JanitorConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MERAKI_APP_ENV" required:"true"`
	Port         string `envconfig:"MERAKI_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MERAKI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MERAKI_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MERAKI_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MERAKI_DB_DSN"`
	Driver string `envconfig:"MERAKI_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MERAKI_DB_HOST"`
	LegacyPort     int    `envconfig:"MERAKI_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MERAKI_DB_USER"`
	LegacyPassword string `envconfig:"MERAKI_DB_PASSWORD"`
	LegacyName     string `envconfig:"MERAKI_DB_NAME"`
	LegacySSLMode  string `envconfig:"MERAKI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MERAKI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MERAKI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MERAKI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MERAKI_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MERAKI_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MERAKI_REDIS_ADDR"`
	Password     string        `envconfig:"MERAKI_REDIS_PASSWORD"`
	DB           int           `envconfig:"MERAKI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MERAKI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MERAKI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MERAKI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MERAKI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MERAKI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"MERAKI_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"MERAKI_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"MERAKI_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"MERAKI_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

// GuestConfig controls the long-lived anonymous-visitor cookie used to key guest carts.
type GuestConfig struct {
	CookieName   string        `envconfig:"MERAKI_GUEST_COOKIE_NAME" default:"meraki_guest"`
	CookieTTL    time.Duration `envconfig:"MERAKI_GUEST_COOKIE_TTL" default:"720h"`
	CookieSecure bool          `envconfig:"MERAKI_GUEST_COOKIE_SECURE" default:"false"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MERAKI_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MERAKI_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MERAKI_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MERAKI_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MERAKI_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"MERAKI_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"MERAKI_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"MERAKI_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"MERAKI_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"MERAKI_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"MERAKI_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MERAKI_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MERAKI_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MERAKI_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MERAKI_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"MERAKI_PUBSUB_ORDERS_TOPIC" default:"meraki-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MERAKI_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MERAKI_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MERAKI_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// JanitorConfig controls the background cleanup loop. Enabled defaults
// off so the loop only runs where it is deliberately turned on.
type JanitorConfig struct {
	Enabled         bool          `envconfig:"MERAKI_JANITOR_ENABLED" default:"false"`
	Interval        time.Duration `envconfig:"MERAKI_JANITOR_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"MERAKI_JANITOR_LOCK_TTL" default:"2h"`
	GuestCartGrace  time.Duration `envconfig:"MERAKI_JANITOR_GUEST_CART_GRACE" default:"168h"`
	OutboxRetention time.Duration `envconfig:"MERAKI_JANITOR_OUTBOX_RETENTION" default:"168h"`
}

// GuestCartMaxIdle is how long a guest cart may go untouched before
// the sweep removes it: the cookie TTL plus a grace window.
func (j JanitorConfig) GuestCartMaxIdle(cookieTTL time.Duration) time.Duration {
	return cookieTTL + j.GuestCartGrace
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
