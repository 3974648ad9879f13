package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ApplicationName identifies portal connections in pg_stat_activity, CLIENT LIST
// and the mongo server log.
const ApplicationName = "plantops-portal"

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	// StatementTimeout caps every statement server-side. Zero leaves the server default.
	StatementTimeout time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type SecurityConfig struct {
	DeviceSecret string
	DeviceCookie string
	DeviceTTL    time.Duration
	SecureCookie bool
}

type SessionConfig struct {
	// Backend is "redis", "postgres" or "memory".
	Backend       string
	TTL           time.Duration
	UpgradeHashes bool
}

type CredentialsConfig struct {
	// Backend is "kv", "postgres" or "mongo".
	Backend string
}

type GuardConfig struct {
	LoginPath             string
	RedirectAuthenticated bool
	RetryAfter            time.Duration
}

type AuditConfig struct {
	Enabled       bool
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	MaxLen        int64
}

type BackupConfig struct {
	Enabled  bool
	Schedule string
	Bucket   string
}

type BootstrapConfig struct {
	AdminUsername string
	AdminNIK      string
	AdminPassword string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Mongo            MongoConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Session          SessionConfig
	Credentials      CredentialsConfig
	Guard            GuardConfig
	Audit            AuditConfig
	Backup           BackupConfig
	Bootstrap        BootstrapConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("PLANTOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects backend names and settings the portal cannot start with.
func (c *AppConfig) Validate() error {
	switch c.Session.Backend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("session.backend %q: want redis, postgres or memory", c.Session.Backend)
	}
	switch c.Credentials.Backend {
	case "kv", "postgres", "mongo":
	default:
		return fmt.Errorf("credentials.backend %q: want kv, postgres or mongo", c.Credentials.Backend)
	}
	if (c.Credentials.Backend == "postgres" || c.Session.Backend == "postgres") && c.Postgres.DSN == "" {
		return errors.New("postgres backends need postgres.dsn")
	}
	if c.Credentials.Backend == "mongo" && c.Mongo.URI == "" {
		return errors.New("credentials.backend mongo needs mongo.uri")
	}
	if c.Audit.Enabled && c.Audit.Stream == "" {
		return errors.New("audit.stream is required when audit is enabled")
	}
	if c.Environment == "production" && c.Security.DeviceSecret == "" {
		return errors.New("security.devicesecret is required in production")
	}
	if !strings.HasPrefix(c.Guard.LoginPath, "/") {
		return fmt.Errorf("guard.loginpath %q must be absolute", c.Guard.LoginPath)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.connecttimeout", "10s")
	v.SetDefault("postgres.statementtimeout", "5s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dialtimeout", "5s")
	v.SetDefault("redis.readtimeout", "3s")
	v.SetDefault("redis.writetimeout", "3s")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "plantops")
	v.SetDefault("mongo.connecttimeout", "10s")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.devicesecret", "")
	v.SetDefault("security.devicecookie", "plantops_device")
	v.SetDefault("security.devicettl", "8760h") // one year
	v.SetDefault("security.securecookie", false)

	v.SetDefault("session.backend", "redis")
	v.SetDefault("session.ttl", "12h")
	v.SetDefault("session.upgradehashes", true)

	v.SetDefault("credentials.backend", "kv")

	v.SetDefault("guard.loginpath", "/login")
	v.SetDefault("guard.redirectauthenticated", false)
	v.SetDefault("guard.retryafter", "5s")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.stream", "auth:events")
	v.SetDefault("audit.group", "auditors")
	v.SetDefault("audit.consumer", "auditor-1")
	v.SetDefault("audit.claiminterval", "30s")
	v.SetDefault("audit.maxlen", 100000)

	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.schedule", "0 0 2 * * *")
	v.SetDefault("backup.bucket", "plantops-backups")

	v.SetDefault("bootstrap.adminusername", "")
	v.SetDefault("bootstrap.adminnik", "")
	v.SetDefault("bootstrap.adminpassword", "")

	v.SetDefault("allowcorsorigins", []string{})
}
