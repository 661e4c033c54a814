package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppConfig struct {
	App struct {
		Name      string `mapstructure:"NAME"`
		Port      string `mapstructure:"PORT"`
		NodeID    string `mapstructure:"NODE_ID"`
		PublicURL string `mapstructure:"PUBLIC_URL"`
		LogLevel  string `mapstructure:"LOG_LEVEL"`
	}

	DATABASE struct {
		Driver   string `mapstructure:"DRIVER"`
		Postgres struct {
			DSN string `mapstructure:"URL"`
		}
		Sqlite struct {
			Path string `mapstructure:"PATH"`
		}
		Redis struct {
			Addr     string `mapstructure:"ADDR"`
			Password string `mapstructure:"PASSWORD"`
		}
		Mongo struct {
			Url      string `mapstructure:"URL"`
			Database string `mapstructure:"DATABASE"`
		}
	}

	PRESENCE struct {
		Backend       string        `mapstructure:"BACKEND"`
		Window        time.Duration `mapstructure:"WINDOW"`
		SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
	}

	RELAY struct {
		HistoryLimit  int    `mapstructure:"HISTORY_LIMIT"`
		MaxPending    int    `mapstructure:"MAX_PENDING"`
		Bridge        string `mapstructure:"BRIDGE"`
		NatsURL       string `mapstructure:"NATS_URL"`
		MigrateOnBoot bool   `mapstructure:"MIGRATE_ON_BOOT"`
	}

	STORAGE struct {
		Backend        string `mapstructure:"BACKEND"`
		Dir            string `mapstructure:"DIR"`
		MaxAvatarBytes int64  `mapstructure:"MAX_AVATAR_BYTES"`
	}

	JWT struct {
		PublicKeyPath  string        `mapstructure:"PUBLIC_KEY_PATH"`
		PrivateKeyPath string        `mapstructure:"PRIVATE_KEY_PATH"`
		DevTokens      bool          `mapstructure:"DEV_TOKENS"`
		DevTokenTTL    time.Duration `mapstructure:"DEV_TOKEN_TTL"`
	}

	WORKER struct {
		Count int `mapstructure:"COUNT"`
	}

	MAILTRAP struct {
		SMTPHost string `mapstructure:"SMTP_HOST"`
		SMTPPort int    `mapstructure:"SMTP_PORT"`
		Username string `mapstructure:"USERNAME"`
		Password string `mapstructure:"PASSWORD"`
		From     string `mapstructure:"FROM"`
	}
}

var Conf *AppConfig

var defaults = map[string]any{
	"app.name":                 "musori",
	"app.port":                 ":3001",
	"app.node_id":              "",
	"app.public_url":           "http://localhost:3001",
	"app.log_level":            "info",
	"database.driver":          "sqlite",
	"database.postgres.url":    "",
	"database.sqlite.path":     "musori.db",
	"database.redis.addr":      "",
	"database.redis.password":  "",
	"database.mongo.url":       "",
	"database.mongo.database":  "chat_collection",
	"presence.backend":         "memory",
	"presence.window":          5 * time.Minute,
	"presence.sweep_interval":  30 * time.Second,
	"relay.history_limit":      50,
	"relay.max_pending":        256,
	"relay.bridge":             "none",
	"relay.nats_url":           "nats://127.0.0.1:4222",
	"relay.migrate_on_boot":    false,
	"storage.backend":          "fs",
	"storage.dir":              "avatars",
	"storage.max_avatar_bytes": 5 << 20,
	"jwt.public_key_path":      "public.pem",
	"jwt.private_key_path":     "",
	"jwt.dev_tokens":           false,
	"jwt.dev_token_ttl":        time.Hour,
	"worker.count":             5,
	"mailtrap.smtp_host":       "",
	"mailtrap.smtp_port":       587,
	"mailtrap.username":        "",
	"mailtrap.password":        "",
	"mailtrap.from":            "no-reply@musori.local",
}

// LoadConfig reads application.yaml from the given directories (the working directory when none
// are given). A missing file is fine: defaults and CHATAPP_* variables still apply.
func LoadConfig(paths ...string) error {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("CHATAPP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Warn().Msg("application.yaml not found, using defaults and environment")
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return err
	}

	Conf = &config
	log.Info().Msg("configuration loaded...")
	return nil
}

func (c *AppConfig) validate() error {
	switch c.DATABASE.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DATABASE.Driver)
	}
	if c.PRESENCE.Window <= 0 {
		return fmt.Errorf("presence window must be positive, got %s", c.PRESENCE.Window)
	}
	switch c.PRESENCE.Backend {
	case "memory":
	case "redis":
		if c.DATABASE.Redis.Addr == "" {
			return fmt.Errorf("presence backend redis requires database.redis.addr")
		}
	default:
		return fmt.Errorf("unsupported presence backend %q", c.PRESENCE.Backend)
	}
	switch c.RELAY.Bridge {
	case "none", "nats":
	case "redis":
		if c.DATABASE.Redis.Addr == "" {
			return fmt.Errorf("relay bridge redis requires database.redis.addr")
		}
	default:
		return fmt.Errorf("unsupported relay bridge %q", c.RELAY.Bridge)
	}
	switch c.STORAGE.Backend {
	case "fs":
	case "gridfs":
		if c.DATABASE.Mongo.Url == "" {
			return fmt.Errorf("storage backend gridfs requires database.mongo.url")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.STORAGE.Backend)
	}
	if c.JWT.DevTokens && c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("jwt.dev_tokens requires jwt.private_key_path")
	}
	return nil
}
