package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/WillDent/guess-that-tune/go/internal/realtime/natschannel"
	"github.com/WillDent/guess-that-tune/go/internal/room"
)

type Config struct {
	Server ServerConfig       `yaml:"server"`
	Room   room.Config        `yaml:"room"`
	NATS   natschannel.Config `yaml:"nats"`
	Redis  RedisConfig        `yaml:"redis"`
	Auth   AuthConfig         `yaml:"auth"`
	Log    LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CodeTTL  time.Duration `yaml:"code_ttl"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	Issuer        string        `yaml:"issuer"`
	GuestTokenTTL time.Duration `yaml:"guest_token_ttl"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Room: room.DefaultConfig(),
		NATS: natschannel.DefaultConfig(),
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			CodeTTL: 12 * time.Hour,
		},
		Auth: AuthConfig{
			Issuer:        "guess-that-tune",
			GuestTokenTTL: 6 * time.Hour,
		},
		Log: LogConfig{Level: "info", Console: true},
	}
}

// Load reads the YAML file named by CONFIG_PATH (default config.yaml) over
// the defaults, then applies environment overrides. A missing default file
// is not an error.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Room.PointsPerCorrect = getEnvAsInt("POINTS_PER_CORRECT", cfg.Room.PointsPerCorrect)
}

func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (JWT_SECRET) is required")
	}
	if c.Room.PointsPerCorrect < 0 {
		return fmt.Errorf("room.points_per_correct must not be negative, got %d", c.Room.PointsPerCorrect)
	}
	if c.NATS.PresenceInterval <= 0 {
		return fmt.Errorf("nats.presence_interval must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return nil
}

// SetupLogging configures the global zerolog logger.
func SetupLogging(cfg LogConfig) {
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
