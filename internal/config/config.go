package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type DatabaseOptions struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"editorial"`
}

func (d DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name,
	)
}

type ConsulOptions struct {
	Enabled     bool   `env:"CONSUL_ENABLED" envDefault:"false"`
	Address     string `env:"CONSUL_HTTP_ADDR" envDefault:"127.0.0.1:8500"`
	ServiceID   string `env:"CONSUL_SERVICE_ID" envDefault:"editorial-grid"`
	ServiceName string `env:"CONSUL_SERVICE_NAME" envDefault:"editorial-grid-service"`
	ServiceHost string `env:"CONSUL_SERVICE_HOST" envDefault:"localhost"`
}

type Configuration struct {
	Database DatabaseOptions
	Consul   ConsulOptions

	GrpcPort   int    `env:"GRPC_PORT" envDefault:"9096"`
	HTTPPort   int    `env:"HTTP_PORT" envDefault:"9097"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	AccessMode string `env:"ACCESS_MODE" envDefault:"enforce"`
	// New list-builder rows must belong to a user assigned to the stage.
	StrictNewRows bool `env:"STAGE_USERS_STRICT_NEW_ROWS" envDefault:"true"`

	logger *logrus.Logger
}

// LoadEnv loads whichever of the given env files exist and reports how many did.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads the env files, parses the environment and builds the logger.
func Load(envFiles ...string) (*Configuration, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, errors.Wrap(err, "loading env files")
	}
	c := &Configuration{}
	if err := env.Parse(c); err != nil {
		return nil, errors.Wrap(err, "parsing environment")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(c.LogrusLogLevel())
	c.logger = logger
	return c, nil
}

func (c *Configuration) validate() error {
	switch strings.ToLower(c.AccessMode) {
	case "enforce", "shadow":
	default:
		return errors.Errorf("ACCESS_MODE must be 'enforce' or 'shadow', got %q", c.AccessMode)
	}
	if c.GrpcPort <= 0 || c.HTTPPort <= 0 {
		return errors.Errorf("ports must be positive, got grpc=%d http=%d", c.GrpcPort, c.HTTPPort)
	}
	if c.GrpcPort == c.HTTPPort {
		return errors.Errorf("GRPC_PORT and HTTP_PORT must differ, both are %d", c.GrpcPort)
	}
	return nil
}

func (c *Configuration) Logger() *logrus.Logger {
	if c.logger == nil {
		return logrus.StandardLogger()
	}
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch strings.ToLower(c.LogLevel) {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}
