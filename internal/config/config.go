package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentProduction  Environment = "production"
	EnvironmentTest        Environment = "test"
)

type StoreDriver string

const (
	StoreDriverMemory   StoreDriver = "memory"
	StoreDriverPostgres StoreDriver = "postgres"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Storage    StorageConfig    `yaml:"storage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Reminders  RemindersConfig  `yaml:"reminders"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Environment  Environment   `yaml:"environment"`
	CORSOrigins  string        `yaml:"cors_origins"`
	BodyLimit    int           `yaml:"body_limit"`
	RateLimit    int           `yaml:"rate_limit"`
}

type StoreConfig struct {
	Driver      StoreDriver `yaml:"driver"`
	AutoMigrate bool        `yaml:"auto_migrate"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

type StorageConfig struct {
	Type          string `yaml:"type"`
	LocalPath     string `yaml:"local_path"`
	PublicBaseURL string `yaml:"public_base_url"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Region      string `yaml:"s3_region"`
	// Placeholder keeps the deterministic certificate URLs instead of rendering documents.
	Placeholder bool `yaml:"placeholder"`
}

type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ExporterURL    string  `yaml:"exporter_url"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Environment    string  `yaml:"environment"`
	SamplingRatio  float64 `yaml:"sampling_ratio"`
}

type EnrollmentConfig struct {
	// CutoffWindow is how long before the scheduled start enrollment closes.
	CutoffWindow    time.Duration `yaml:"cutoff_window"`
	PromoteWaitlist bool          `yaml:"promote_waitlist"`
	EnrollXP        int           `yaml:"enroll_xp"`
	CompleteXP      int           `yaml:"complete_xp"`
}

type RemindersConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	// DayLead and HourLead are how long before the start each reminder goes out.
	DayLead  time.Duration `yaml:"day_lead"`
	HourLead time.Duration `yaml:"hour_lead"`
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         "3001",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Environment:  EnvironmentDevelopment,
			CORSOrigins:  "*",
			BodyLimit:    50 * 1024 * 1024,
			RateLimit:    120,
		},
		Store: StoreConfig{
			Driver:      StoreDriverMemory,
			AutoMigrate: true,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "postgres",
			Password:     "postgres",
			Name:         "dnacommunity",
			SSLMode:      "disable",
			MaxOpenConns: 10,
		},
		Auth: AuthConfig{
			TokenTTL:   7 * 24 * time.Hour,
			BcryptCost: 10,
		},
		Storage: StorageConfig{
			Type:          "local",
			LocalPath:     "./certificates",
			PublicBaseURL: "http://localhost:3001/files",
			Placeholder:   true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "dna-community-api",
			ServiceVersion: "dev",
			Environment:    string(EnvironmentDevelopment),
			SamplingRatio:  1.0,
		},
		Enrollment: EnrollmentConfig{
			EnrollXP:   10,
			CompleteXP: 200,
		},
		Reminders: RemindersConfig{
			Enabled:  true,
			Schedule: "@every 15m",
			DayLead:  24 * time.Hour,
			HourLead: time.Hour,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("SERVER_PORT", getEnv("PORT", cfg.Server.Port))
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.Environment = Environment(getEnv("SERVER_ENVIRONMENT", string(cfg.Server.Environment)))
	cfg.Server.CORSOrigins = getEnv("CORS_ORIGINS", cfg.Server.CORSOrigins)
	cfg.Server.BodyLimit = getEnvInt("SERVER_BODY_LIMIT", cfg.Server.BodyLimit)
	cfg.Server.RateLimit = getEnvInt("SERVER_RATE_LIMIT", cfg.Server.RateLimit)

	cfg.Store.Driver = StoreDriver(getEnv("STORE_DRIVER", string(cfg.Store.Driver)))
	cfg.Store.AutoMigrate = getEnvBool("STORE_AUTO_MIGRATE", cfg.Store.AutoMigrate)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenTTL = getEnvDuration("JWT_TTL", cfg.Auth.TokenTTL)
	cfg.Auth.BcryptCost = getEnvInt("BCRYPT_COST", cfg.Auth.BcryptCost)

	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.LocalPath = getEnv("STORAGE_LOCAL_PATH", cfg.Storage.LocalPath)
	cfg.Storage.PublicBaseURL = getEnv("STORAGE_PUBLIC_BASE_URL", cfg.Storage.PublicBaseURL)
	cfg.Storage.S3Bucket = getEnv("STORAGE_S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Region = getEnv("STORAGE_S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.Placeholder = getEnvBool("CERTIFICATE_PLACEHOLDER_URLS", cfg.Storage.Placeholder)

	cfg.Telemetry.Enabled = getEnvBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterURL = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.ExporterURL)
	cfg.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	cfg.Telemetry.ServiceVersion = getEnv("VERSION", cfg.Telemetry.ServiceVersion)
	cfg.Telemetry.Environment = string(cfg.Server.Environment)
	cfg.Telemetry.SamplingRatio = getEnvFloat("OTEL_SAMPLING_RATIO", cfg.Telemetry.SamplingRatio)

	cfg.Enrollment.CutoffWindow = getEnvDuration("ENROLLMENT_CUTOFF_WINDOW", cfg.Enrollment.CutoffWindow)
	cfg.Enrollment.PromoteWaitlist = getEnvBool("ENROLLMENT_PROMOTE_WAITLIST", cfg.Enrollment.PromoteWaitlist)
	cfg.Enrollment.EnrollXP = getEnvInt("ENROLLMENT_ENROLL_XP", cfg.Enrollment.EnrollXP)
	cfg.Enrollment.CompleteXP = getEnvInt("ENROLLMENT_COMPLETE_XP", cfg.Enrollment.CompleteXP)

	cfg.Reminders.Enabled = getEnvBool("REMINDERS_ENABLED", cfg.Reminders.Enabled)
	cfg.Reminders.Schedule = getEnv("REMINDERS_SCHEDULE", cfg.Reminders.Schedule)
	cfg.Reminders.DayLead = getEnvDuration("REMINDERS_DAY_LEAD", cfg.Reminders.DayLead)
	cfg.Reminders.HourLead = getEnvDuration("REMINDERS_HOUR_LEAD", cfg.Reminders.HourLead)
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreDriverMemory, StoreDriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Storage.Type {
	case "local", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}
	if c.Storage.Type == "s3" && (c.Storage.S3Bucket == "" || c.Storage.S3Region == "") {
		errs = append(errs, errors.New("s3 storage requires STORAGE_S3_BUCKET and STORAGE_S3_REGION"))
	}

	if c.Auth.JWTSecret == "" {
		if c.Server.Environment == EnvironmentProduction {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		} else {
			c.Auth.JWTSecret = "development-secret"
		}
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.Enrollment.CutoffWindow < 0 {
		errs = append(errs, errors.New("enrollment cutoff window cannot be negative"))
	}
	if c.Enrollment.EnrollXP <= 0 || c.Enrollment.CompleteXP <= 0 {
		errs = append(errs, errors.New("enrollment xp awards must be positive"))
	}
	if c.Reminders.HourLead <= 0 || c.Reminders.DayLead <= c.Reminders.HourLead {
		errs = append(errs, errors.New("reminder hour lead must be positive and shorter than the day lead"))
	}

	return errors.Join(errs...)
}

// DatabaseURL returns the configured URL or one assembled from the parts.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
