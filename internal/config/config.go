package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration required by the API process.
//
// Sources, lowest precedence first: built-in defaults, the YAML file named by
// CONFIG_FILE (optional), then environment variables.
type Config struct {
	App      AppConfig      `yaml:"app"`
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Storage  StorageConfig  `yaml:"storage"`
}

type AppConfig struct {
	Env         string `yaml:"env"`
	Port        int    `yaml:"port"`
	ServiceName string `yaml:"service_name"`
	Tracing     bool   `yaml:"tracing"`
}

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `yaml:"sslmode"`
}

// RedisConfig is optional outside production. Without it token revocation
// is kept in process memory.
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	JWTIssuer       string        `yaml:"jwt_issuer"`
	JWTAudience     string        `yaml:"jwt_audience"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

type DispatchConfig struct {
	// PresenceStaleAfter is how long a counselor stays eligible without polling.
	PresenceStaleAfter time.Duration `yaml:"presence_stale_after"`
	ReclaimInterval    time.Duration `yaml:"reclaim_interval"`
	ClaimTimeout       time.Duration `yaml:"claim_timeout"`
}

type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AuditTopic string   `yaml:"audit_topic"`
}

type StorageConfig struct {
	// ReportStore is memory or postgres.
	ReportStore string `yaml:"report_store"`
	// AuditSink is memory, postgres or kafka.
	AuditSink string `yaml:"audit_sink"`
	// ReportKey is a base64 32-byte key sealing report fields at rest.
	ReportKey string `yaml:"report_encryption_key"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		App:   AppConfig{Port: 8080, ServiceName: "triage-dispatch"},
		DB:    DBConfig{Port: 5432},
		Redis: RedisConfig{Port: 6379},
		Dispatch: DispatchConfig{
			PresenceStaleAfter: 30 * time.Second,
			ReclaimInterval:    10 * time.Second,
			ClaimTimeout:       15 * time.Minute,
		},
		Kafka:   KafkaConfig{AuditTopic: "triage.dispatch.audit"},
		Storage: StorageConfig{ReportStore: "memory", AuditSink: "memory"},
	}
}

func Load() (Config, error) {
	c := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := c.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.mergeYAML(data)
}

func (c *Config) mergeYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.App.Env, "APP_ENV")
	errs = setInt(errs, &c.App.Port, "APP_PORT")
	setString(&c.App.ServiceName, "SERVICE_NAME")
	errs = setBool(errs, &c.App.Tracing, "TRACING_ENABLED")

	setString(&c.DB.Host, "DB_HOST")
	errs = setInt(errs, &c.DB.Port, "DB_PORT")
	setString(&c.DB.User, "DB_USER")
	if v, ok := os.LookupEnv("DB_PASSWORD"); ok {
		c.DB.Password = v
	}
	setString(&c.DB.Name, "DB_NAME")
	setString(&c.DB.SSLMode, "DB_SSLMODE")

	setString(&c.Redis.Host, "REDIS_HOST")
	errs = setInt(errs, &c.Redis.Port, "REDIS_PORT")

	if v, ok := os.LookupEnv("JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	setString(&c.Auth.JWTIssuer, "JWT_ISSUER")
	setString(&c.Auth.JWTAudience, "JWT_AUDIENCE")
	errs = setDuration(errs, &c.Auth.AccessTokenTTL, "JWT_ACCESS_TTL")
	errs = setDuration(errs, &c.Auth.RefreshTokenTTL, "JWT_REFRESH_TTL")

	errs = setDuration(errs, &c.Dispatch.PresenceStaleAfter, "PRESENCE_STALE_AFTER")
	errs = setDuration(errs, &c.Dispatch.ReclaimInterval, "RECLAIM_INTERVAL")
	errs = setDuration(errs, &c.Dispatch.ClaimTimeout, "CLAIM_TIMEOUT")

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	setString(&c.Kafka.AuditTopic, "KAFKA_AUDIT_TOPIC")

	setString(&c.Storage.ReportStore, "REPORT_STORE")
	setString(&c.Storage.AuditSink, "AUDIT_SINK")
	if v, ok := os.LookupEnv("REPORT_ENCRYPTION_KEY"); ok {
		c.Storage.ReportKey = v
	}

	return joinErrors(errs)
}

// Validate checks the configuration and fills env-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.Storage.ReportStore {
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("REPORT_STORE must be postgres in production"))
		}
	case "postgres":
		if c.Storage.ReportKey == "" && c.IsProduction() {
			errs = append(errs, errors.New("REPORT_ENCRYPTION_KEY is required in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("REPORT_STORE must be one of memory, postgres, got %q", c.Storage.ReportStore))
	}
	switch c.Storage.AuditSink {
	case "memory", "postgres":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when AUDIT_SINK is kafka"))
		}
		if c.Kafka.AuditTopic == "" {
			errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when AUDIT_SINK is kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUDIT_SINK must be one of memory, postgres, kafka, got %q", c.Storage.AuditSink))
	}

	if c.Storage.ReportKey != "" {
		if _, err := c.ReportKeyBytes(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.NeedsPostgres() {
		errs = append(errs, c.validateDB()...)
	}

	if c.Redis.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("REDIS_HOST is required in production"))
		}
	} else if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Dispatch.PresenceStaleAfter <= 0 {
		errs = append(errs, errors.New("PRESENCE_STALE_AFTER must be positive"))
	}
	if c.Dispatch.ReclaimInterval <= 0 {
		errs = append(errs, errors.New("RECLAIM_INTERVAL must be positive"))
	}
	if c.Dispatch.ClaimTimeout <= c.Dispatch.ReclaimInterval {
		errs = append(errs, errors.New("CLAIM_TIMEOUT must be greater than RECLAIM_INTERVAL"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) NeedsPostgres() bool {
	return c.Storage.ReportStore == "postgres" || c.Storage.AuditSink == "postgres"
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

// ReportKeyBytes decodes the report encryption key. Nil means fields are
// stored in plaintext.
func (c Config) ReportKeyBytes() ([]byte, error) {
	if c.Storage.ReportKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.Storage.ReportKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("REPORT_ENCRYPTION_KEY must be 32 bytes, base64 encoded")
	}
	return key, nil
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(errs []error, dst *int, key string) []error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	*dst = n
	return errs
}

func setBool(errs []error, dst *bool, key string) []error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	*dst = b
	return errs
}

func setDuration(errs []error, dst *time.Duration, key string) []error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	*dst = d
	return errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
