// Package config loads process configuration from the environment and an
// optional .env file using Viper. Every value has a development default; an
// empty DATABASE_URL or REDIS_URL selects the in-memory stores.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server       Server
	Redis        RedisConfig
	Postgres     PostgresConfig
	Kafka        KafkaConfig
	Telemetry    TelemetryConfig
	Verification VerificationConfig
	MFA          MFAConfig
	WebAuthn     WebAuthnConfig
	Notify       NotifyConfig
	OfficeHours  OfficeHoursConfig
	Subjects     SubjectsConfig
	Integrity    IntegrityConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	Env           string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	ServiceToken  string
	ShutdownGrace time.Duration
}

// IsProduction reports whether APP_ENV is production.
func (s Server) IsProduction() bool { return s.Env == "production" }

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type KafkaConfig struct {
	Brokers     []string
	AnchorTopic string
	Partitions  int32
	Replication int16
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// VerificationConfig holds per-purpose code lifetimes.
type VerificationConfig struct {
	DefaultTTL  time.Duration
	TTLs        map[string]time.Duration
	MaxAttempts int
}

// TTL returns the lifetime for purpose, falling back to DefaultTTL.
func (c VerificationConfig) TTL(purpose string) time.Duration {
	if ttl, ok := c.TTLs[purpose]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}

type MFAConfig struct {
	Issuer        string
	EncryptionKey string
}

type WebAuthnConfig struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	PairingTTL    time.Duration
}

type NotifyConfig struct {
	WebhookURL    string
	WebhookToken  string
	RatePerSecond float64
	Burst         int
}

type OfficeHoursConfig struct {
	File string
}

// SubjectsConfig seeds the in-memory subject directory. It is ignored when
// subjects come from Postgres.
type SubjectsConfig struct {
	File string
}

type IntegrityConfig struct {
	Interval  time.Duration
	Window    time.Duration
	BatchSize int
}

var verificationPurposes = []string{"signup", "login", "password_reset", "email_change", "delete_account", "mfa_disable"}

// Load reads .env when present, then the environment, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: Server{
			Addr:          v.GetString("AEGIS_ADDR"),
			Env:           v.GetString("APP_ENV"),
			JWTSigningKey: v.GetString("JWT_SIGNING_KEY"),
			JWTIssuer:     v.GetString("JWT_ISSUER"),
			JWTAudience:   v.GetString("JWT_AUDIENCE"),
			ServiceToken:  v.GetString("SERVICE_TOKEN"),
			ShutdownGrace: v.GetDuration("SHUTDOWN_GRACE"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
		},
		Postgres: PostgresConfig{
			URL:             v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("DATABASE_AUTO_MIGRATE"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			AnchorTopic: v.GetString("KAFKA_ANCHOR_TOPIC"),
			Partitions:  v.GetInt32("KAFKA_ANCHOR_PARTITIONS"),
			Replication: int16(v.GetInt("KAFKA_ANCHOR_REPLICATION")),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		},
		Verification: VerificationConfig{
			DefaultTTL:  v.GetDuration("VERIFICATION_TTL"),
			TTLs:        map[string]time.Duration{},
			MaxAttempts: v.GetInt("VERIFICATION_MAX_ATTEMPTS"),
		},
		MFA: MFAConfig{
			Issuer:        v.GetString("MFA_ISSUER"),
			EncryptionKey: v.GetString("MFA_ENCRYPTION_KEY"),
		},
		WebAuthn: WebAuthnConfig{
			RPID:          v.GetString("WEBAUTHN_RP_ID"),
			RPDisplayName: v.GetString("WEBAUTHN_RP_DISPLAY_NAME"),
			RPOrigins:     splitList(v.GetString("WEBAUTHN_RP_ORIGINS")),
			PairingTTL:    v.GetDuration("PAIRING_TTL"),
		},
		Notify: NotifyConfig{
			WebhookURL:    v.GetString("NOTIFY_WEBHOOK_URL"),
			WebhookToken:  v.GetString("NOTIFY_WEBHOOK_TOKEN"),
			RatePerSecond: v.GetFloat64("NOTIFY_RATE_PER_SECOND"),
			Burst:         v.GetInt("NOTIFY_BURST"),
		},
		OfficeHours: OfficeHoursConfig{File: v.GetString("OFFICE_HOURS_FILE")},
		Subjects:    SubjectsConfig{File: v.GetString("SUBJECTS_FILE")},
		Integrity: IntegrityConfig{
			Interval:  v.GetDuration("INTEGRITY_INTERVAL"),
			Window:    v.GetDuration("INTEGRITY_WINDOW"),
			BatchSize: v.GetInt("INTEGRITY_BATCH_SIZE"),
		},
	}

	for _, p := range verificationPurposes {
		key := "VERIFICATION_TTL_" + strings.ToUpper(p)
		if v.IsSet(key) {
			cfg.Verification.TTLs[p] = v.GetDuration(key)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AEGIS_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("JWT_SIGNING_KEY", "dev-secret-key-change-in-production")
	v.SetDefault("JWT_ISSUER", "aegis")
	v.SetDefault("JWT_AUDIENCE", "aegis-api")
	v.SetDefault("SERVICE_TOKEN", "")
	v.SetDefault("SHUTDOWN_GRACE", 10*time.Second)

	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)

	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)

	v.SetDefault("KAFKA_ANCHOR_TOPIC", "aegis.ledger.anchors")
	v.SetDefault("KAFKA_ANCHOR_PARTITIONS", 1)
	v.SetDefault("KAFKA_ANCHOR_REPLICATION", 1)

	v.SetDefault("OTEL_SERVICE_NAME", "aegis")

	v.SetDefault("VERIFICATION_TTL", 3*time.Minute)
	v.SetDefault("VERIFICATION_MAX_ATTEMPTS", 5)

	v.SetDefault("MFA_ISSUER", "Aegis")
	v.SetDefault("MFA_ENCRYPTION_KEY", "dev-mfa-key-change-in-production")

	v.SetDefault("WEBAUTHN_RP_ID", "localhost")
	v.SetDefault("WEBAUTHN_RP_DISPLAY_NAME", "Aegis")
	v.SetDefault("WEBAUTHN_RP_ORIGINS", "http://localhost:3000")
	v.SetDefault("PAIRING_TTL", 2*time.Minute)

	v.SetDefault("NOTIFY_RATE_PER_SECOND", 5.0)
	v.SetDefault("NOTIFY_BURST", 10)

	v.SetDefault("INTEGRITY_INTERVAL", 5*time.Minute)
	v.SetDefault("INTEGRITY_WINDOW", 24*time.Hour)
	v.SetDefault("INTEGRITY_BATCH_SIZE", 200)
}

func (c *Config) validate() error {
	var errs []error
	if c.Server.IsProduction() {
		if c.Server.JWTSigningKey == "dev-secret-key-change-in-production" {
			errs = append(errs, errors.New("JWT_SIGNING_KEY must be set in production"))
		}
		if c.MFA.EncryptionKey == "dev-mfa-key-change-in-production" {
			errs = append(errs, errors.New("MFA_ENCRYPTION_KEY must be set in production"))
		}
	}
	if c.Verification.DefaultTTL <= 0 {
		errs = append(errs, fmt.Errorf("VERIFICATION_TTL must be positive, got %s", c.Verification.DefaultTTL))
	}
	if c.Verification.MaxAttempts <= 0 {
		errs = append(errs, errors.New("VERIFICATION_MAX_ATTEMPTS must be positive"))
	}
	if c.WebAuthn.PairingTTL <= 0 {
		errs = append(errs, errors.New("PAIRING_TTL must be positive"))
	}
	if c.Integrity.BatchSize <= 0 || c.Integrity.BatchSize > 200 {
		errs = append(errs, errors.New("INTEGRITY_BATCH_SIZE must be in 1..200"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
