package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/utils"
)

const DefaultJWTSecret = "change-me-in-production"

type Config struct {
	Port        string `env:"PORT,default=8080"`
	AppEnv      string `env:"APP_ENV,default=development"`
	CORSOrigins string `env:"CORS_ORIGINS"` // comma separated; empty allows all

	StoreDriver string `env:"STORE_DRIVER,default=sqlite3"`
	DatabaseURL string `env:"DATABASE_URL,default=library.db"`
	MongoURI    string `env:"MONGODB_URI,default=mongodb://localhost:27017"`
	DBName      string `env:"MONGODB_DB,default=library"`
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=true"`

	JWTSecret          string        `env:"JWT_SECRET,default=change-me-in-production"`
	TokenTTL           time.Duration `env:"TOKEN_TTL,default=168h"`
	AdminUsername      string        `env:"AUTH_ADMIN_USERNAME,default=admin"`
	AdminPassword      string        `env:"AUTH_ADMIN_PASSWORD"`
	RedisURL           string        `env:"REDIS_URL"`
	LoginRatePerMinute int           `env:"LOGIN_RATE_PER_MINUTE,default=10"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	SweepSchedule string `env:"SWEEP_SCHEDULE,default=@every 1h"`
	PolicyFile    string `env:"POLICY_FILE"`

	S3Bucket      string `env:"AWS_S3_BUCKET"`
	S3Region      string `env:"AWS_REGION,default=us-east-1"`
	S3AccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Endpoint    string `env:"AWS_S3_ENDPOINT"`
	MaxUploadMB   int64  `env:"MAX_UPLOAD_MB,default=5"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	// SecretEncryptionKey is a base64 32-byte AES key. Secrets prefixed
	// with "enc:" are decrypted with it at load time.
	SecretEncryptionKey string `env:"SECRET_ENCRYPTION_KEY"`
}

var storeDrivers = []string{"sqlite3", "postgres", "mongo"}

// Load decodes the environment. Call godotenv.Load first to pick up .env.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = "sqlite3"
	}
	if !contains(storeDrivers, cfg.StoreDriver) {
		return nil, fmt.Errorf("STORE_DRIVER must be one of %s, got %q", strings.Join(storeDrivers, ", "), cfg.StoreDriver)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}
	if err := cfg.decryptSecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// AllowedOrigins splits CORS_ORIGINS.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// EncryptionKey returns the decoded SECRET_ENCRYPTION_KEY, or nil when unset.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.SecretEncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.SecretEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("SECRET_ENCRYPTION_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SECRET_ENCRYPTION_KEY must be 32 bytes base64 (got %d bytes); generate with: openssl rand -base64 32", len(key))
	}
	return key, nil
}

func (c *Config) decryptSecrets() error {
	secrets := map[string]*string{
		"SMTP_PASSWORD":         &c.SMTPPassword,
		"AWS_SECRET_ACCESS_KEY": &c.S3SecretKey,
		"JWT_SECRET":            &c.JWTSecret,
		"AUTH_ADMIN_PASSWORD":   &c.AdminPassword,
	}
	var key []byte
	for name, v := range secrets {
		if !utils.IsEncrypted(*v) {
			continue
		}
		if key == nil {
			k, err := c.EncryptionKey()
			if err != nil {
				return err
			}
			if k == nil {
				return fmt.Errorf("%s is encrypted but SECRET_ENCRYPTION_KEY is not set", name)
			}
			key = k
		}
		plain, err := utils.Decrypt(*v, key)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", name, err)
		}
		*v = plain
	}
	return nil
}

// ValidateEnv refuses settings that are unsafe in production and logs what
// was loaded without printing secret values.
func ValidateEnv(c *Config, log logrus.FieldLogger) error {
	log.WithFields(logrus.Fields{
		"store_driver": c.StoreDriver,
		"port":         c.Port,
		"app_env":      c.AppEnv,
		"s3":           c.S3Bucket != "",
		"smtp":         c.SMTPHost != "",
		"redis":        c.RedisURL != "",
		"policy_file":  c.PolicyFile,
	}).Info("configuration loaded")

	var errs []error
	if c.AppEnv == "production" {
		if c.JWTSecret == DefaultJWTSecret || len(c.JWTSecret) < 16 {
			errs = append(errs, errors.New("JWT_SECRET must be set to a strong secret (16+ characters, not the default)"))
		}
		if c.AdminPassword != "" && len(c.AdminPassword) < 8 {
			errs = append(errs, errors.New("AUTH_ADMIN_PASSWORD must be at least 8 characters"))
		}
	} else if c.JWTSecret == DefaultJWTSecret {
		log.Warn("JWT_SECRET is the default; set it before deploying")
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
	}
	if _, err := c.EncryptionKey(); err != nil {
		errs = append(errs, err)
	}
	if c.LoginRatePerMinute < 1 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE must be at least 1"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", format)
	}
	return log, nil
}
