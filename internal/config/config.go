package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"

	MailLog    = "log"
	MailSMTP   = "smtp"
	MailRabbit = "rabbitmq"
)

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	Insecure bool // plain connection for local catchers (mailpit, mailhog)
}

type S3 struct {
	Bucket        string
	Region        string
	Endpoint      string // minio / localstack
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	PresignTTL    time.Duration
}

func (s S3) Enabled() bool { return s.Bucket != "" }

type Config struct {
	//App
	Env string // dev / staging / prod
	//HTTP
	HTTPAddr         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	TrustProxy       bool // key rate limits on X-Forwarded-For / X-Real-IP

	// Sessions
	JWTSecret    string
	SessionTTL   time.Duration
	CookieSecure bool
	BcryptCost   int

	// Password reset
	ResetTokenSecret     string
	PasswordResetTTL     time.Duration
	PasswordResetBaseURL string // required outside dev; dev falls back to the request host

	// Storage
	StoreDriver   string
	DBAddr        string
	DBDebug       bool
	MongoURI      string
	MongoDatabase string

	// Redis is optional: limiter and revocation fall back to in-process versions.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Mail
	MailTransport  string
	MailFrom       string
	SMTP           SMTP
	RabbitURL      string
	RabbitExchange string
	MailRoutingKey string

	Avatars S3

	SeedDevUsers bool
}

func (c *Config) IsDev() bool { return c.Env == "dev" }

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "dev"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}

	// required values
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required env var: JWT_SECRET")
	}
	cfg.ResetTokenSecret = os.Getenv("RESET_TOKEN_SECRET")
	if cfg.ResetTokenSecret == "" {
		return nil, fmt.Errorf("missing required env var: RESET_TOKEN_SECRET")
	}
	if cfg.ResetTokenSecret == cfg.JWTSecret {
		return nil, fmt.Errorf("RESET_TOKEN_SECRET must differ from JWT_SECRET")
	}

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 5*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PasswordResetTTL, err = getDuration("PASSWORD_RESET_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	cfg.PasswordResetBaseURL = strings.TrimRight(os.Getenv("PASSWORD_RESET_BASE_URL"), "/")
	if cfg.PasswordResetBaseURL == "" && !cfg.IsDev() {
		return nil, fmt.Errorf("missing required env var: PASSWORD_RESET_BASE_URL")
	}
	if cfg.PasswordResetBaseURL != "" {
		if err := validateBaseURL(cfg.PasswordResetBaseURL); err != nil {
			return nil, err
		}
	}

	if cfg.BcryptCost, err = getInt("BCRYPT_COST", 10); err != nil {
		return nil, err
	}
	if cfg.CookieSecure, err = getBool("COOKIE_SECURE", !cfg.IsDev()); err != nil {
		return nil, err
	}

	if err := loadStore(cfg); err != nil {
		return nil, err
	}

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if strings.Contains(cfg.RedisAddr, " ") {
		return nil, fmt.Errorf("bad REDIS_ADDR (contains spaces): %q", cfg.RedisAddr)
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if err := loadMail(cfg); err != nil {
		return nil, err
	}
	if err := loadAvatars(cfg); err != nil {
		return nil, err
	}

	if cfg.SeedDevUsers, err = getBool("SEED_DEV_USERS", false); err != nil {
		return nil, err
	}
	if cfg.SeedDevUsers && !cfg.IsDev() {
		return nil, fmt.Errorf("SEED_DEV_USERS is only allowed when ENV=dev")
	}

	if cfg.TrustProxy, err = getBool("TRUST_PROXY", false); err != nil {
		return nil, err
	}

	//Timeout values are optional and have a default value if not
	if cfg.HTTPReadTimeout, err = getDuration("HTTP_READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPWriteTimeout, err = getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPIdleTimeout, err = getDuration("HTTP_IDLE_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadStore(cfg *Config) error {
	cfg.StoreDriver = getEnv("STORE_DRIVER", StorePostgres)

	var err error
	switch cfg.StoreDriver {
	case StorePostgres:
		cfg.DBAddr = os.Getenv("DB_ADDR")
		if cfg.DBAddr == "" {
			return fmt.Errorf("missing required env var: DB_ADDR")
		}
		if err := validatePostgresDSN(cfg.DBAddr); err != nil {
			return err
		}
		if cfg.DBDebug, err = getBool("DB_DEBUG", false); err != nil {
			return err
		}
	case StoreMongo:
		cfg.MongoURI = os.Getenv("MONGO_URI")
		if cfg.MongoURI == "" {
			return fmt.Errorf("missing required env var: MONGO_URI")
		}
		cfg.MongoDatabase = getEnv("MONGO_DATABASE", "users")
	case StoreMemory:
		if !cfg.IsDev() {
			return fmt.Errorf("STORE_DRIVER=memory is only allowed when ENV=dev")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return nil
}

func loadMail(cfg *Config) error {
	cfg.MailTransport = getEnv("MAIL_TRANSPORT", MailLog)
	cfg.MailFrom = getEnv("MAIL_FROM", "no-reply@localhost")

	switch cfg.MailTransport {
	case MailLog:
	case MailSMTP:
		smtp, err := loadSMTP()
		if err != nil {
			return err
		}
		cfg.SMTP = smtp
	case MailRabbit:
		cfg.RabbitURL = strings.TrimSpace(os.Getenv("RABBIT_URL"))
		if cfg.RabbitURL == "" {
			return fmt.Errorf("missing required env var: RABBIT_URL")
		}
		cfg.RabbitExchange = getEnv("RABBIT_EXCHANGE", "user.events")
		cfg.MailRoutingKey = getEnv("MAIL_ROUTING_KEY", "user.password.reset")
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", cfg.MailTransport)
	}
	return nil
}

func loadSMTP() (SMTP, error) {
	s := SMTP{
		Host:     os.Getenv("SMTP_HOST"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
	}
	if s.Host == "" {
		return SMTP{}, fmt.Errorf("smtp sender selected but missing SMTP_HOST")
	}
	s.From = getEnv("SMTP_FROM", getEnv("MAIL_FROM", s.Username))

	var err error
	if s.Port, err = getInt("SMTP_PORT", 587); err != nil {
		return SMTP{}, err
	}
	if s.Timeout, err = getDuration("SMTP_TIMEOUT", 10*time.Second); err != nil {
		return SMTP{}, err
	}
	if s.Insecure, err = getBool("SMTP_INSECURE", false); err != nil {
		return SMTP{}, err
	}
	return s, nil
}

func loadAvatars(cfg *Config) error {
	cfg.Avatars = S3{
		Bucket:    os.Getenv("S3_BUCKET"),
		Region:    getEnv("S3_REGION", "us-east-1"),
		Endpoint:  os.Getenv("S3_ENDPOINT"),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
	}
	if !cfg.Avatars.Enabled() {
		return nil
	}
	cfg.Avatars.PublicBaseURL = strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/")
	if cfg.Avatars.PublicBaseURL == "" {
		return fmt.Errorf("missing required env var: S3_PUBLIC_BASE_URL")
	}
	var err error
	cfg.Avatars.PresignTTL, err = getDuration("S3_PRESIGN_TTL", 15*time.Minute)
	return err
}

func validatePostgresDSN(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return fmt.Errorf("invalid DB_ADDR: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("DB_ADDR must use postgres:// or postgresql://")
	}
	if strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("DB_ADDR must name a database")
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid PASSWORD_RESET_BASE_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PASSWORD_RESET_BASE_URL must be an absolute http(s) URL")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q: %w", key, v, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for %s: %q: %w", key, v, err)
	}
	return b, nil
}

// ShutdownWait is how long the API drains in-flight requests after a stop
// signal (SHUTDOWN_WAIT, default 15s).
func ShutdownWait() (time.Duration, error) {
	return getDuration("SHUTDOWN_WAIT", 15*time.Second)
}
