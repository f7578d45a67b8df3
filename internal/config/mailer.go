package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MailerConfig configures cmd/mailer, the worker draining the mail queue.
type MailerConfig struct {
	Env string

	RabbitURL    string
	Exchange     string
	Queue        string
	BindKey      string
	Prefetch     int
	ConsumerTag  string
	ShutdownWait time.Duration

	EmailSender string // log | smtp
	MailFrom    string
	SMTP        SMTP

	// Store is the user store the worker clears reset tokens in when a reset
	// mail is dead-lettered. Nil when neither STORE_DRIVER nor DB_ADDR is set.
	Store *Config
}

func LoadMailer() (*MailerConfig, error) {
	_ = godotenv.Load()

	cfg := &MailerConfig{
		Env:         getEnv("ENV", "dev"),
		Exchange:    getEnv("RABBIT_EXCHANGE", "user.events"),
		Queue:       getEnv("RABBIT_QUEUE", "user-mailer.q"),
		BindKey:     getEnv("MAIL_ROUTING_KEY", "user.password.reset"),
		ConsumerTag: getEnv("RABBIT_CONSUMER_TAG", "user-mailer"),
		EmailSender: getEnv("EMAIL_SENDER", MailLog),
		MailFrom:    getEnv("MAIL_FROM", "no-reply@localhost"),
	}

	cfg.RabbitURL = strings.TrimSpace(os.Getenv("RABBIT_URL"))
	if cfg.RabbitURL == "" {
		return nil, fmt.Errorf("missing required env var: RABBIT_URL")
	}

	var err error
	if cfg.Prefetch, err = getInt("RABBIT_PREFETCH", 10); err != nil {
		return nil, err
	}
	if cfg.ShutdownWait, err = getDuration("SHUTDOWN_WAIT", 10*time.Second); err != nil {
		return nil, err
	}

	if os.Getenv("STORE_DRIVER") != "" || os.Getenv("DB_ADDR") != "" {
		cfg.Store = &Config{Env: cfg.Env}
		if err := loadStore(cfg.Store); err != nil {
			return nil, err
		}
	}

	switch cfg.EmailSender {
	case MailLog:
	case MailSMTP:
		if cfg.SMTP, err = loadSMTP(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown EMAIL_SENDER %q", cfg.EmailSender)
	}

	return cfg, nil
}
