// Package config содержит логику чтения конфигурации сервиса LIVRINI.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvDevelopment включает подробные сообщения об ошибках и development-логгер.
const EnvDevelopment = "development"

// Config содержит параметры конфигурации сервиса LIVRINI.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	Environment string `env:"APP_ENV" envDefault:"production"`

	JWTSecret   string        `env:"JWT_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
	TokenLeeway time.Duration `env:"TOKEN_LEEWAY" envDefault:"30s"`
	BcryptCost  int           `env:"BCRYPT_COST" envDefault:"12"`

	OTPTTL            time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPLength         int           `env:"OTP_LENGTH" envDefault:"6"`
	OTPResendCooldown time.Duration `env:"OTP_RESEND_COOLDOWN" envDefault:"60s"`

	BrevoAPIKey     string        `env:"BREVO_API_KEY"`
	BrevoBaseURL    string        `env:"BREVO_BASE_URL" envDefault:"https://api.brevo.com"`
	MailSenderEmail string        `env:"MAIL_SENDER_EMAIL" envDefault:"noreply@livrini.com"`
	MailSenderName  string        `env:"MAIL_SENDER_NAME" envDefault:"LIVRINI"`
	MailTimeout     time.Duration `env:"MAIL_TIMEOUT" envDefault:"10s"`
	MailRetryMax    int           `env:"MAIL_RETRY_MAX" envDefault:"2"`

	RedisAddr string `env:"REDIS_ADDR"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency     string `env:"PAYMENT_CURRENCY" envDefault:"tnd"`

	DeliveryLeadTime     time.Duration `env:"DELIVERY_LEAD_TIME" envDefault:"72h"`
	DeliveryFee          float64       `env:"DELIVERY_FEE" envDefault:"7"`
	DeliverySyncInterval time.Duration `env:"DELIVERY_SYNC_INTERVAL" envDefault:"0s"`
}

// IsDevelopment сообщает, запущен ли сервис в режиме разработки.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envJWTSecret := cfg.JWTSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "JWT signing secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return errors.New("JWT_SECRET is required outside development")
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", c.OTPLength)
	}
	if c.OTPTTL <= 0 {
		return errors.New("OTP_TTL must be positive")
	}
	if c.MailRetryMax < 0 {
		return fmt.Errorf("MAIL_RETRY_MAX must not be negative, got %d", c.MailRetryMax)
	}
	return nil
}
