package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	CRDBDSN             string
	MongoURI            string
	RedisAddr           string
	RabbitURL           string
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutDomain      string // base URL for success/cancel redirects
	SessionTTL          time.Duration
	RefundCutoff        time.Duration
	SweepInterval       time.Duration
	OTLPEndpoint        string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionTTL := durationEnv("SESSION_TTL", 30*time.Minute)
	refundCutoff := durationEnv("REFUND_CUTOFF", 15*time.Minute)
	sweepInterval := durationEnv("SWEEP_INTERVAL", time.Minute)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	checkoutDomain := os.Getenv("CHECKOUT_DOMAIN")
	if checkoutDomain == "" {
		checkoutDomain = "http://localhost:3001"
	}

	return &Config{
		Port:                port,
		CRDBDSN:             os.Getenv("CRDB_DSN"),
		MongoURI:            os.Getenv("MONGO_URI"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RabbitURL:           os.Getenv("RABBIT_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutDomain:      checkoutDomain,
		SessionTTL:          sessionTTL,
		RefundCutoff:        refundCutoff,
		SweepInterval:       sweepInterval,
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func durationEnv(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return def
	}
	return d
}
