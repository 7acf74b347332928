package app

import (
	cmnenv "msg_client/client/common/env"
)

type Config struct {
	Env           string
	Port          string
	JWTSecret     string
	JWTTTLMinutes int

	RatePerSec float64
	RateBurst  int

	// PostgresDSN selects the pgx store; empty keeps everything in memory.
	PostgresDSN string
}

func LoadConfig() Config {
	return Config{
		Env:           cmnenv.String("APP_ENV", "dev"),
		Port:          cmnenv.String("DEVSERVER_PORT", "8081"),
		JWTSecret:     cmnenv.String("JWT_SECRET", "change-me-in-production"),
		JWTTTLMinutes: cmnenv.Int("JWT_TTL_MINUTES", 30*24*60),
		RatePerSec:    cmnenv.Float("DEVSERVER_RATE_PER_SEC", 20),
		RateBurst:     cmnenv.Int("DEVSERVER_RATE_BURST", 40),
		PostgresDSN:   cmnenv.String("DEVSERVER_POSTGRES_DSN", ""),
	}
}
