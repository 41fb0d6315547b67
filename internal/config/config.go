package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StockCacheTTLSeconds  int
	AuthSecret            string
	AccessTokenTTLMinutes int
	DefaultMarginPercent  float64
	ExpiryAlertDays       int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("STOCK_CACHE_TTL_SECONDS", "15"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 15
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	defaultMargin, err := strconv.ParseFloat(getEnv("DEFAULT_MARGIN_PERCENT", "20"), 64)
	if err != nil || defaultMargin < 0 {
		defaultMargin = 20
	}
	alertDays, err := strconv.Atoi(getEnv("EXPIRY_ALERT_DAYS", "30"))
	if err != nil || alertDays < 1 {
		alertDays = 30
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		StockCacheTTLSeconds:  cacheTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		DefaultMarginPercent:  defaultMargin,
		ExpiryAlertDays:       alertDays,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
