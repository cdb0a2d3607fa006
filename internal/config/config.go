package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DataPath    string
	Port        int
	LogLevel    string
	RateLimit   int     // requests per second per client, 0 disables
	ChartWidth  float64 // inches
	ChartHeight float64 // inches
}

// Load reads the environment, after merging an optional .env file.
// Variables already set win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring .env", "error", err)
	}
	return Config{
		DataPath:    envStr("AGRIDASH_DATA", "ICRISAT-District Level Data.csv"),
		Port:        envInt("AGRIDASH_PORT", 8080),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		RateLimit:   envInt("AGRIDASH_RATE_LIMIT", 20),
		ChartWidth:  envFloat("AGRIDASH_CHART_WIDTH", 10),
		ChartHeight: envFloat("AGRIDASH_CHART_HEIGHT", 5),
	}
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}
