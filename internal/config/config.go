package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr string

	DB struct {
		DSN string
	}

	Phone struct {
		DefaultRegion  string
		MinMatchDigits int
	}

	Photo struct {
		ThumbnailDim int
		DisplayDim   int
		QueueDepth   int
		QueueWorkers int
		GCSchedule   string
	}

	Log struct {
		Level  string
		Format string
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		var missing []string
		if host == "" {
			missing = append(missing, "APP_DB_HOST")
		}
		if name == "" {
			missing = append(missing, "APP_DB_NAME")
		}
		if user == "" {
			missing = append(missing, "APP_DB_USER")
		}
		if password == "" {
			missing = append(missing, "APP_DB_PASSWORD")
		}

		if len(missing) == 0 {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Phone.DefaultRegion = getenvDefault("APP_PHONE_REGION", "US")
	cfg.Phone.MinMatchDigits = getenvInt("APP_PHONE_MIN_MATCH_DIGITS", 7)

	cfg.Photo.ThumbnailDim = getenvInt("APP_PHOTO_THUMBNAIL_DIM", 96)
	cfg.Photo.DisplayDim = getenvInt("APP_PHOTO_DISPLAY_DIM", 720)
	cfg.Photo.QueueDepth = getenvInt("APP_PHOTO_QUEUE_DEPTH", 64)
	cfg.Photo.QueueWorkers = getenvInt("APP_PHOTO_QUEUE_WORKERS", 2)
	cfg.Photo.GCSchedule = getenvDefault("APP_PHOTO_GC_SCHEDULE", "0 3 * * *")

	cfg.Log.Level = getenvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getenvDefault("LOG_FORMAT", "json")

	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.Phone.MinMatchDigits < 7 || cfg.Phone.MinMatchDigits > 9 {
		return nil, fmt.Errorf("APP_PHONE_MIN_MATCH_DIGITS must be between 7 and 9 (got %d)", cfg.Phone.MinMatchDigits)
	}
	if cfg.Photo.ThumbnailDim <= 0 || cfg.Photo.DisplayDim <= 0 {
		return nil, errors.New("photo dimensions must be positive")
	}
	if cfg.Photo.ThumbnailDim > cfg.Photo.DisplayDim {
		return nil, fmt.Errorf("APP_PHOTO_THUMBNAIL_DIM (%d) must not exceed APP_PHOTO_DISPLAY_DIM (%d)", cfg.Photo.ThumbnailDim, cfg.Photo.DisplayDim)
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No APP_TRUSTED_PROXIES configured. Contactd will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
