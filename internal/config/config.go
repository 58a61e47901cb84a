package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	LogLevel    slog.Level
	MaxUploadMB int64

	ModelPath      string
	OnnxLibPath    string
	IntraOpThreads int

	HistoryBackend string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3KeyPrefix     string

	Location *time.Location
	Retries  uint64
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := getEnv(k, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", k, err)
	}
	return n, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "INFO")),

		ModelPath:   getEnv("MODEL_PATH", "models/modelxdetect.onnx"),
		OnnxLibPath: getEnv("ONNXRUNTIME_LIB", ""),

		HistoryBackend: strings.ToLower(getEnv("HISTORY_BACKEND", "memory")),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),

		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3Bucket:        getEnv("S3_BUCKET", "xdetect-img-profile"),
		S3PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
		S3KeyPrefix:     getEnv("S3_KEY_PREFIX", "xray"),
	}

	var err error
	if cfg.IntraOpThreads, err = getInt("ONNX_INTRA_OP_THREADS", 0); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	maxUpload, err := getInt("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadMB = int64(maxUpload)
	retries, err := getInt("STORE_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if retries < 0 {
		return nil, fmt.Errorf("env STORE_RETRIES: must be >= 0")
	}
	cfg.Retries = uint64(retries)

	if cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "Asia/Jakarta")); err != nil {
		return nil, fmt.Errorf("env TIMEZONE: %w", err)
	}

	switch cfg.HistoryBackend {
	case "memory", "redis":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres history backend")
		}
	default:
		return nil, fmt.Errorf("unknown HISTORY_BACKEND %q", cfg.HistoryBackend)
	}
	return cfg, nil
}

// ConfigureLogging installs a text slog handler at the configured level.
func (c *Config) ConfigureLogging() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel})
	slog.SetDefault(slog.New(handler))
}
