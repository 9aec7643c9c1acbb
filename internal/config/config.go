package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	DefaultInferenceURL = "https://api-inference.huggingface.co/models/ZB-Tech/Text-to-Image"
	DefaultListenAddr   = ":8080"
)

// Download targets.
const (
	TargetFile  = "file"
	TargetS3    = "s3"
	TargetMinio = "minio"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Config is loaded once at startup and never mutated afterwards.
type Config struct {
	APIKey       string
	APIKeyParam  string
	InferenceURL string
	ListenAddr   string
	LogLevel     string
	LogFile      string

	DownloadTarget       string
	DownloadDir          string
	DownloadBucket       string
	DownloadDistribution string
	Minio                MinioConfig
}

// Load reads an optional .env file and then the process environment.
// The API credential is not validated here; a bad key surfaces as an
// authentication failure from the endpoint.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		APIKey:       strings.TrimSpace(os.Getenv("HUGGINGFACE_API_KEY")),
		APIKeyParam:  strings.TrimSpace(os.Getenv("HUGGINGFACE_API_KEY_PARAM")),
		InferenceURL: getenv("INFERENCE_URL", DefaultInferenceURL),
		ListenAddr:   getenv("LISTEN_ADDR", DefaultListenAddr),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFile:      os.Getenv("LOG_FILE"),

		DownloadTarget:       strings.ToLower(getenv("DOWNLOAD_TARGET", TargetFile)),
		DownloadDir:          getenv("DOWNLOAD_DIR", "."),
		DownloadBucket:       os.Getenv("DOWNLOAD_BUCKET"),
		DownloadDistribution: os.Getenv("DOWNLOAD_DISTRIBUTION"),
		Minio: MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		},
	}

	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		useSSL, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("MINIO_USE_SSL: %w", err)
		}
		cfg.Minio.UseSSL = useSSL
	}

	switch cfg.DownloadTarget {
	case TargetFile:
	case TargetS3:
		if cfg.DownloadBucket == "" {
			return nil, fmt.Errorf("DOWNLOAD_BUCKET is required for download target %q", cfg.DownloadTarget)
		}
	case TargetMinio:
		if cfg.DownloadBucket == "" {
			return nil, fmt.Errorf("DOWNLOAD_BUCKET is required for download target %q", cfg.DownloadTarget)
		}
		if cfg.Minio.Endpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required for download target %q", cfg.DownloadTarget)
		}
	default:
		return nil, fmt.Errorf("unknown DOWNLOAD_TARGET %q", cfg.DownloadTarget)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	return lo.Ternary(v != "", v, fallback)
}
