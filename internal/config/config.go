package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"voxstudio/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "configs/config.yaml"

type Config struct {
	HTTP struct {
		Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
		AllowedOrigins  []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:"*"`
	} `yaml:"http"`

	Log struct {
		Debug    bool   `yaml:"debug" env:"LOG_DEBUG" env-default:"false"`
		Level    string `yaml:"level" env:"LOG_LEVEL"`
		Encoding string `yaml:"encoding" env:"LOG_ENCODING"`
	} `yaml:"log"`

	Ingest struct {
		MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"INGEST_MAX_UPLOAD_BYTES" env-default:"104857600"`
		ScratchDir     string `yaml:"scratch_dir" env:"INGEST_SCRATCH_DIR"`
	} `yaml:"ingest"`

	Deepgram struct {
		APIKey         string        `yaml:"api_key" env:"DEEPGRAM_API_KEY"`
		BaseURL        string        `yaml:"base_url" env:"DEEPGRAM_BASE_URL" env-default:"https://api.deepgram.com"`
		Model          string        `yaml:"model" env:"DEEPGRAM_MODEL" env-default:"nova-2"`
		Language       string        `yaml:"language" env:"DEEPGRAM_LANGUAGE" env-default:"hi"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" env:"DEEPGRAM_CONNECT_TIMEOUT" env-default:"10s"`
		ReadTimeout    time.Duration `yaml:"read_timeout" env:"DEEPGRAM_READ_TIMEOUT" env-default:"300s"`
	} `yaml:"deepgram"`

	Synthesis struct {
		Disabled         bool          `yaml:"disabled" env:"SYNTHESIS_DISABLED"`
		ServerURL        string        `yaml:"server_url" env:"ZONOS_SERVER_URL" env-default:"http://localhost:7860"`
		Model            string        `yaml:"model" env:"ZONOS_MODEL" env-default:"Zyphra/Zonos-v0.1-transformer"`
		Device           string        `yaml:"device" env:"ZONOS_DEVICE" env-default:"cuda"`
		RequestTimeout   time.Duration `yaml:"request_timeout" env:"ZONOS_REQUEST_TIMEOUT"`
		EspeakPath       string        `yaml:"espeak_path" env:"PHONEMIZER_ESPEAK_PATH" env-default:"/usr/bin/espeak-ng"`
		EspeakLibrary    string        `yaml:"espeak_library" env:"PHONEMIZER_ESPEAK_LIBRARY" env-default:"/usr/lib/x86_64-linux-gnu/libespeak-ng.so"`
		MaxReferenceSecs float64       `yaml:"max_reference_seconds" env:"SYNTHESIS_MAX_REFERENCE_SECONDS" env-default:"10"`
	} `yaml:"synthesis"`

	Postgres struct {
		DSN            string `yaml:"dsn" env:"DATABASE_URL"`
		MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	} `yaml:"postgres"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	} `yaml:"s3"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
		Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"voxstudio"`
	} `yaml:"redis"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`

	Telegram struct {
		Token string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
	} `yaml:"telegram"`

	Runs struct {
		ViewTTL time.Duration `yaml:"view_ttl" env:"RUN_VIEW_TTL" env-default:"1h"`
	} `yaml:"runs"`
}

// LoadConfig reads CONFIG_PATH (or configs/config.yaml) and applies
// environment overrides. A missing file is fine: env and defaults apply.
func LoadConfig() (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from env: %w", err)
		}
	}

	if cfg.Ingest.ScratchDir == "" {
		cfg.Ingest.ScratchDir = os.TempDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Config loaded successfully")
	return &cfg, nil
}

// Validate checks the values every front end needs
func (c *Config) Validate() error {
	var errs []error

	if c.Deepgram.APIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY is required"))
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("ingest.max_upload_bytes must be positive"))
	}
	if c.Deepgram.ConnectTimeout <= 0 || c.Deepgram.ReadTimeout <= 0 {
		errs = append(errs, errors.New("deepgram timeouts must be positive"))
	}
	if c.S3.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required"))
	}
	if !c.Synthesis.Disabled && c.Synthesis.ServerURL == "" {
		errs = append(errs, errors.New("ZONOS_SERVER_URL is required when synthesis is enabled"))
	}

	return errors.Join(errs...)
}

// Usage returns the environment variable help text
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
