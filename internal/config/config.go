package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable runtime configuration. Constructed once by Load
// and passed by value; nothing mutates it afterwards.
type Config struct {
	LogLevel string `yaml:"log_level"`

	InputDir      string `yaml:"input_dir"`
	BackupDir     string `yaml:"backup_dir"`
	ProcessingDir string `yaml:"processing_dir"`
	OutputDir     string `yaml:"output_dir"`
	ErrorDir      string `yaml:"error_dir"`

	DocExtension    string `yaml:"doc_extension"`
	ContextFilename string `yaml:"context_filename"`

	DebounceSettleDelay  time.Duration `yaml:"debounce_settle_delay"`
	DebouncePollInterval time.Duration `yaml:"debounce_poll_interval"`
	DebounceMaxAttempts  int           `yaml:"debounce_max_attempts"`

	QueuePollTimeout time.Duration `yaml:"queue_poll_timeout"`

	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`

	// PostgresDSN enables the archive decision journal when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`

	// NATSURL enables the event bridge when non-empty.
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	MetricsPort string `yaml:"metrics_port"`
}

// Load builds the configuration from defaults, an optional YAML settings
// file named by DOCMIND_CONFIG, and environment variable overrides, in that
// order of precedence (env wins).
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("DOCMIND_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read settings file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse settings file: %w", err)
		}
	}

	applyEnv(&cfg)

	if !strings.HasPrefix(cfg.DocExtension, ".") {
		cfg.DocExtension = "." + cfg.DocExtension
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		LogLevel: "info",

		InputDir:      "./input",
		BackupDir:     "./backup",
		ProcessingDir: "./processing",
		OutputDir:     "./output",
		ErrorDir:      "./error",

		DocExtension:    ".pdf",
		ContextFilename: ".ai_context.md",

		DebounceSettleDelay:  time.Second,
		DebouncePollInterval: time.Second,
		DebounceMaxAttempts:  10,

		QueuePollTimeout: 500 * time.Millisecond,

		OllamaURL:   "http://localhost:11434",
		OllamaModel: "qwen2.5:7b",

		NATSSubject: "docmind.events",

		MetricsPort: "9090",
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setString(&cfg.InputDir, "INPUT_DIR")
	setString(&cfg.BackupDir, "BACKUP_DIR")
	setString(&cfg.ProcessingDir, "PROCESSING_DIR")
	setString(&cfg.OutputDir, "OUTPUT_DIR")
	setString(&cfg.ErrorDir, "ERROR_DIR")

	setString(&cfg.DocExtension, "DOC_EXTENSION")
	setString(&cfg.ContextFilename, "CONTEXT_FILENAME")

	setDuration(&cfg.DebounceSettleDelay, "DEBOUNCE_SETTLE_DELAY")
	setDuration(&cfg.DebouncePollInterval, "DEBOUNCE_POLL_INTERVAL")
	setInt(&cfg.DebounceMaxAttempts, "DEBOUNCE_MAX_ATTEMPTS")

	setDuration(&cfg.QueuePollTimeout, "QUEUE_POLL_TIMEOUT")

	setString(&cfg.OllamaURL, "OLLAMA_URL")
	setString(&cfg.OllamaModel, "OLLAMA_MODEL")

	setString(&cfg.PostgresDSN, "POSTGRES_DSN")

	setString(&cfg.NATSURL, "NATS_URL")
	setString(&cfg.NATSSubject, "NATS_SUBJECT")

	setString(&cfg.MetricsPort, "METRICS_PORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
