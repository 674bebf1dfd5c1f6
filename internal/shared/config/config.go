package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ats-matcher/internal/prompt"
)

// ErrMissingAPIKey is returned by Load when no model provider credential is configured.
var ErrMissingAPIKey = errors.New("missing LLM API key")

var validate = validator.New()

// Config holds application configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Port            string   `yaml:"port" validate:"required"`
	Env             string   `yaml:"env" validate:"oneof=dev local staging production"`
	LogLevel        string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	CORSAllowOrigin []string `yaml:"cors_allow_origins"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes" validate:"gt=0"`

	LLMProvider         string        `yaml:"llm_provider" validate:"oneof=gemini claude"`
	LLMAPIKey           string        `yaml:"llm_api_key" validate:"required"`
	LLMModel            string        `yaml:"llm_model"`
	LLMModelPreferences []string      `yaml:"llm_model_preferences"`
	LLMBaseURL          string        `yaml:"llm_base_url" validate:"omitempty,url"`
	LLMTimeout          time.Duration `yaml:"llm_timeout" validate:"gt=0"`
	LLMRetryBackoff     time.Duration `yaml:"llm_retry_backoff" validate:"gte=0"`
	LLMMaxOutputTokens  int           `yaml:"llm_max_output_tokens" validate:"gt=0"`
	LLMTemperature      float64       `yaml:"llm_temperature" validate:"gte=0,lte=2"`

	ExtractMode  string `yaml:"extract_mode" validate:"oneof=text image"`
	PdftoppmPath string `yaml:"pdftoppm_path"`
	JPEGQuality  int    `yaml:"jpeg_quality" validate:"gte=1,lte=100"`

	TruncateInputs         bool `yaml:"truncate_inputs"`
	MaxResumeChars         int  `yaml:"max_resume_chars" validate:"gte=0"`
	MaxJobDescriptionChars int  `yaml:"max_job_description_chars" validate:"gte=0"`

	ObjectStoreType string `yaml:"object_store" validate:"oneof=none local s3"`
	LocalStoreDir   string `yaml:"local_store_dir"`
	AWSRegion       string `yaml:"aws_region"`
	S3Bucket        string `yaml:"s3_bucket" validate:"required_if=ObjectStoreType s3"`
	S3Prefix        string `yaml:"s3_prefix"`
	SSEKMSKeyID     string `yaml:"sse_kms_key_id"`

	// S3Endpoint targets an S3-compatible service such as MinIO.
	S3Endpoint         string `yaml:"s3_endpoint" validate:"omitempty,url"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
}

// Defaults returns the configuration used before any file or environment is applied.
func Defaults() Config {
	return Config{
		Port:                   "8080",
		Env:                    "dev",
		LogLevel:               "info",
		CORSAllowOrigin:        []string{"http://localhost:5173"},
		MaxUploadBytes:         10 << 20,
		LLMProvider:            "gemini",
		LLMTimeout:             30 * time.Second,
		LLMRetryBackoff:        2 * time.Second,
		LLMMaxOutputTokens:     2048,
		LLMTemperature:         0.2,
		ExtractMode:            "text",
		PdftoppmPath:           "pdftoppm",
		JPEGQuality:            90,
		MaxResumeChars:         prompt.DefaultMaxResumeChars,
		MaxJobDescriptionChars: prompt.DefaultMaxJobDescriptionChars,
		ObjectStoreType:        "none",
		LocalStoreDir:          "./data",
	}
}

// Load reads configuration from defaults, env files, an optional YAML file
// named by CONFIG_FILE, and environment variables, in that order.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, err
		}
		cfg.LLMProvider = normalizeProvider(cfg.LLMProvider)
		cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the assembled configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.LLMAPIKey) == "" {
		return fmt.Errorf("%w: set %s", ErrMissingAPIKey, strings.Join(apiKeyVars(c.LLMProvider), " or "))
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error

	setString(&cfg.Port, "PORT")
	if v, ok := lookup("ENV"); ok {
		cfg.Env = normalizeEnv(v)
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := lookup("CORS_ALLOW_ORIGINS"); ok {
		cfg.CORSAllowOrigin = splitAndTrim(v)
	}
	errs = append(errs, setInt64(&cfg.MaxUploadBytes, "MAX_UPLOAD_BYTES"))

	if v, ok := lookup("LLM_PROVIDER"); ok {
		cfg.LLMProvider = normalizeProvider(v)
	}
	for _, key := range apiKeyVars(cfg.LLMProvider) {
		if v, ok := lookup(key); ok {
			cfg.LLMAPIKey = v
			break
		}
	}
	setString(&cfg.LLMModel, "LLM_MODEL")
	if v, ok := lookup("LLM_MODEL_PREFERENCES"); ok {
		cfg.LLMModelPreferences = splitAndTrim(v)
	}
	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	errs = append(errs,
		setDuration(&cfg.LLMTimeout, "LLM_TIMEOUT"),
		setDuration(&cfg.LLMRetryBackoff, "LLM_RETRY_BACKOFF"),
		setInt(&cfg.LLMMaxOutputTokens, "LLM_MAX_OUTPUT_TOKENS"),
		setFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE"),
	)

	if v, ok := lookup("EXTRACT_MODE"); ok {
		cfg.ExtractMode = strings.ToLower(v)
	}
	setString(&cfg.PdftoppmPath, "PDFTOPPM_PATH")
	errs = append(errs,
		setInt(&cfg.JPEGQuality, "JPEG_QUALITY"),
		setBool(&cfg.TruncateInputs, "TRUNCATE_INPUTS"),
		setInt(&cfg.MaxResumeChars, "MAX_RESUME_CHARS"),
		setInt(&cfg.MaxJobDescriptionChars, "MAX_JOB_DESCRIPTION_CHARS"),
	)

	if v, ok := lookup("OBJECT_STORE"); ok {
		cfg.ObjectStoreType = normalizeStoreType(v)
	}
	setString(&cfg.LocalStoreDir, "LOCAL_STORE_DIR")
	setString(&cfg.AWSRegion, "AWS_REGION")
	setString(&cfg.S3Bucket, "S3_BUCKET")
	setString(&cfg.S3Prefix, "S3_PREFIX")
	setString(&cfg.SSEKMSKeyID, "SSE_KMS_KEY_ID")
	setString(&cfg.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.AWSAccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.AWSSecretAccessKey, "AWS_SECRET_ACCESS_KEY")

	return errors.Join(errs...)
}

// apiKeyVars lists the environment variables consulted for the provider key, in priority order.
func apiKeyVars(provider string) []string {
	if provider == "claude" {
		return []string{"LLM_API_KEY", "ANTHROPIC_API_KEY"}
	}
	return []string{"LLM_API_KEY", "GENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}
}

func lookup(key string) (string, bool) {
	val := strings.TrimSpace(os.Getenv(key))
	return val, val != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

// setDuration accepts Go durations ("30s") or a bare number of seconds.
func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "claude", "anthropic":
		return "claude"
	case "gemini", "google", "genai":
		return "gemini"
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "local":
		return "local"
	default:
		return "none"
	}
}
