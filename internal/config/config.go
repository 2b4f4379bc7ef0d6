// Package config resolves the process-wide configuration once at startup.
// Values come from, in increasing precedence: defaults, an optional
// scan2sheet.yaml config file, and environment variables (a .env file is
// loaded into the environment by main). The result is passed explicitly to
// the components that need it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"scan2sheet/internal/logger"
	"scan2sheet/internal/recognition"
)

const (
	// ConfigFileName is the base name of the optional config file.
	ConfigFileName = "scan2sheet"

	// BackendAzure selects Azure AI Document Intelligence (prebuilt-layout).
	BackendAzure = recognition.BackendAzure

	// BackendDocumentAI selects Google Cloud Document AI.
	BackendDocumentAI = recognition.BackendDocumentAI
)

// Configuration errors. All of them are fatal: the process must not accept
// uploads without a usable recognition backend.
var (
	ErrMissingEndpoint  = errors.New("recognition endpoint is required (set DOCUMENT_INTELLIGENCE_ENDPOINT or ENDPOINT)")
	ErrMissingKey       = errors.New("recognition API key is required (set DOCUMENT_INTELLIGENCE_KEY or KEY)")
	ErrMissingProject   = errors.New("GOOGLE_CLOUD_PROJECT is required for the documentai backend")
	ErrMissingProcessor = errors.New("DOCUMENT_AI_PROCESSOR_ID is required for the documentai backend")
	ErrUnknownBackend   = errors.New("unknown recognition backend")
	ErrInvalidValue     = errors.New("invalid configuration value")
)

type Config struct {
	// Recognition backend selection and shared call policy
	RecognitionBackend string
	RecognitionTimeout time.Duration
	MaxRetries         int
	Workers            int

	// Azure AI Document Intelligence
	Endpoint   string
	APIKey     string
	APIVersion string
	ModelID    string

	// Google Cloud Document AI
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string
	GoogleCredentialsJSON      string
	GoogleCredentialsFile      string

	// Image handling
	JPEGQuality  int
	MaxDimension int
	MaxPDFMB     int64

	// HTTP server
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// Google Sheets publishing (optional)
	GoogleSheetURL string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads configuration and validates it. configFile may be empty, in
// which case scan2sheet.yaml is looked up in the working directory and
// $HOME/.config/scan2sheet; a missing file is not an error.
func Load(configFile string) (*Config, error) {
	cfg, err := LoadWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithoutValidation reads configuration without checking credentials.
// Commands that never call the recognition service use it.
func LoadWithoutValidation(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigFileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/scan2sheet")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("recognition_backend", BackendAzure)
	v.SetDefault("recognition_timeout", 2*time.Minute)
	v.SetDefault("max_retries", 3)
	v.SetDefault("workers", 1)

	v.SetDefault("api_version", "2023-07-31")
	v.SetDefault("model_id", "prebuilt-layout")

	v.SetDefault("google_cloud_location", "us")

	v.SetDefault("jpeg_quality", 90)
	v.SetDefault("max_dimension", 10000)
	v.SetDefault("max_pdf_mb", 50)

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("cors_origin", "*")
	v.SetDefault("max_upload_mb", 50)
	v.SetDefault("request_timeout", 10*time.Minute)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_time_format", time.RFC3339)
	v.SetDefault("log_output", "stderr")
}

// bindEnv maps keys to environment variables. The bare KEY and ENDPOINT
// names are accepted as fallbacks for existing deployments.
func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("endpoint", "DOCUMENT_INTELLIGENCE_ENDPOINT", "ENDPOINT")
	_ = v.BindEnv("api_key", "DOCUMENT_INTELLIGENCE_KEY", "KEY")
	_ = v.BindEnv("google_cloud_project", "GOOGLE_CLOUD_PROJECT", "GOOGLE_PROJECT_ID")
	_ = v.BindEnv("google_cloud_location", "GOOGLE_CLOUD_LOCATION", "GOOGLE_LOCATION")
	_ = v.BindEnv("document_ai_processor_id", "DOCUMENT_AI_PROCESSOR_ID", "GOOGLE_PROCESSOR_ID")
	_ = v.BindEnv("google_credentials_json", "GOOGLE_CREDENTIALS")
	_ = v.BindEnv("google_credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		RecognitionBackend: strings.ToLower(strings.TrimSpace(v.GetString("recognition_backend"))),
		RecognitionTimeout: v.GetDuration("recognition_timeout"),
		MaxRetries:         v.GetInt("max_retries"),
		Workers:            v.GetInt("workers"),

		Endpoint:   strings.TrimRight(strings.TrimSpace(v.GetString("endpoint")), "/"),
		APIKey:     strings.TrimSpace(v.GetString("api_key")),
		APIVersion: v.GetString("api_version"),
		ModelID:    v.GetString("model_id"),

		GoogleCloudProject:         v.GetString("google_cloud_project"),
		GoogleCloudLocation:        v.GetString("google_cloud_location"),
		DocumentAIProcessorID:      v.GetString("document_ai_processor_id"),
		DocumentAIProcessorVersion: v.GetString("document_ai_processor_version"),
		GoogleCredentialsJSON:      v.GetString("google_credentials_json"),
		GoogleCredentialsFile:      v.GetString("google_credentials_file"),

		JPEGQuality:  v.GetInt("jpeg_quality"),
		MaxDimension: v.GetInt("max_dimension"),
		MaxPDFMB:     v.GetInt64("max_pdf_mb"),

		Host:            v.GetString("host"),
		Port:            v.GetInt("port"),
		CORSOrigin:      v.GetString("cors_origin"),
		MaxUploadMB:     v.GetInt64("max_upload_mb"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),

		GoogleSheetURL: v.GetString("google_sheet_url"),

		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
		LogTimeFormat: v.GetString("log_time_format"),
		LogOutput:     v.GetString("log_output"),
	}
}

func (c *Config) validate() error {
	switch c.RecognitionBackend {
	case BackendAzure:
		if c.Endpoint == "" {
			return ErrMissingEndpoint
		}
		if c.APIKey == "" {
			return ErrMissingKey
		}
	case BackendDocumentAI:
		if c.GoogleCloudProject == "" {
			return ErrMissingProject
		}
		if c.DocumentAIProcessorID == "" {
			return ErrMissingProcessor
		}
	default:
		return fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownBackend, c.RecognitionBackend, BackendAzure, BackendDocumentAI)
	}

	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidValue, c.Workers)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative, got %d", ErrInvalidValue, c.MaxRetries)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg_quality must be within 1..100, got %d", ErrInvalidValue, c.JPEGQuality)
	}
	if c.RecognitionTimeout <= 0 {
		return fmt.Errorf("%w: recognition_timeout must be positive", ErrInvalidValue)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// MaxPDFBytes returns the PDF size limit in bytes.
func (c *Config) MaxPDFBytes() int64 {
	return c.MaxPDFMB * 1024 * 1024
}

// RecognizerConfig returns the recognition backend configuration.
func (c *Config) RecognizerConfig() recognition.Config {
	return recognition.Config{
		Backend:    c.RecognitionBackend,
		Timeout:    c.RecognitionTimeout,
		MaxRetries: c.MaxRetries,

		Endpoint:   c.Endpoint,
		APIKey:     c.APIKey,
		APIVersion: c.APIVersion,
		ModelID:    c.ModelID,

		ProjectID:        c.GoogleCloudProject,
		Location:         c.GoogleCloudLocation,
		ProcessorID:      c.DocumentAIProcessorID,
		ProcessorVersion: c.DocumentAIProcessorVersion,
		CredentialsJSON:  c.GoogleCredentialsJSON,
		CredentialsFile:  c.GoogleCredentialsFile,
	}
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxUploadBytes returns the request body limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}
