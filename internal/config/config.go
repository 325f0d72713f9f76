package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Klaviyo   KlaviyoConfig   `yaml:"klaviyo"`
	CDN       CDNConfig       `yaml:"cdn"`
	Redis     RedisConfig     `yaml:"redis"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Release   ReleaseConfig   `yaml:"release"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether contact data should be masked. Defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// RevisionConfig maps an API version label to the dated revision header and endpoint
type RevisionConfig struct {
	Revision string `yaml:"revision"`
	Endpoint string `yaml:"endpoint"`
}

// TrackingDefaults toggles the view/submit tracking events. Unset means enabled.
type TrackingDefaults struct {
	ViewForm   *bool `yaml:"view_form"`
	SubmitForm *bool `yaml:"submit_form"`
}

// FormDefaults holds the library-wide form configuration (the lowest layer
// of per-form resolution). A nil UseLibPhoneNumber means enabled.
type FormDefaults struct {
	ListID            string                 `yaml:"list_id"`
	Tracking          TrackingDefaults       `yaml:"tracking"`
	CustomProperties  map[string]interface{} `yaml:"custom_properties"`
	UseLibPhoneNumber *bool                  `yaml:"use_lib_phone_number"`
	Debug             bool                   `yaml:"debug"`
	APIVersion        string                 `yaml:"api_version"`
	MaxRetries        int                    `yaml:"max_retries"`
}

// KlaviyoConfig holds vendor API and form integration configuration.
// Forms holds per-form overrides keyed by form element id; keys follow the
// data-klaviyo-config JSON names (listId, publicApiKey, fieldMapping, ...).
type KlaviyoConfig struct {
	PublicAPIKey   string                            `yaml:"public_api_key"`
	Revisions      map[string]RevisionConfig         `yaml:"revisions"`
	FieldMappings  map[string]string                 `yaml:"field_mappings"`
	Defaults       FormDefaults                      `yaml:"defaults"`
	Forms          map[string]map[string]interface{} `yaml:"forms"`
	BaseDelayMs    int                               `yaml:"base_delay_ms"`
	TimeoutSeconds int                               `yaml:"timeout_seconds"`
}

// Timeout returns the configured request timeout as a duration
func (c KlaviyoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BaseDelay returns the first retry delay as a duration
func (c KlaviyoConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// CDNConfig holds script delivery configuration
type CDNConfig struct {
	PublicDir       string `yaml:"public_dir"`
	AssetsDir       string `yaml:"assets_dir"`
	VersionsFile    string `yaml:"versions_file"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
	AWSRegion       string `yaml:"aws_region"`
	AWSProfile      string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the script cache expiry as a duration
func (c CDNConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c CDNConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the script cache connection
type RedisConfig struct {
	URL string `yaml:"url"`
}

// TrackingConfig holds the tracking event transport settings
type TrackingConfig struct {
	SQSQueueURL string `yaml:"sqs_queue_url"`
	AWSRegion   string `yaml:"aws_region"`
}

// AnalyticsConfig holds the script usage analytics sink
type AnalyticsConfig struct {
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	TTLDays       int    `yaml:"ttl_days"`
}

// ReleaseConfig holds release tooling settings
type ReleaseConfig struct {
	CloudFrontDistributionID string `yaml:"cloudfront_distribution_id"`
}

// Default returns a configuration with every default applied and no file read.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Klaviyo.BaseDelayMs == 0 {
		cfg.Klaviyo.BaseDelayMs = 300
	}
	if cfg.Klaviyo.TimeoutSeconds == 0 {
		cfg.Klaviyo.TimeoutSeconds = 30
	}
	if cfg.Klaviyo.Defaults.APIVersion == "" {
		cfg.Klaviyo.Defaults.APIVersion = "latest"
	}
	if cfg.Klaviyo.Defaults.MaxRetries == 0 {
		cfg.Klaviyo.Defaults.MaxRetries = 3
	}
	if cfg.CDN.PublicDir == "" {
		cfg.CDN.PublicDir = "public"
	}
	if cfg.CDN.AssetsDir == "" {
		cfg.CDN.AssetsDir = "../script-assets"
	}
	if cfg.CDN.AWSRegion == "" {
		cfg.CDN.AWSRegion = "us-east-1"
	}
	if cfg.CDN.CacheTTLSeconds == 0 {
		cfg.CDN.CacheTTLSeconds = 3600
	}
	if cfg.Tracking.AWSRegion == "" {
		cfg.Tracking.AWSRegion = cfg.CDN.AWSRegion
	}
	if cfg.Analytics.AWSRegion == "" {
		cfg.Analytics.AWSRegion = cfg.CDN.AWSRegion
	}
	if cfg.Analytics.TTLDays == 0 {
		cfg.Analytics.TTLDays = 90
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// A missing config file is not an error: defaults plus env are used.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KLAVIYO_PUBLIC_API_KEY"); v != "" {
		cfg.Klaviyo.PublicAPIKey = v
	}
	if v := os.Getenv("KLAVIYO_LIST_ID"); v != "" {
		cfg.Klaviyo.Defaults.ListID = v
	}
	if v := os.Getenv("SCRIPT_S3_BUCKET"); v != "" {
		cfg.CDN.S3Bucket = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SQS_TRACKING_QUEUE_URL"); v != "" {
		cfg.Tracking.SQSQueueURL = v
	}
	if v := os.Getenv("ANALYTICS_DYNAMODB_TABLE"); v != "" {
		cfg.Analytics.DynamoDBTable = v
	}
	if v := os.Getenv("CLOUDFRONT_DISTRIBUTION_ID"); v != "" {
		cfg.Release.CloudFrontDistributionID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}
