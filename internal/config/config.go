package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	StorageLocal = "local"
	StorageMinio = "minio"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Provider string         `yaml:"provider"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Image    ImageConfig    `yaml:"image"`
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	MaxUploadMB  int64         `yaml:"maxUploadMB"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type OpenAIConfig struct {
	APIKey      string `yaml:"apiKey"`
	BaseURL     string `yaml:"baseURL"`
	VisionModel string `yaml:"visionModel"`
	TextModel   string `yaml:"textModel"`
	MaxTokens   int    `yaml:"maxTokens"`
}

type GeminiConfig struct {
	APIKey    string `yaml:"apiKey"`
	Model     string `yaml:"model"`
	TextModel string `yaml:"textModel"`
	Endpoint  string `yaml:"endpoint"`
}

type AnalysisConfig struct {
	Format string `yaml:"format"`
	// Timeout bounds one analysis including section fallback calls. 0 disables it.
	Timeout         time.Duration `yaml:"timeout"`
	DisableFallback bool          `yaml:"disableFallback"`
}

type ImageConfig struct {
	MaxDimension int `yaml:"maxDimension"`
	JPEGQuality  int `yaml:"jpegQuality"`
}

type StorageConfig struct {
	Driver string      `yaml:"driver"`
	Dir    string      `yaml:"dir"`
	Minio  MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
	Prefix     string `yaml:"prefix"`
}

type SecurityConfig struct {
	// CSRFKey must be 32 bytes. An empty key turns CSRF protection off.
	CSRFKey        string   `yaml:"csrfKey"`
	CSRFSecure     bool     `yaml:"csrfSecure"`
	TrustedOrigins []string `yaml:"trustedOrigins"`
	CORSOrigins    []string `yaml:"corsOrigins"`
	// APIKeys maps a client name to its key. Empty means the JSON API is open.
	APIKeys   map[string]string `yaml:"apiKeys"`
	RateLimit RateLimitConfig   `yaml:"rateLimit"`
}

type RateLimitConfig struct {
	Capacity        int `yaml:"capacity"`
	RefillPerSecond int `yaml:"refillPerSecond"`
}

// Default returns a config that runs locally with OpenAI and on-disk staging.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 180 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxUploadMB:  10,
		},
		Log:      LogConfig{Level: "info", Format: "text"},
		Provider: ProviderOpenAI,
		OpenAI: OpenAIConfig{
			VisionModel: "gpt-4o-mini",
			TextModel:   "gpt-4o-mini",
			MaxTokens:   2048,
		},
		Gemini:   GeminiConfig{Model: "gemini-1.5-flash"},
		Analysis: AnalysisConfig{Format: "json"},
		Image:    ImageConfig{MaxDimension: 1024, JPEGQuality: 85},
		Storage:  StorageConfig{Driver: StorageLocal, Dir: "./temp"},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{Capacity: 10, RefillPerSecond: 1},
		},
	}
}

// Load reads .env (when present), then the YAML file at path (when path is
// not empty), then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not read .env")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Provider, "AI_PROVIDER")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Storage.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Storage.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Security.CSRFKey, "CSRF_KEY")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		keys, err := parseAPIKeys(v)
		if err != nil {
			return err
		}
		c.Security.APIKeys = keys
	}
	return nil
}

// parseAPIKeys reads "name:key,name2:key2".
func parseAPIKeys(v string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, key, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry %q (want name:key)", pair)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(key)
	}
	return out, nil
}

// Validate collects every problem instead of stopping at the first one.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.maxUploadMB must be positive"))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format))
	}

	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for provider openai"))
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for provider gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider must be openai or gemini (got %q)", c.Provider))
	}

	switch strings.ToLower(c.Analysis.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("analysis.format must be json or text (got %q)", c.Analysis.Format))
	}
	if c.Analysis.Timeout < 0 {
		errs = append(errs, errors.New("analysis.timeout must not be negative"))
	}

	switch c.Storage.Driver {
	case StorageLocal:
	case StorageMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.BucketName == "" {
			errs = append(errs, errors.New("storage.minio.endpoint and storage.minio.bucketName are required for driver minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be local or minio (got %q)", c.Storage.Driver))
	}

	if k := c.Security.CSRFKey; k != "" && len(k) != 32 {
		errs = append(errs, fmt.Errorf("CSRF_KEY must be exactly 32 bytes (got %d)", len(k)))
	}
	if rl := c.Security.RateLimit; rl.Capacity < 0 || rl.RefillPerSecond < 0 {
		errs = append(errs, errors.New("security.rateLimit values must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%w", errors.Join(errs...))
	}
	return nil
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
