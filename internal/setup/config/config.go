package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// CurrentVersion is the expected version of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version        int            `koanf:"version"`
	Debug          Debug          `koanf:"debug"`
	Server         Server         `koanf:"server"`
	Retry          Retry          `koanf:"retry"`
	CircuitBreaker CircuitBreaker `koanf:"circuit_breaker"`
	OpenAI         OpenAI         `koanf:"openai"`
	Repository     Repository     `koanf:"repository"`
	Redis          Redis          `koanf:"redis"`
	Assembler      Assembler      `koanf:"assembler"`
	FineTune       FineTune       `koanf:"fine_tune"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// Server contains HTTP server configuration.
type Server struct {
	// Listen address, e.g. ":8090".
	ListenAddr string `koanf:"listen_addr"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
}

// Retry contains retry configuration.
type Retry struct {
	// Maximum retry attempts.
	MaxRetries uint64 `koanf:"max_retries"`
	// Initial retry delay in milliseconds.
	Delay int `koanf:"delay"`
	// Maximum retry delay in milliseconds.
	MaxDelay int `koanf:"max_delay"`
}

// CircuitBreaker contains circuit breaker configuration.
type CircuitBreaker struct {
	// Maximum number of requests allowed to pass through when the circuit is half-open.
	MaxRequests uint32 `koanf:"max_requests"`
	// The cyclic period of the closed state for the circuit breaker to clear the internal counts.
	Interval int `koanf:"interval"`
	// The period of the open state after which the state of the circuit breaker becomes half-open.
	Timeout int `koanf:"timeout"`
}

// OpenAI contains OpenAI-compatible API configuration.
type OpenAI struct {
	// Base URL for the API
	BaseURL string `koanf:"base_url"`
	// API key for authentication
	APIKey string `koanf:"api_key"`
	// Maximum concurrent requests
	MaxConcurrent int64 `koanf:"max_concurrent"`
	// Model name mappings
	ModelMappings map[string]string `koanf:"model_mappings"`
	// Model to use for reply generation
	ChatModel string `koanf:"chat_model"`
	// Model to use for content-safety moderation
	ModerationModel string `koanf:"moderation_model"`
	// Base model for fine-tuning jobs
	FineTuneBaseModel string `koanf:"fine_tune_base_model"`
}

// Repository contains remote repository store configuration.
type Repository struct {
	// API base URL, e.g. https://api.github.com
	BaseURL string `koanf:"base_url"`
	// Access token for authentication
	Token string `koanf:"token"`
	// Repository owner
	Owner string `koanf:"owner"`
	// Repository name
	Name string `koanf:"name"`
	// Branch to read from and write to
	Branch string `koanf:"branch"`
	// Local mirror directory for fallback reads
	MirrorDir string `koanf:"mirror_dir"`
	// Timeout for large-object downloads in milliseconds
	DownloadTimeout int `koanf:"download_timeout"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Assembler contains prompt assembler configuration.
type Assembler struct {
	// Maximum number of in-context examples to inject (0 = no cap).
	ExampleCap int `koanf:"example_cap"`
}

// FineTune contains fine-tuning orchestrator configuration.
type FineTune struct {
	// Minimum number of training examples required to start a job.
	MinExamples int `koanf:"min_examples"`
	// Number of new examples after which a retrain is suggested.
	RetrainThreshold int `koanf:"retrain_threshold"`
	// Minimum customer-message length for an example to qualify.
	MinMessageLength int `koanf:"min_message_length"`
}

// LoadConfig loads the configuration from the specified file.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".chatmod",
		homeDir + "/.chatmod/config",
		"/etc/chatmod/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := path + "/config.toml"
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Version == 0 {
		return nil, "", fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if config.Version != CurrentVersion {
		return nil, "", fmt.Errorf("%w: config.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, config.Version, CurrentVersion)
	}

	return &config, usedConfigPath, nil
}
