package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by Config.Provider.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Model defaults per provider.
// AUTOREADME_MODEL overrides either one.
const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
)

// DefaultFileName is the optional config file looked up at the repository root.
const DefaultFileName = ".autoreadme.yaml"

// ErrMissingCredential is returned when no API key is available for the
// selected provider. Callers treat it as fatal before any folder is touched.
var ErrMissingCredential = errors.New("missing API credential")

// Config holds everything a generation run needs.
type Config struct {
	// Root is the repository root whose immediate subfolders are documented
	Root string `yaml:"-"`

	// Provider selects the AI backend: "gemini" or "anthropic"
	// Default: gemini
	Provider string `yaml:"provider"`

	// Model is the provider model name (empty = provider default)
	Model string `yaml:"model"`

	// APIKey is the credential for Provider. Never read from the YAML file.
	APIKey string `yaml:"-"`

	// OutputFile is the file written into each processed folder
	// Default: README.md
	OutputFile string `yaml:"output_file"`

	// MarkerName is the skip marker (file or directory)
	// Default: .stopautomation
	MarkerName string `yaml:"marker_name"`

	// Exclude lists extra folder names to ignore, on top of the built-in list
	Exclude []string `yaml:"exclude"`

	// MaxFileSize is the largest file (bytes) read into a prompt
	// Default: 100000
	MaxFileSize int64 `yaml:"max_file_size"`

	// MaxFileChars truncates a single file's content
	// Default: 30000
	MaxFileChars int `yaml:"max_file_chars"`

	// MaxPromptChars caps the whole prompt
	// Default: 30000
	MaxPromptChars int `yaml:"max_prompt_chars"`

	// MaxOutputTokens caps the model response
	// Default: 8192
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// MaxRetries is the number of retries per API call (0 = no retries)
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// RequestsPerMinute throttles API calls (0 = unlimited)
	// Default: 10
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// MaxTokensPerRun caps input+output tokens across the whole run (0 = unlimited)
	MaxTokensPerRun int64 `yaml:"max_tokens_per_run"`

	// MaxTokensPerFolder caps input+output tokens per folder (0 = unlimited)
	MaxTokensPerFolder int64 `yaml:"max_tokens_per_folder"`

	// Jobs is the number of folders processed at once
	// Default: 1
	Jobs int `yaml:"jobs"`
}

// Default returns the default configuration rooted at root.
func Default(root string) Config {
	return Config{
		Root:              root,
		Provider:          ProviderGemini,
		OutputFile:        "README.md",
		MarkerName:        ".stopautomation",
		MaxFileSize:       100000,
		MaxFileChars:      30000,
		MaxPromptChars:    30000,
		MaxOutputTokens:   8192,
		MaxRetries:        3,
		RequestsPerMinute: 10,
		Jobs:              1,
	}
}

// Load builds a Config from defaults, the optional YAML file and the
// environment, in that order of precedence. path may be empty, in which case
// <root>/.autoreadme.yaml is used if it exists.
func Load(root, path string) (Config, error) {
	cfg := Default(root)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, DefaultFileName)
	}
	if err := cfg.mergeFile(path, explicit); err != nil {
		return cfg, err
	}

	if err := cfg.mergeEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// fileConfig mirrors the YAML keys of Config. Pointers tell an explicit
// zero apart from a missing key.
type fileConfig struct {
	Provider           *string  `yaml:"provider"`
	Model              *string  `yaml:"model"`
	OutputFile         *string  `yaml:"output_file"`
	MarkerName         *string  `yaml:"marker_name"`
	Exclude            []string `yaml:"exclude"`
	MaxFileSize        *int64   `yaml:"max_file_size"`
	MaxFileChars       *int     `yaml:"max_file_chars"`
	MaxPromptChars     *int     `yaml:"max_prompt_chars"`
	MaxOutputTokens    *int     `yaml:"max_output_tokens"`
	MaxRetries         *int     `yaml:"max_retries"`
	RequestsPerMinute  *int     `yaml:"requests_per_minute"`
	MaxTokensPerRun    *int64   `yaml:"max_tokens_per_run"`
	MaxTokensPerFolder *int64   `yaml:"max_tokens_per_folder"`
	Jobs               *int     `yaml:"jobs"`
}

// mergeFile overlays every key present in a YAML file, zero values included.
// Validate rejects zeros where a limit must be positive.
func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing YAML %s: %w", path, err)
	}

	overlay(&c.Provider, file.Provider)
	overlay(&c.Model, file.Model)
	overlay(&c.OutputFile, file.OutputFile)
	overlay(&c.MarkerName, file.MarkerName)
	if len(file.Exclude) > 0 {
		c.Exclude = append(c.Exclude, file.Exclude...)
	}
	overlay(&c.MaxFileSize, file.MaxFileSize)
	overlay(&c.MaxFileChars, file.MaxFileChars)
	overlay(&c.MaxPromptChars, file.MaxPromptChars)
	overlay(&c.MaxOutputTokens, file.MaxOutputTokens)
	overlay(&c.MaxRetries, file.MaxRetries)
	overlay(&c.RequestsPerMinute, file.RequestsPerMinute)
	overlay(&c.MaxTokensPerRun, file.MaxTokensPerRun)
	overlay(&c.MaxTokensPerFolder, file.MaxTokensPerFolder)
	overlay(&c.Jobs, file.Jobs)
	return nil
}

func overlay[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// mergeEnv overlays AUTOREADME_* variables.
//
// Environment variables:
//   - AUTOREADME_PROVIDER: gemini or anthropic (default: gemini)
//   - AUTOREADME_MODEL: model name (default: per provider)
//   - AUTOREADME_OUTPUT_FILE: output file name (default: README.md)
//   - AUTOREADME_EXCLUDE: comma-separated folder names to ignore
//   - AUTOREADME_MAX_FILE_SIZE: max bytes per input file (default: 100000)
//   - AUTOREADME_MAX_FILE_CHARS: per-file truncation (default: 30000)
//   - AUTOREADME_MAX_PROMPT_CHARS: prompt cap (default: 30000)
//   - AUTOREADME_MAX_OUTPUT_TOKENS: response cap (default: 8192)
//   - AUTOREADME_MAX_RETRIES: retries per call (default: 3)
//   - AUTOREADME_REQUESTS_PER_MINUTE: throttle (default: 10)
//   - AUTOREADME_MAX_TOKENS_PER_RUN: run budget (default: unlimited)
//   - AUTOREADME_MAX_TOKENS_PER_FOLDER: folder budget (default: unlimited)
//   - AUTOREADME_JOBS: folders processed at once (default: 1)
func (c *Config) mergeEnv() error {
	if err := parseEnvString("AUTOREADME_PROVIDER", &c.Provider); err != nil {
		return err
	}
	if err := parseEnvString("AUTOREADME_MODEL", &c.Model); err != nil {
		return err
	}
	if err := parseEnvString("AUTOREADME_OUTPUT_FILE", &c.OutputFile); err != nil {
		return err
	}
	if v := os.Getenv("AUTOREADME_EXCLUDE"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Exclude = append(c.Exclude, name)
			}
		}
	}
	if err := parseEnvInt64("AUTOREADME_MAX_FILE_SIZE", &c.MaxFileSize); err != nil {
		return err
	}
	if err := parseEnvInt("AUTOREADME_MAX_FILE_CHARS", &c.MaxFileChars); err != nil {
		return err
	}
	if err := parseEnvInt("AUTOREADME_MAX_PROMPT_CHARS", &c.MaxPromptChars); err != nil {
		return err
	}
	if err := parseEnvInt("AUTOREADME_MAX_OUTPUT_TOKENS", &c.MaxOutputTokens); err != nil {
		return err
	}
	if err := parseEnvInt("AUTOREADME_MAX_RETRIES", &c.MaxRetries); err != nil {
		return err
	}
	if err := parseEnvInt("AUTOREADME_REQUESTS_PER_MINUTE", &c.RequestsPerMinute); err != nil {
		return err
	}
	if err := parseEnvInt64("AUTOREADME_MAX_TOKENS_PER_RUN", &c.MaxTokensPerRun); err != nil {
		return err
	}
	if err := parseEnvInt64("AUTOREADME_MAX_TOKENS_PER_FOLDER", &c.MaxTokensPerFolder); err != nil {
		return err
	}
	if err := parseEnvInt("AUTOREADME_JOBS", &c.Jobs); err != nil {
		return err
	}
	return nil
}

// ResolveAPIKey fills APIKey from the environment when it is not already set.
// Gemini reads GOOGLE_API_KEY, falling back to GOOGLEAPIKEY.
// Anthropic reads ANTHROPIC_API_KEY.
func (c *Config) ResolveAPIKey() error {
	if c.APIKey != "" {
		return nil
	}

	var names []string
	switch c.Provider {
	case ProviderGemini:
		names = []string{"GOOGLE_API_KEY", "GOOGLEAPIKEY"}
	case ProviderAnthropic:
		names = []string{"ANTHROPIC_API_KEY"}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			c.APIKey = v
			return nil
		}
	}
	return fmt.Errorf("%w: set %s", ErrMissingCredential, strings.Join(names, " or "))
}

// ModelName returns Model, or the provider default when unset.
func (c Config) ModelName() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == ProviderAnthropic {
		return DefaultAnthropicModel
	}
	return DefaultGeminiModel
}

// Validate checks if the configuration has valid values.
// It does not check the credential; see ResolveAPIKey.
func (c Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.Provider != ProviderGemini && c.Provider != ProviderAnthropic {
		return fmt.Errorf("provider must be %q or %q (got %q)", ProviderGemini, ProviderAnthropic, c.Provider)
	}
	if c.OutputFile == "" || strings.ContainsAny(c.OutputFile, `/\`) {
		return fmt.Errorf("output_file must be a plain file name (got %q)", c.OutputFile)
	}
	if c.MarkerName == "" {
		return fmt.Errorf("marker_name is required")
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("max_file_size must be at least 1 (got %d)", c.MaxFileSize)
	}
	if c.MaxFileChars < 1 {
		return fmt.Errorf("max_file_chars must be at least 1 (got %d)", c.MaxFileChars)
	}
	if c.MaxPromptChars < 1000 {
		return fmt.Errorf("max_prompt_chars must be at least 1000 (got %d)", c.MaxPromptChars)
	}
	if c.MaxOutputTokens < 1 {
		return fmt.Errorf("max_output_tokens must be at least 1 (got %d)", c.MaxOutputTokens)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 0 and 10 (got %d)", c.MaxRetries)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative (got %d)", c.RequestsPerMinute)
	}
	if c.MaxTokensPerRun < 0 || c.MaxTokensPerFolder < 0 {
		return fmt.Errorf("token budgets cannot be negative")
	}
	if c.Jobs < 1 || c.Jobs > 16 {
		return fmt.Errorf("jobs must be between 1 and 16 (got %d)", c.Jobs)
	}
	return nil
}

// String returns a human-readable representation of the config.
// The API key is never printed.
func (c Config) String() string {
	key := "unset"
	if c.APIKey != "" {
		key = "set"
	}
	return fmt.Sprintf(
		"Config{Root: %s, Provider: %s, Model: %s, APIKey: %s, Output: %s, "+
			"MaxFileSize: %d, MaxFileChars: %d, MaxPromptChars: %d, Retries: %d, RPM: %d, Jobs: %d}",
		c.Root, c.Provider, c.ModelName(), key, c.OutputFile,
		c.MaxFileSize, c.MaxFileChars, c.MaxPromptChars, c.MaxRetries, c.RequestsPerMinute, c.Jobs,
	)
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt64 parses an int64 from an environment variable
func parseEnvInt64(key string, dest *int64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
