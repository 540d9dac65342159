package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// maxEnvSearchDepth bounds the upward search for a .env file.
const maxEnvSearchDepth = 5

// Load builds the configuration from defaults, the YAML file at path (optional
// when empty) and the environment. The provider is inferred from the model when
// the file does not name one, and the default Groq fallback model is dropped
// for every other provider.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg, os.Getenv)

	if cfg.Provider == "" {
		provider, err := GetModelProvider(cfg.Model)
		if err != nil {
			return nil, err
		}
		cfg.Provider = provider
	}
	// The built-in fallback is a Groq model; other providers get no fallback
	// unless one is configured.
	if cfg.FallbackModel == DefaultFallbackModel && cfg.Provider != ProviderGroq {
		cfg.FallbackModel = ""
	}
	if cfg.BaseURL == "" && cfg.Provider == ProviderOllama {
		cfg.BaseURL = os.Getenv(EnvOllamaHost)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err //nolint:wrapcheck // wrapped by caller with the file path
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := getenv(EnvFallbackModel); v != "" {
		cfg.FallbackModel = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. With an explicit path the file
// must exist; otherwise the working directory and its parents are searched and
// a missing file is not an error. It returns the path that was loaded, if any.
func LoadDotEnv(explicit string) (string, error) {
	if explicit != "" {
		if err := godotenv.Load(explicit); err != nil {
			return "", fmt.Errorf("failed to load env file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", nil //nolint:nilerr // no working directory means nothing to discover
	}
	for i := 0; i < maxEnvSearchDepth; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, statErr := os.Stat(envPath); statErr == nil {
			if loadErr := godotenv.Load(envPath); loadErr != nil {
				return "", fmt.Errorf("failed to load env file %s: %w", envPath, loadErr)
			}
			return envPath, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}
