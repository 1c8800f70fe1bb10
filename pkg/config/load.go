package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the provider registry at path, applies .env files and
// environment overrides, validates, and resolves everything into an
// immutable Resolved config. Unknown registry keys are a hard error.
//
// .env loading order (first hit wins per variable, matching godotenv
// semantics): ENV_FILE if set, then .env.local, then .env. Missing files
// are fine.
func Load(path string) (*Resolved, []string, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg AppConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: parse %s: %v", ErrValidation, path, err)
	}

	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}

	resolved, err := cfg.Resolve()
	if err != nil {
		return nil, warnings, err
	}
	return resolved, warnings, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
