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

// FileConfig is the per-user configuration file (~/.citnet/config.yaml).
type FileConfig struct {
	ADS struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"ads"`
	Snowball struct {
		StartYear int `yaml:"start_year"`
		EndYear   int `yaml:"end_year"`
	} `yaml:"snowball"`
}

// DefaultUserFile returns ~/.citnet/config.yaml, or a relative path if the home
// directory cannot be resolved.
func DefaultUserFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".citnet", "config.yaml")
	}
	return filepath.Join(home, ".citnet", "config.yaml")
}

// ReadFile loads the user file. A missing file yields an empty config.
func ReadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &FileConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// SaveFile writes the user file, creating its directory.
func SaveFile(path string, fc *FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ParseInterval parses a year interval such as "1930-1967".
func ParseInterval(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid year interval %q, expected START-END", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start year in %q: %w", s, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end year in %q: %w", s, err)
	}
	if start > end {
		return 0, 0, fmt.Errorf("year interval %q is reversed", s)
	}
	return start, end, nil
}
