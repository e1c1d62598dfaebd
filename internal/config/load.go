package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvAddr      = "OSSIM_ADDR"
	EnvLogLevel  = "OSSIM_LOG_LEVEL"
	EnvLogFormat = "OSSIM_LOG_FORMAT"
	EnvDBPath    = "OSSIM_DB"
)

// LoadFile reads a YAML simulation config. Fields absent from the file keep
// their defaults; unknown fields are an error. Durations use Go syntax
// ("250ms", "3s").
func LoadFile(path string) (SimConfig, error) {
	cfg := DefaultSimConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields of c with any OSSIM_* variables that are set.
func (c *ServerConfig) ApplyEnv() {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
}
