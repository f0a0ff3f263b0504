// Package config loads lumen.yml, applies .env and environment overrides,
// and produces the settings snapshot stored in backup archives.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lumen/internal/codec"
	"lumen/internal/compress"
	"lumen/internal/enhance"
	"lumen/internal/raster"
	"lumen/internal/record"
	"lumen/internal/remote"
)

const DefaultPath = "lumen.yml"

type Config struct {
	LogLevel   string     `yaml:"log_level"`
	Processing Processing `yaml:"processing"`
	History    struct {
		Dir string `yaml:"dir"`
	} `yaml:"history"`
	Remote  Remote `yaml:"remote"`
	AI      AI     `yaml:"ai"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// Processing holds the user's processing preferences. It is the only
// section that travels inside archives.
type Processing struct {
	Mode          string  `yaml:"mode" json:"mode"`
	Engine        string  `yaml:"engine" json:"engine"`
	EnhanceMethod string  `yaml:"enhance_method" json:"enhanceMethod"`
	Quality       float64 `yaml:"quality" json:"quality"`
	Intensity     float64 `yaml:"intensity" json:"intensity"`
	OutputFormat  string  `yaml:"output_format" json:"outputFormat"`
	MaxDimension  int     `yaml:"max_dimension" json:"maxDimension"`
	Workers       int     `yaml:"workers" json:"workers"`
}

type Remote struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Directory   string `yaml:"directory"`
	UploadLimit int    `yaml:"upload_limit"`
}

type AI struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	AnalysisModel string `yaml:"analysis_model"`
	Prompt        string `yaml:"prompt"`
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}
	cfg.Processing = Processing{
		Mode:          string(record.ModeCompress),
		Engine:        string(compress.EngineAlgorithm),
		EnhanceMethod: string(enhance.MethodAlgorithm),
		Quality:       0.8,
		Intensity:     0.5,
		OutputFormat:  string(codec.FormatOriginal),
		MaxDimension:  raster.DefaultMaxDimension,
	}
	cfg.History.Dir = defaultHistoryDir()
	cfg.Remote.Directory = remote.DefaultDirectory
	return cfg
}

func defaultHistoryDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "lumen", "history")
	}
	return ".lumen-history"
}

// Load reads path over the defaults. A missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// LoadDotEnv loads .env style files into the environment. Missing files are
// skipped; existing variables are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	set(&c.LogLevel, "LUMEN_LOG_LEVEL")
	set(&c.History.Dir, "LUMEN_HISTORY_DIR")
	set(&c.Remote.URL, "LUMEN_WEBDAV_URL")
	set(&c.Remote.Username, "LUMEN_WEBDAV_USER")
	set(&c.Remote.Password, "LUMEN_WEBDAV_PASSWORD")
	set(&c.AI.APIKey, "LUMEN_AI_API_KEY")
	set(&c.AI.Endpoint, "LUMEN_AI_ENDPOINT")

	if v, ok := os.LookupEnv("LUMEN_UPLOAD_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LUMEN_UPLOAD_LIMIT: %w", err)
		}
		c.Remote.UploadLimit = n
	}
	return nil
}

// Validate checks ranges and enum values.
func (c *Config) Validate() error {
	return c.Processing.Validate()
}

func (p Processing) Validate() error {
	if _, err := record.ParseMode(p.Mode); err != nil {
		return err
	}
	if _, err := compress.ParseEngine(p.Engine); err != nil {
		return err
	}
	if _, err := enhance.ParseMethod(p.EnhanceMethod); err != nil {
		return err
	}
	if _, err := codec.ParseOutputFormat(p.OutputFormat); err != nil {
		return err
	}
	if p.Quality < 0 || p.Quality > 1 {
		return fmt.Errorf("quality %v out of range [0,1]", p.Quality)
	}
	if p.Intensity < 0 || p.Intensity > 1 {
		return fmt.Errorf("intensity %v out of range [0,1]", p.Intensity)
	}
	if p.MaxDimension < 0 {
		return fmt.Errorf("max_dimension must not be negative")
	}
	if p.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return nil
}

// Snapshot is the settings object embedded in archives. Credentials and
// paths never leave the machine.
func (c *Config) Snapshot() (json.RawMessage, error) {
	data, err := json.Marshal(c.Processing)
	if err != nil {
		return nil, fmt.Errorf("marshal settings snapshot: %w", err)
	}
	return data, nil
}

// ApplySnapshot merges a snapshot restored from an archive. Keys it does not
// know are ignored; an invalid result leaves the config unchanged.
func (c *Config) ApplySnapshot(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	next := c.Processing
	if err := json.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("parse settings snapshot: %w", err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("settings snapshot: %w", err)
	}
	c.Processing = next
	return nil
}

// SaveProcessing writes c's processing settings into the file at path.
// Everything else comes from the file itself, so values supplied through
// the environment are never persisted.
func (c *Config) SaveProcessing(path string) error {
	onDisk, err := loadFile(path)
	if err != nil {
		return err
	}
	onDisk.Processing = c.Processing
	return onDisk.Save(path)
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
