package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database DatabaseConfig
	SQLite   SQLiteConfig
	Encoder  EncoderConfig
	Matching MatchingConfig
	Capture  CaptureConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type SQLiteConfig struct {
	Path string // Path to the SQLite database file, used when DATABASE_URL is empty
}

type EncoderConfig struct {
	URL            string // defaults to http://localhost:8000
	TimeoutSeconds int    // defaults to 60
}

type MatchingConfig struct {
	Tolerance float64       `yaml:"tolerance"`
	Retries   int           `yaml:"retries"`
	Reasons   ReasonsConfig `yaml:"reasons"`
}

// ReasonsConfig holds the human-readable reasons attached to fallback results.
type ReasonsConfig struct {
	NoFaces             string `yaml:"no_faces"`
	NoEncodings         string `yaml:"no_encodings"`
	NoEnrolledEncodings string `yaml:"no_enrolled_encodings"`
	ForceAbsent         string `yaml:"force_absent"`
}

type CaptureConfig struct {
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	MaxDimension   int      `yaml:"max_dimension"`
	AllowedFormats []string `yaml:"allowed_formats"`
}

// Degenerate reports whether the tolerance lies outside (0, 2], NaN included.
// Such values are accepted: 0 or NaN never matches, anything >= 2 matches the nearest entry.
func (c *MatchingConfig) Degenerate() bool {
	return !(c.Tolerance > 0 && c.Tolerance <= 2)
}

type defaults struct {
	Matching MatchingConfig `yaml:"matching"`
	Capture  CaptureConfig  `yaml:"capture"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float.
// Any parseable value is returned, including degenerate ones.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func loadDefaults() defaults {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return d
}

func Load() *Config {
	d := loadDefaults()

	matching := d.Matching
	matching.Tolerance = envFloat("MATCH_TOLERANCE", matching.Tolerance)
	matching.Retries = envInt("RECONCILE_RETRIES", matching.Retries)

	capture := d.Capture
	capture.MaxDimension = envInt("CAPTURE_MAX_DIMENSION", capture.MaxDimension)

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		SQLite: SQLiteConfig{
			Path: os.Getenv("SQLITE_PATH"),
		},
		Encoder: EncoderConfig{
			URL:            os.Getenv("ENCODER_URL"),
			TimeoutSeconds: envInt("ENCODER_TIMEOUT_SECONDS", 60),
		},
		Matching: matching,
		Capture:  capture,
	}
}

// Defaults returns the configuration with built-in defaults only, ignoring the environment.
func Defaults() *Config {
	d := loadDefaults()
	return &Config{
		Database: DatabaseConfig{MaxOpenConns: 25, MaxIdleConns: 5},
		Encoder:  EncoderConfig{TimeoutSeconds: 60},
		Matching: d.Matching,
		Capture:  d.Capture,
	}
}
