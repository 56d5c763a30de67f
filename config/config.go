// Package config loads and validates the combiner configuration from the
// environment.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/giygas/patient-records/validation"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

// Config holds all application configuration
type Config struct {
	// Batch run
	DataDir     string
	OutputDir   string
	OutputName  string
	FilePattern string
	ExportXLSX  bool
	TopMissing  int
	Workers     int

	// Serve mode
	Port            string
	Address         string
	RefreshInterval time.Duration
	MaxRequestBody  int64 // bytes
	MaxHeaderSize   int64 // bytes

	// Logging
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int
	MaxLogFileSize    int64 // bytes
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:     getEnvWithDefault("DATA_DIR", "./data"),
		OutputDir:   getEnvWithDefault("OUTPUT_DIR", "."),
		OutputName:  getEnvWithDefault("OUTPUT_NAME", "combined_patient_data"),
		FilePattern: getEnvWithDefault("FILE_PATTERN", "patient_*/patient_*.json"),
		ExportXLSX:  getBoolEnvWithDefault("EXPORT_XLSX", true),
		TopMissing:  getIntEnvWithDefault("TOP_MISSING", 10),
		Workers:     getIntEnvWithDefault("WORKERS", 1),

		Port:            getEnvWithDefault("PORT", "8000"),
		Address:         getEnvWithDefault("ADDRESS", "127.0.0.1"),
		RefreshInterval: getDurationEnvWithDefault("REFRESH_INTERVAL", 15*time.Minute),
		MaxRequestBody:  getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576), // 1MB
		MaxHeaderSize:   getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),  // 1MB

		Env:               Environment(strings.ToLower(getEnvWithDefault("ENV", string(EnvDevelopment)))),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks every configuration value. It is exported so values
// overridden by command-line flags can be checked again.
func Validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("invalid DATA_DIR: cannot be empty")
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("invalid OUTPUT_DIR: cannot be empty")
	}
	if err := validation.ValidateOutputName(cfg.OutputName); err != nil {
		return fmt.Errorf("invalid OUTPUT_NAME: %w", err)
	}
	if err := validatePattern(cfg.FilePattern); err != nil {
		return fmt.Errorf("invalid FILE_PATTERN: %w", err)
	}
	if err := validateRange(cfg.TopMissing, 0, 1000, "TOP_MISSING"); err != nil {
		return fmt.Errorf("invalid TOP_MISSING: %w", err)
	}
	if err := validateRange(cfg.Workers, 1, 64, "WORKERS"); err != nil {
		return fmt.Errorf("invalid WORKERS: %w", err)
	}

	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}
	if err := validateRefreshInterval(cfg.RefreshInterval); err != nil {
		return fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if err := validateRange(cfg.LogRetentionWeeks, 1, 52, "LOG_RETENTION_WEEKS"); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}
	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	return nil
}

// CSVPath is the path of the combined CSV file.
func (c *Config) CSVPath() string {
	return filepath.Join(c.OutputDir, c.OutputName+".csv")
}

// XLSXPath is the path of the combined spreadsheet.
func (c *Config) XLSXPath() string {
	return filepath.Join(c.OutputDir, c.OutputName+".xlsx")
}

// ListenAddr is the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, c.Port)
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("FILE_PATTERN cannot be empty")
	}
	if filepath.IsAbs(pattern) || strings.Contains(pattern, "..") {
		return fmt.Errorf("FILE_PATTERN must be relative to DATA_DIR, got: %s", pattern)
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return fmt.Errorf("FILE_PATTERN is not a valid glob: %w", err)
	}
	return nil
}

func validateRange(v, lo, hi int, configName string) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be between %d and %d, got: %d", configName, lo, hi, v)
	}
	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1024 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1024 and 65535, got: %d", portNum)
	}

	return nil
}

// validateAddress accepts loopback names and private or loopback IPs.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}
	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, bind to a private or loopback address", address)
	}

	return nil
}

func validateRefreshInterval(d time.Duration) error {
	if d < time.Minute {
		return fmt.Errorf("REFRESH_INTERVAL must be at least 1m, got: %s", d)
	}
	if d > 7*24*time.Hour {
		return fmt.Errorf("REFRESH_INTERVAL is too large (max 168h), got: %s", d)
	}
	return nil
}

func validateEnv(env Environment) error {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
		return nil
	case "":
		return fmt.Errorf("ENV cannot be empty")
	}
	return fmt.Errorf("ENV must be one of: %v, got: %s",
		[]Environment{EnvDevelopment, EnvStaging, EnvProduction, EnvTest}, env)
}

func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	switch strings.ToLower(logLevel) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("LOG_LEVEL must be one of: [debug info warn error], got: %s", logLevel)
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

func validateMaxLogFileSize(size int64) error {
	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}
	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"DATA_DIR",
		"OUTPUT_DIR",
		"OUTPUT_NAME",
		"FILE_PATTERN",
		"EXPORT_XLSX",
		"TOP_MISSING",
		"WORKERS",
		"PORT",
		"ADDRESS",
		"REFRESH_INTERVAL",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
	}
}
