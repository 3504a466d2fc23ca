package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/renameio"
	"gopkg.in/yaml.v3"
)

// FileConfig represents the structure of the configuration file
type FileConfig struct {
	Server struct {
		Name    string `yaml:"name"`
		Port    int    `yaml:"port"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"server"`

	TLS struct {
		Enabled      bool   `yaml:"enabled"`
		CertFile     string `yaml:"cert_file"`
		KeyFile      string `yaml:"key_file"`
		GenerateCert bool   `yaml:"generate_cert"`
	} `yaml:"tls"`

	CORS struct {
		Enabled          bool   `yaml:"enabled"`
		AllowOrigins     string `yaml:"allow_origins"`
		AllowMethods     string `yaml:"allow_methods"`
		AllowHeaders     string `yaml:"allow_headers"`
		AllowCredentials bool   `yaml:"allow_credentials"`
		MaxAge           int    `yaml:"max_age"`
	} `yaml:"cors"`

	Seed struct {
		Dir   string `yaml:"dir"`
		Watch bool   `yaml:"watch"`
	} `yaml:"seed"`

	Changes struct {
		Timeout   string `yaml:"timeout"`
		Heartbeat string `yaml:"heartbeat"`
	} `yaml:"changes"`

	Compaction struct {
		Interval string `yaml:"interval"`
	} `yaml:"compaction"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name:    "treestore",
		Port:    5984,
		DataDir: "data",
		TLS: TLSConfig{
			CertFile: "cert/cert.pem",
			KeyFile:  "cert/key.pem",
		},
		CORS: CORSConfig{
			AllowOrigins: "*",
			AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
			AllowHeaders: "Content-Type, Authorization, If-Match, Subscribe, Version, Parents",
			MaxAge:       86400,
		},
		Changes: ChangesConfig{
			Timeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func parseDuration(field, s string, out *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*out = d
	return nil
}

// LoadConfig loads configuration from a YAML file. An empty path returns
// the defaults.
func LoadConfig(filePath string) (*Config, error) {
	config := Default()

	// If no config file specified, return default config
	if filePath == "" {
		return config, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Server settings
	if fileConfig.Server.Name != "" {
		config.Name = fileConfig.Server.Name
	}
	if fileConfig.Server.Port != 0 {
		config.Port = fileConfig.Server.Port
	}
	config.DataDir = fileConfig.Server.DataDir

	// TLS settings
	config.TLS.Enabled = fileConfig.TLS.Enabled
	if fileConfig.TLS.CertFile != "" {
		config.TLS.CertFile = fileConfig.TLS.CertFile
	}
	if fileConfig.TLS.KeyFile != "" {
		config.TLS.KeyFile = fileConfig.TLS.KeyFile
	}
	config.TLS.GenerateCert = fileConfig.TLS.GenerateCert

	// CORS settings
	config.CORS.Enabled = fileConfig.CORS.Enabled
	if fileConfig.CORS.AllowOrigins != "" {
		config.CORS.AllowOrigins = fileConfig.CORS.AllowOrigins
	}
	if fileConfig.CORS.AllowMethods != "" {
		config.CORS.AllowMethods = fileConfig.CORS.AllowMethods
	}
	if fileConfig.CORS.AllowHeaders != "" {
		config.CORS.AllowHeaders = fileConfig.CORS.AllowHeaders
	}
	config.CORS.AllowCredentials = fileConfig.CORS.AllowCredentials
	if fileConfig.CORS.MaxAge != 0 {
		config.CORS.MaxAge = fileConfig.CORS.MaxAge
	}

	// Seed settings
	config.Seed.Dir = fileConfig.Seed.Dir
	config.Seed.Watch = fileConfig.Seed.Watch

	// Durations
	if err := parseDuration("changes timeout", fileConfig.Changes.Timeout, &config.Changes.Timeout); err != nil {
		return nil, err
	}
	if err := parseDuration("changes heartbeat", fileConfig.Changes.Heartbeat, &config.Changes.Heartbeat); err != nil {
		return nil, err
	}
	if err := parseDuration("compaction interval", fileConfig.Compaction.Interval, &config.CompactInterval); err != nil {
		return nil, err
	}

	// Log settings
	if fileConfig.Log.Level != "" {
		config.Log.Level = fileConfig.Log.Level
	}
	if fileConfig.Log.Format != "" {
		config.Log.Format = fileConfig.Log.Format
	}

	return config, nil
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// SaveDefaultConfig atomically writes a default configuration file.
func SaveDefaultConfig(filePath string) error {
	def := Default()
	var fileConfig FileConfig

	fileConfig.Server.Name = def.Name
	fileConfig.Server.Port = def.Port
	fileConfig.Server.DataDir = def.DataDir

	fileConfig.TLS.Enabled = def.TLS.Enabled
	fileConfig.TLS.CertFile = def.TLS.CertFile
	fileConfig.TLS.KeyFile = def.TLS.KeyFile
	fileConfig.TLS.GenerateCert = def.TLS.GenerateCert

	fileConfig.CORS.Enabled = def.CORS.Enabled
	fileConfig.CORS.AllowOrigins = def.CORS.AllowOrigins
	fileConfig.CORS.AllowMethods = def.CORS.AllowMethods
	fileConfig.CORS.AllowHeaders = def.CORS.AllowHeaders
	fileConfig.CORS.AllowCredentials = def.CORS.AllowCredentials
	fileConfig.CORS.MaxAge = def.CORS.MaxAge

	fileConfig.Changes.Timeout = formatDuration(def.Changes.Timeout)
	fileConfig.Changes.Heartbeat = formatDuration(def.Changes.Heartbeat)
	fileConfig.Compaction.Interval = formatDuration(def.CompactInterval)

	fileConfig.Log.Level = def.Log.Level
	fileConfig.Log.Format = def.Log.Format

	data, err := yaml.Marshal(fileConfig)
	if err != nil {
		return fmt.Errorf("error creating default config: %w", err)
	}

	yamlWithComments := "# treestore configuration\n" +
		"# An empty server.data_dir keeps all data in memory.\n" +
		"# Durations use Go syntax, e.g. 30s or 1h.\n\n" +
		string(data)

	if err := renameio.WriteFile(filePath, []byte(yamlWithComments), 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
