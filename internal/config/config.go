package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"
	log "github.com/sirupsen/logrus"
)

// TLSConfig holds TLS configuration options
type TLSConfig struct {
	Enabled      bool
	CertFile     string
	KeyFile      string
	GenerateCert bool
}

// CORSConfig holds CORS configuration options
type CORSConfig struct {
	Enabled          bool
	AllowOrigins     string
	AllowMethods     string
	AllowHeaders     string
	AllowCredentials bool
	MaxAge           int
}

// SeedConfig points at a directory of *.json files loaded into the tree.
type SeedConfig struct {
	Dir   string
	Watch bool
}

// ChangesConfig bounds long-running _changes feeds.
type ChangesConfig struct {
	Timeout   time.Duration
	Heartbeat time.Duration
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string
	Format string
}

// Config holds the application configuration
type Config struct {
	Name            string
	Port            int
	DataDir         string
	TLS             TLSConfig
	CORS            CORSConfig
	Seed            SeedConfig
	Changes         ChangesConfig
	CompactInterval time.Duration
	Log             LogConfig
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

const usage = `treestore: a path-addressed JSON tree that replicates with CouchDB peers.

Usage:
  treestore [options]
  treestore --generate-config [--config=<file>]
  treestore -h | --help
  treestore --version

Options:
  -c --config=<file>     Configuration file [default: config.yml].
  -d --data=<dir>        Data directory, overrides config. Use "-" for in-memory.
  -p --port=<port>       Port to listen on, overrides config.
  -s --seed=<dir>        Directory of *.json seed files, overrides config.
  --log-level=<level>    Log level, overrides config.
  --generate-config      Write a default configuration file and exit.
  -h --help              Show this screen.
  --version              Show version.
`

// Args are the parsed command line arguments.
type Args struct {
	Config         string
	Data           string
	Port           int
	Seed           string
	LogLevel       string
	GenerateConfig bool
}

// ParseArgs parses argv (without the program name).
func ParseArgs(argv []string, version string) (*Args, error) {
	parser := &docopt.Parser{OptionsFirst: false}
	opts, err := parser.ParseArgs(usage, argv, version)
	if err != nil {
		return nil, fmt.Errorf("error parsing arguments: %w", err)
	}

	var args Args
	args.Config, _ = opts.String("--config")
	args.Data, _ = opts.String("--data")
	args.Seed, _ = opts.String("--seed")
	args.LogLevel, _ = opts.String("--log-level")
	args.GenerateConfig, _ = opts.Bool("--generate-config")
	if port, _ := opts.String("--port"); port != "" {
		if args.Port, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", port, err)
		}
	}
	return &args, nil
}

// Load parses the command line, optionally writes the default config file,
// and merges the config file with the command line overrides. The second
// result is true when the program should exit after generating the file.
func Load(argv []string, version string) (*Config, bool, error) {
	args, err := ParseArgs(argv, version)
	if err != nil {
		return nil, false, err
	}

	// Handle config file generation
	if args.GenerateConfig {
		log.Infof("Generating default configuration file at %s", args.Config)
		if err := SaveDefaultConfig(args.Config); err != nil {
			return nil, false, err
		}
		log.Info("Configuration file generated successfully")
		return nil, true, nil
	}

	config, err := LoadConfig(args.Config)
	if err != nil {
		log.Warnf("Could not load config file: %v", err)
		log.Warn("Using default configuration")
		config, _ = LoadConfig("")
	}

	args.apply(config)
	return config, false, nil
}

func (a *Args) apply(config *Config) {
	switch a.Data {
	case "":
	case "-":
		config.DataDir = ""
	default:
		config.DataDir = a.Data
	}
	if a.Port != 0 {
		config.Port = a.Port
	}
	if a.Seed != "" {
		config.Seed.Dir = a.Seed
	}
	if a.LogLevel != "" {
		config.Log.Level = a.LogLevel
	}
}

// SetupLogging applies the log configuration to the standard logrus logger.
func SetupLogging(c LogConfig) error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	switch c.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}
