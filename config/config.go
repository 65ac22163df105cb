// Package config defines citadeld's externalized configuration surface:
// chain selection, indexer and asset-daemon endpoints, the RPC listener,
// storage location, and logging verbosity. The core itself treats every
// field here as opaque (spec.md §6); only this package and cmd/citadeld
// interpret them.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultDataDirname     = "data"
	defaultLogDirname      = "logs"
	defaultLogFilename     = "citadeld.log"
	defaultConfigFilename  = "citadeld.conf"
	defaultRPCListen       = "tcp://127.0.0.1:62020"
	defaultIndexerAddr     = "127.0.0.1:50001"
	defaultAssetDaemon     = "127.0.0.1:62021"
	defaultChainTag        = "testnet"
	defaultMaxLogSizeMB    = 10
	defaultMaxLogRotations = 3
)

// DefaultCitadelDir returns the default base directory citadeld stores its
// data and logs under, honoring $CITADEL_HOME when set.
func DefaultCitadelDir() string {
	if dir := os.Getenv("CITADEL_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".citadel"
	}
	return filepath.Join(home, ".citadel")
}

// Config is citadeld's full externalized configuration, parsed from a
// config file and/or command-line flags via jessevdk/go-flags, matching
// the teacher's daemon-configuration convention.
type Config struct {
	ConfigFile string `long:"configfile" description:"Path to configuration file"`

	DataDir string `long:"datadir" description:"Directory to store contracts, operations, and cache state"`
	LogDir  string `long:"logdir" description:"Directory to store log files"`

	ChainTag string `long:"chain" description:"Chain tag the core operates against (bitcoin, testnet, signet, regtest)"`

	IndexerAddr string `long:"indexer" description:"host:port of the Electrum-style chain indexer"`

	AssetDaemonAddr     string `long:"assetdaemon" description:"host:port of the external colored-asset daemon"`
	EmbeddedAssetDaemon bool   `long:"embed-assetdaemon" description:"accepted but not acted on: citadeld always dials the asset daemon at --assetdaemon and never spawns one"`

	RPCListen string `long:"rpclisten" description:"ZMQ REP-socket address citadeld listens for client requests on"`

	MacaroonPath string `long:"macaroonpath" description:"Path to the admin macaroon; generated on first run if absent"`

	DebugLevel string `long:"debuglevel" description:"Logging verbosity (trace, debug, info, warn, error, critical)"`

	MaxLogSizeMB    int `long:"maxlogsize" description:"Maximum log file size in MB before rotation"`
	MaxLogRotations int `long:"maxlogrotations" description:"Number of rotated log files to retain"`
}

// Default returns a Config populated with citadeld's default values, prior
// to flag/file parsing overriding any of them.
func Default() *Config {
	citadelDir := DefaultCitadelDir()
	return &Config{
		ConfigFile:      filepath.Join(citadelDir, defaultConfigFilename),
		DataDir:         filepath.Join(citadelDir, defaultDataDirname),
		LogDir:          filepath.Join(citadelDir, defaultLogDirname),
		ChainTag:        defaultChainTag,
		IndexerAddr:     defaultIndexerAddr,
		AssetDaemonAddr: defaultAssetDaemon,
		RPCListen:       defaultRPCListen,
		MacaroonPath:    filepath.Join(citadelDir, "admin.macaroon"),
		DebugLevel:      "info",
		MaxLogSizeMB:    defaultMaxLogSizeMB,
		MaxLogRotations: defaultMaxLogRotations,
	}
}

// LoadConfig parses command-line arguments over Default(), reading
// ConfigFile first (if present) so flags take final precedence, mirroring
// the teacher's two-pass go-flags/INI loading convention.
func LoadConfig(args []string) (*Config, error) {
	cfg := Default()

	preParser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err == nil {
			iniParser := flags.NewIniParser(flags.NewParser(cfg, flags.Default))
			if err := iniParser.ParseFile(cfg.ConfigFile); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", cfg.ConfigFile, err)
			}
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChainTag == "" {
		return fmt.Errorf("config: chain tag must not be empty")
	}
	if c.RPCListen == "" {
		return fmt.Errorf("config: rpclisten must not be empty")
	}
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
