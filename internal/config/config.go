// Package config loads spawner settings from defaults, an optional YAML file
// and SPAWNER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full spawner configuration.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Log     LogConfig     `yaml:"log"`
	Chain   ChainConfig   `yaml:"chain"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Server  ServerConfig  `yaml:"server"`
	RAG     RAGConfig     `yaml:"rag"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ChainConfig controls the RPC client shared by agents and the indexer.
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	Proxy          string        `yaml:"proxy"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerSec int           `yaml:"requests_per_sec"`
	TxCacheSize    int           `yaml:"tx_cache_size"`
	BalanceTTL     time.Duration `yaml:"balance_ttl"`
}

// RuntimeConfig controls agent supervision.
type RuntimeConfig struct {
	RegistryFile      string        `yaml:"registry_file"`
	KnowledgeCap      int           `yaml:"knowledge_cap"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Archive           bool          `yaml:"archive"`
	ArchiveRetention  time.Duration `yaml:"archive_retention"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	RateLimit    int           `yaml:"rate_limit"`
	RateWindow   time.Duration `yaml:"rate_window"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RAGConfig controls the knowledge store and its indexer.
type RAGConfig struct {
	MaxEvents        int           `yaml:"max_events"`
	Indexer          bool          `yaml:"indexer"`
	WhaleInterval    time.Duration `yaml:"whale_interval"`
	ProtocolInterval time.Duration `yaml:"protocol_interval"`
}

const defaultRPCURL = "https://api.mainnet-beta.solana.com"

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		DataDir: defaultDataDir(),
		Log: LogConfig{
			Level: "info",
		},
		Chain: ChainConfig{
			RPCURL:         defaultRPCURL,
			Timeout:        15 * time.Second,
			RequestsPerSec: 10,
			TxCacheSize:    4096,
			BalanceTTL:     30 * time.Second,
		},
		Runtime: RuntimeConfig{
			RegistryFile:      "agent-registry.json",
			KnowledgeCap:      1000,
			HeartbeatInterval: time.Minute,
			Archive:           true,
			ArchiveRetention:  7 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:3001",
			RateLimit:    120,
			RateWindow:   time.Minute,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		RAG: RAGConfig{
			MaxEvents:        10000,
			WhaleInterval:    30 * time.Second,
			ProtocolInterval: time.Minute,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spawner"
	}
	return filepath.Join(home, ".spawner")
}

// Load builds a Config from defaults, the YAML file at path (if it exists)
// and the environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnvironment(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnvironment(cfg *Config, lookup lookupFunc) error {
	if v, ok := lookup("SPAWNER_DATA_DIR"); ok && v != "" {
		cfg.DataDir = v
	}
	if v, ok := lookup("SPAWNER_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup("SPAWNER_LOG_FILE"); ok {
		cfg.Log.File = v
	}
	if v, ok := lookup("SPAWNER_RPC_URL"); ok && v != "" {
		cfg.Chain.RPCURL = v
	}
	if v, ok := lookup("SPAWNER_PROXY"); ok {
		cfg.Chain.Proxy = v
	}
	if v, ok := lookup("SPAWNER_ADDR"); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := lookup("SPAWNER_KNOWLEDGE_CAP"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SPAWNER_KNOWLEDGE_CAP: %w", err)
		}
		cfg.Runtime.KnowledgeCap = n
	}
	if v, ok := lookup("SPAWNER_ARCHIVE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SPAWNER_ARCHIVE: %w", err)
		}
		cfg.Runtime.Archive = b
	}
	if v, ok := lookup("SPAWNER_INDEXER"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SPAWNER_INDEXER: %w", err)
		}
		cfg.RAG.Indexer = b
	}
	return nil
}

// Validate rejects settings the runtime cannot work with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Runtime.KnowledgeCap <= 0 {
		return fmt.Errorf("runtime.knowledge_cap must be positive, got %d", c.Runtime.KnowledgeCap)
	}
	if c.Chain.RequestsPerSec <= 0 {
		return fmt.Errorf("chain.requests_per_sec must be positive, got %d", c.Chain.RequestsPerSec)
	}
	if c.Runtime.HeartbeatInterval <= 0 {
		return errors.New("runtime.heartbeat_interval must be positive")
	}
	return nil
}

// RegistryPath is the absolute location of the registry snapshot.
func (c Config) RegistryPath() string {
	if filepath.IsAbs(c.Runtime.RegistryFile) {
		return c.Runtime.RegistryFile
	}
	return filepath.Join(c.DataDir, c.Runtime.RegistryFile)
}

// ArchivePath is the location of the sqlite knowledge archive.
func (c Config) ArchivePath() string {
	return filepath.Join(c.DataDir, "knowledge.db")
}

// APIAddrFile is where a running daemon publishes its listen address.
func (c Config) APIAddrFile() string {
	return filepath.Join(c.DataDir, "spawner.api")
}
