package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultFile = "galaxy.toml"
	envPrefix   = "GALAXY_"
)

type Config struct {
	DataDir string       `koanf:"data_dir"`
	HTTP    HTTPConfig   `koanf:"http"`
	RPC     RPCConfig    `koanf:"rpc"`
	Log     LogConfig    `koanf:"log"`
	Ingest  IngestConfig `koanf:"ingest"`
	Group   GroupConfig  `koanf:"group"`
	Botify  BotifyConfig `koanf:"botify"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

type RPCConfig struct {
	Socket string `koanf:"socket"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type IngestConfig struct {
	ChunkSize int `koanf:"chunk_size"`
}

type GroupConfig struct {
	ChunkSize int64 `koanf:"chunk_size"`
	Workers   int   `koanf:"workers"`
	MaxNodes  int   `koanf:"max_nodes"`
}

type BotifyConfig struct {
	Env     string `koanf:"env"`
	Token   string `koanf:"token"`
	APIBase string `koanf:"api_base"`
}

func defaults() map[string]any {
	return map[string]any{
		"data_dir":          "./data",
		"http.addr":         "127.0.0.1:8080",
		"rpc.socket":        "/tmp/galaxy.sock",
		"log.level":         "info",
		"log.format":        "text",
		"ingest.chunk_size": 10000,
		"group.chunk_size":  150000,
		"group.workers":     4,
		"group.max_nodes":   100,
		"botify.env":        "production",
		"botify.token":      "",
		"botify.api_base":   "",
	}
}

// Load layers defaults, the TOML file at path (optional), GALAXY_* environment
// variables (after loading .env) and overrides, later layers winning.
// An empty path means galaxy.toml in the working directory.
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	keys := envKeys(k.Keys())
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if key, ok := keys[name]; ok {
			return key
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Botify.Token == "" {
		cfg.Botify.Token = os.Getenv("BOTIFY_" + strings.ToUpper(cfg.Botify.Env) + "_TOKEN")
	}
	return &cfg, nil
}

// envKeys maps GALAXY_GROUP_MAX_NODES style names (lowercased, prefix removed)
// to their dotted keys.
func envKeys(keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		out[strings.ReplaceAll(key, ".", "_")] = key
	}
	return out
}
