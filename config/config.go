// Package config loads the authority-server's key-import file: the seed
// list of distributor public keys an operator hands the server at boot to
// run in one-shot import mode, which stores the keys and exits.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"

	"github.com/icprovenance/rfidchain/keyregistry"
)

// ImportConfig is the top-level shape of a key-import file: a list of
// distributor public-key records under the "import" key.
type ImportConfig struct {
	Import []keyregistry.PublicKeyRecord `json:"import"`
}

// Load reads an import file at path (any format viper supports by
// extension — YAML, JSON, TOML) and decodes it into an ImportConfig.
//
// PublicKeyRecord's only struct tags are the `json:"..."` ones canon relies
// on for signing and storage, so decoding goes through viper's settings map
// and then encoding/json rather than viper's own (mapstructure-tag-based)
// Unmarshal, to read the same snake_case keys canon would.
func Load(path string) (*ImportConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read import file %s: %w", path, err)
	}

	raw, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("config: re-encode import file %s: %w", path, err)
	}

	var cfg ImportConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode import file %s: %w", path, err)
	}
	return &cfg, nil
}

// ServerConfig is a server bind address and port, loadable from a config
// file or environment variables via viper's automatic env binding. The
// authority-server and distributor-node binaries do not read it; they take
// their address and port from command-line flags.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
}

// DefaultServerConfig matches the original CLI's default bind address.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Address: "127.0.0.1", Port: 8080}
}

// LoadServerConfig reads server configuration from an optional config file
// at path (if non-empty) layered under environment variables and defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("RFIDCHAIN")
	v.AutomaticEnv()

	cfg := DefaultServerConfig()
	v.SetDefault("address", cfg.Address)
	v.SetDefault("port", cfg.Port)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("config: read server config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config: decode server config: %w", err)
	}
	return cfg, nil
}
