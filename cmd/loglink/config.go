package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/socketrpc"
)

const defaultUpdateInterval = 2 * time.Second

// cliConfig holds the viewer configuration.
type cliConfig struct {
	Endpoints      map[string]string `mapstructure:"endpoints"`
	Filter         string            `mapstructure:"filter"`
	UpdateInterval time.Duration     `mapstructure:"update-interval"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	LogLevel       string            `mapstructure:"log-level"`
	LogFile        string            `mapstructure:"log-file"`

	endpoints []endpoint
}

// endpoint is a resolved recorder address.
type endpoint struct {
	Location model.Location
	Network  string
	Address  string
}

func (e endpoint) String() string {
	return e.Network + ":" + e.Address
}

func loadCLIConfig(configPath string, overrides map[string]string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGLINK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("filter", "")
	v.SetDefault("update-interval", defaultUpdateInterval)
	v.SetDefault("timeout", model.DefaultRPCTimeout)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", logging.StatePath("viewer.log"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "loglink", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = map[string]string{}
	}
	for loc, addr := range overrides {
		cfg.Endpoints[loc] = addr
	}
	if cfg.UpdateInterval < 0 {
		return cfg, fmt.Errorf("invalid update-interval: %s", cfg.UpdateInterval)
	}
	if cfg.Timeout <= 0 {
		return cfg, fmt.Errorf("invalid timeout: %s", cfg.Timeout)
	}
	if strings.HasPrefix(cfg.LogFile, "~/") {
		cfg.LogFile = filepath.Join(home, cfg.LogFile[2:])
	}

	cfg.endpoints, err = resolveEndpoints(cfg.Endpoints, home)
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolveEndpoints turns the configured map into dial targets. Locations
// without an entry fall back to their default socket, if one exists.
func resolveEndpoints(configured map[string]string, home string) ([]endpoint, error) {
	seen := make(map[model.Location]bool)
	var out []endpoint
	for name, addr := range configured {
		loc, err := model.ParseLocation(name)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint: %w", err)
		}
		if seen[loc] {
			return nil, fmt.Errorf("invalid endpoint: %s configured twice", loc)
		}
		seen[loc] = true
		if strings.TrimSpace(addr) == "" {
			continue
		}
		ep, err := parseEndpoint(loc, addr, home)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	for _, loc := range model.Locations() {
		if seen[loc] {
			continue
		}
		path := socketrpc.DefaultSocketPath(loc)
		if _, err := os.Stat(path); err == nil {
			out = append(out, endpoint{Location: loc, Network: "unix", Address: path})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

// parseEndpoint accepts "unix:<path>", "tcp:<host:port>" or a bare socket
// path.
func parseEndpoint(loc model.Location, addr, home string) (endpoint, error) {
	addr = strings.TrimSpace(addr)
	network := "unix"
	if n, rest, ok := strings.Cut(addr, ":"); ok && (n == "unix" || n == "tcp") {
		network, addr = n, rest
	}
	if addr == "" {
		return endpoint{}, fmt.Errorf("invalid endpoint for %s: empty address", loc)
	}
	if network == "unix" && strings.HasPrefix(addr, "~/") {
		addr = filepath.Join(home, addr[2:])
	}
	return endpoint{Location: loc, Network: network, Address: addr}, nil
}
