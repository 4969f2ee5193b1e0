package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/socketrpc"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var location string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/loglink/config.yml)")
	flag.StringVar(&location, "location", "", "process location: client, server, data-server or render-server")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("loglinkd - process log recorder\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	overrides := map[string]any{}
	if location != "" {
		overrides["location"] = location
	}

	cfg, err := loadConfig(configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string, overrides map[string]any) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGLINK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("location", defaultLocation)
	v.SetDefault("ranks", defaultRanks)
	v.SetDefault("verbosity", model.DefaultVerbosity.String())
	v.SetDefault("buffer-lines", defaultBufferLines)
	v.SetDefault("host", defaultBindHost)
	v.SetDefault("processor", defaultProcessor)
	v.SetDefault("socket-path", "")
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", 0)
	v.SetDefault("tcp-addr", "")
	v.SetDefault("stdin-rank", 0)
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-port", 0)
	v.SetDefault("api-addr", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	v.SetDefault("log-file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "loglink", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if cfg.location, err = model.ParseLocation(cfg.Location); err != nil {
		return cfg, fmt.Errorf("invalid location: %w", err)
	}
	if cfg.verbosity, err = model.ParseVerbosity(cfg.Verbosity); err != nil {
		return cfg, fmt.Errorf("invalid verbosity: %w", err)
	}
	if cfg.Ranks <= 0 {
		return cfg, fmt.Errorf("invalid ranks: %d", cfg.Ranks)
	}
	if cfg.BufferLines <= 0 {
		return cfg, fmt.Errorf("invalid buffer-lines: %d", cfg.BufferLines)
	}
	if cfg.StdinRank < 0 || cfg.StdinRank >= cfg.Ranks {
		return cfg, fmt.Errorf("invalid stdin-rank: %d (ranks %d)", cfg.StdinRank, cfg.Ranks)
	}
	if cfg.TCPPort < 0 || cfg.TCPPort > 65535 {
		return cfg, fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort < 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}

	// Each location gets its own port pair so one host can run all of them.
	if cfg.TCPPort == 0 {
		cfg.TCPPort = defaultTCPPort + int(cfg.location)
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = defaultAPIPort + int(cfg.location)
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = socketrpc.DefaultSocketPath(cfg.location)
	}
	if strings.HasPrefix(cfg.SocketPath, "~/") {
		cfg.SocketPath = filepath.Join(home, cfg.SocketPath[2:])
	}

	switch cfg.LogFile {
	case "":
		cfg.LogFile = logging.StatePath(cfg.location.String() + ".log")
	case "-":
		cfg.LogFile = ""
	default:
		if strings.HasPrefix(cfg.LogFile, "~/") {
			cfg.LogFile = filepath.Join(home, cfg.LogFile[2:])
		}
	}

	return cfg, nil
}
