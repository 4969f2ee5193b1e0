package main

import (
	"github.com/tinytelemetry/loglink/internal/model"
)

const (
	defaultBindHost      = "127.0.0.1"
	defaultTCPPort       = 4000 // plus the location index
	defaultAPIPort       = 3000 // plus the location index
	defaultLocation      = "client"
	defaultRanks         = model.DefaultRanks
	defaultBufferLines   = model.DefaultBufferLines
	defaultMuxBufferSize = DefaultMuxBuffer
	defaultProcessor     = "parse"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Location      string `mapstructure:"location"`
	Ranks         int    `mapstructure:"ranks"`
	Verbosity     string `mapstructure:"verbosity"`
	BufferLines   int    `mapstructure:"buffer-lines"`
	Host          string `mapstructure:"host"`
	Processor     string `mapstructure:"processor"`
	SocketPath    string `mapstructure:"socket-path"`
	TCPEnabled    bool   `mapstructure:"tcp-enabled"`
	TCPPort       int    `mapstructure:"tcp-port"`
	TCPAddr       string `mapstructure:"tcp-addr"`
	StdinRank     int    `mapstructure:"stdin-rank"`
	MuxBufferSize int    `mapstructure:"mux-buffer-size"`
	APIEnabled    bool   `mapstructure:"api-enabled"`
	APIPort       int    `mapstructure:"api-port"`
	APIAddr       string `mapstructure:"api-addr"`
	LogLevel      string `mapstructure:"log-level"`
	LogFormat     string `mapstructure:"log-format"`
	LogFile       string `mapstructure:"log-file"`
	ConfigPath    string `mapstructure:"-"` // not from config file

	// Resolved from the string fields above.
	location  model.Location
	verbosity model.Verbosity
}
