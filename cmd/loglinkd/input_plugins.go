package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tinytelemetry/loglink/internal/logsource"
	"github.com/tinytelemetry/loglink/internal/model"
)

// NamedLogSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedLogSource = logsource.LogSource

// InputSourcePlugin builds one input of a recorder daemon.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLogSource, error)
}

// InputPluginConfig selects the inputs of the daemon serving Location.
type InputPluginConfig struct {
	Location   model.Location
	Ranks      int
	TCPEnabled bool
	TCPAddr    string
	StdinRank  int
}

func inputPluginConfig(cfg appConfig) InputPluginConfig {
	return InputPluginConfig{
		Location:   cfg.location,
		Ranks:      cfg.Ranks,
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
		StdinRank:  cfg.StdinRank,
	}
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	return []InputSourcePlugin{
		tcpInputPlugin{addr: cfg.TCPAddr, enabled: cfg.TCPEnabled},
		stdinInputPlugin{location: cfg.Location, rank: cfg.StdinRank, ranks: cfg.Ranks, piped: stdinPiped},
	}
}

// buildSources builds every enabled plugin. A plugin that fails is skipped
// and its error returned alongside the sources that did start.
func buildSources(ctx context.Context, plugins []InputSourcePlugin) ([]NamedLogSource, []error) {
	var (
		sources []NamedLogSource
		errs    []error
	)
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("input %s: %w", plugin.Name(), err))
			continue
		}
		sources = append(sources, src)
	}
	return sources, errs
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedLogSource, error) {
	return logsource.ListenTCP(p.addr)
}

// stdinInputPlugin reads the rank launched as `app 2>&1 | loglinkd`.
type stdinInputPlugin struct {
	location model.Location
	rank     int
	ranks    int
	piped    func() bool
}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool { return p.piped() }

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	if err := model.CheckRank(p.rank, p.ranks); err != nil {
		return nil, fmt.Errorf("%s stdin: %w", p.location, err)
	}
	return logsource.NewStdinSource(ctx, logsource.StdinConfig{Rank: p.rank}), nil
}

func stdinPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
