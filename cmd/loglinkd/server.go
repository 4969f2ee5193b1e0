package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/loglink/internal/httpserver"
	"github.com/tinytelemetry/loglink/internal/ingest"
	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/logsource"
	"github.com/tinytelemetry/loglink/internal/recorder"
	"github.com/tinytelemetry/loglink/internal/socketrpc"
)

// runServer hosts one process recorder: it ingests rank entries and serves
// the recorder to viewers until SIGINT/SIGTERM.
func runServer(cfg appConfig) error {
	cleanupLogger, err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer cleanupLogger()
	log := logging.Component("loglinkd")

	rec, err := recorder.New(recorder.Config{
		Location:    cfg.location,
		Ranks:       cfg.Ranks,
		Verbosity:   cfg.verbosity,
		BufferLines: cfg.BufferLines,
	})
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	defer rec.Close()

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, rec)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Viewers reach the recorder through the socket.
	sockServer := socketrpc.NewServer("unix", cfg.SocketPath, rec)
	if err := sockServer.Start(); err != nil {
		return fmt.Errorf("failed to start socket server: %w", err)
	}
	defer sockServer.Stop()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	sources, errs := buildSources(ctx, buildInputPlugins(inputPluginConfig(cfg)))
	for _, err := range errs {
		log.Error().Err(err).Msg("input plugin failed")
	}

	mux := NewSourceMultiplexer(ctx, sources, MuxConfig{Buffer: cfg.MuxBufferSize, Ranks: cfg.Ranks})
	mux.Start()

	// stdin binds its own rank; unannounced tcp lines go to rank 0.
	processor, err := ingest.NewEnvelopeProcessor(cfg.Processor, rec, 0)
	if err != nil {
		mux.Stop()
		return err
	}

	printStartupBanner(cfg, sources, processor.Name())
	log.Info().
		Str("location", cfg.location.String()).
		Int("ranks", cfg.Ranks).
		Str("verbosity", cfg.verbosity.String()).
		Str("socket", cfg.SocketPath).
		Msg("recorder ready")

	g, gctx := errgroup.WithContext(ctx)

	// Ingestion loop
	if mux.HasSources() {
		g.Go(func() error {
			for env := range mux.Lines() {
				res := processor.ProcessEnvelope(env)
				if res != nil && res.Err != nil {
					log.Warn().Err(res.Err).Str("source", env.Source).Msg("entry rejected")
				}
			}
			return nil
		})
	}

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("errgroup exited with error")
	}

	cancel()
	mux.Stop()
	for _, st := range mux.Stats() {
		log.Info().
			Str("source", st.Name).
			Int("lines", st.Lines).
			Int("rejected", st.Rejected).
			Interface("per_rank", st.PerRank).
			Msg("source closed")
	}

	signal.Stop(sigCh)

	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func printStartupBanner(cfg appConfig, sources []NamedLogSource, processorName string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╦  ╦╔╗╔╦╔═
    ║  ║ ║║ ╦║  ║║║║╠╩╗
    ╩═╝╚═╝╚═╝╩═╝╩╝╚╝╩ ╩`)

	var lines []string
	lines = append(lines, "", logo, "    "+dim.Render("v"+version), "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Recorder"), "")
	lines = append(lines, fmt.Sprintf("    %s  Location       %s", check, cyan.Render(cfg.location.DisplayName())))
	lines = append(lines, fmt.Sprintf("    %s  Ranks          %s", check, cyan.Render(fmt.Sprint(cfg.Ranks))))
	lines = append(lines, fmt.Sprintf("    %s  Verbosity      %s", check, cyan.Render(cfg.verbosity.String())))
	lines = append(lines, fmt.Sprintf("    %s  Buffer         %s", check, dim.Render(fmt.Sprintf("%d lines per rank", cfg.BufferLines))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"), "")
	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Ingest"), "")
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		names = append(names, logsource.Describe(src))
	}
	if cfg.TCPEnabled {
		lines = append(lines, fmt.Sprintf("    %s  TCP            %s", check, cyan.Render(cfg.TCPAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  TCP            %s", dot, dim.Render("disabled")))
	}
	if len(names) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Sources        %s", check, dim.Render(strings.Join(names, ", "))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Sources        %s", dot, dim.Render("none")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Processor      %s", check, dim.Render(processorName)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	if cfg.LogFile != "" {
		lines = append(lines, fmt.Sprintf("    %s  Log File       %s", check, dim.Render(shortenPath(cfg.LogFile))))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
