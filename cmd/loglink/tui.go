package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/tui"
)

// runTUICommand opens the interactive viewer. The TUI owns the terminal, so
// logs always go to the state file.
func runTUICommand(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	cleanupLogger, err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: "console",
		File:   cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer cleanupLogger()
	log := logging.Component("loglink")

	dialCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	s, err := openSession(dialCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer s.Close()
	log.Info().Int("recorders", len(s.Locations())).Str("filter", cfg.Filter).Msg("viewer started")

	viewerPage := tui.NewViewerPage(s, tui.Options{
		UpdateInterval: cfg.UpdateInterval,
		Timeout:        cfg.Timeout,
	})
	app := tui.NewApp(viewerPage, tui.NewPickerPage(s))

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		if isTTYError(err) {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
