package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinytelemetry/loglink/internal/model"
)

func TestBuildInputPlugins_FollowLocationConfig(t *testing.T) {
	t.Parallel()

	plugins := buildInputPlugins(InputPluginConfig{
		Location:   model.LocationRenderServer,
		Ranks:      4,
		TCPEnabled: true,
		TCPAddr:    "127.0.0.1:4003",
		StdinRank:  3,
	})

	if len(plugins) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(plugins))
	}
	if plugins[0].Name() != "tcp" || !plugins[0].Enabled() {
		t.Fatalf("plugins[0] = %s enabled=%v, want enabled tcp", plugins[0].Name(), plugins[0].Enabled())
	}
	stdin, ok := plugins[1].(stdinInputPlugin)
	if !ok {
		t.Fatalf("plugins[1] is %T, want stdinInputPlugin", plugins[1])
	}
	if stdin.location != model.LocationRenderServer || stdin.rank != 3 || stdin.ranks != 4 {
		t.Fatalf("stdin plugin = %+v", stdin)
	}
}

func TestBuildInputPlugins_TCPDisabled(t *testing.T) {
	t.Parallel()

	plugins := buildInputPlugins(InputPluginConfig{TCPEnabled: false})
	if plugins[0].Enabled() {
		t.Fatal("expected tcp plugin to be disabled when TCPEnabled=false")
	}
}

func TestStdinPlugin_RejectsRankOutsideRecorder(t *testing.T) {
	t.Parallel()

	plugin := stdinInputPlugin{location: model.LocationServer, rank: 2, ranks: 2, piped: func() bool { return true }}
	_, err := plugin.Build(context.Background())
	if !errors.Is(err, model.ErrInvalidRank) {
		t.Fatalf("Build() error = %v, want ErrInvalidRank", err)
	}
}

func TestBuildSources_SkipsDisabledAndFailed(t *testing.T) {
	t.Parallel()

	plugins := []InputSourcePlugin{
		tcpInputPlugin{addr: "127.0.0.1:0", enabled: true},
		stdinInputPlugin{location: model.LocationClient, rank: 0, ranks: 1, piped: func() bool { return false }},
		stdinInputPlugin{location: model.LocationClient, rank: 7, ranks: 1, piped: func() bool { return true }},
	}

	sources, errs := buildSources(context.Background(), plugins)
	for _, src := range sources {
		defer src.Stop()
	}
	if len(sources) != 1 || sources[0].Name() != "tcp" {
		t.Fatalf("sources = %v, want only tcp", sources)
	}
	if _, bound := sources[0].BoundRank(); bound {
		t.Fatal("tcp source must not bind a rank")
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "input stdin") {
		t.Fatalf("errs = %v, want one stdin error", errs)
	}
}

func TestLoadConfig_AddressResolution(t *testing.T) {
	resetLoglinkEnv(t)

	tests := []struct {
		name        string
		configYAML  string
		overrides   map[string]any
		wantTCPAddr string
		wantAPIAddr string
	}{
		{
			name:        "ports derive from location",
			configYAML:  `location: data-server`,
			wantTCPAddr: "127.0.0.1:4002",
			wantAPIAddr: "127.0.0.1:3002",
		},
		{
			name: "host applies to derived tcp and api addresses",
			configYAML: `
host: 0.0.0.0
tcp-port: 4200
api-port: 3200
`,
			wantTCPAddr: "0.0.0.0:4200",
			wantAPIAddr: "0.0.0.0:3200",
		},
		{
			name: "explicit addresses override host and ports",
			configYAML: `
host: 0.0.0.0
tcp-port: 4300
tcp-addr: 10.0.0.5:9999
api-addr: 10.0.0.5:8888
`,
			wantTCPAddr: "10.0.0.5:9999",
			wantAPIAddr: "10.0.0.5:8888",
		},
		{
			name:        "flag overrides file location",
			configYAML:  `location: client`,
			overrides:   map[string]any{"location": "render-server"},
			wantTCPAddr: "127.0.0.1:4003",
			wantAPIAddr: "127.0.0.1:3003",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML), tt.overrides)
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if cfg.TCPAddr != tt.wantTCPAddr {
				t.Fatalf("TCPAddr = %q, want %q", cfg.TCPAddr, tt.wantTCPAddr)
			}
			if cfg.APIAddr != tt.wantAPIAddr {
				t.Fatalf("APIAddr = %q, want %q", cfg.APIAddr, tt.wantAPIAddr)
			}
		})
	}
}

func TestLoadConfig_RecorderSettings(t *testing.T) {
	resetLoglinkEnv(t)
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/42")

	cfg, err := loadConfig(writeTempConfig(t, `
location: Render Server
ranks: 4
verbosity: warning
buffer-lines: 500
stdin-rank: 3
log-file: "-"
`), nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.location != model.LocationRenderServer {
		t.Errorf("location = %v, want render-server", cfg.location)
	}
	if cfg.verbosity != model.VerbosityWarning {
		t.Errorf("verbosity = %v, want WARNING", cfg.verbosity)
	}
	if cfg.Ranks != 4 || cfg.BufferLines != 500 || cfg.StdinRank != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SocketPath != "/run/user/42/loglink/render-server.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.LogFile != "" {
		t.Errorf("LogFile = %q, want stderr", cfg.LogFile)
	}
	if cfg.ConfigPath == "" {
		t.Error("ConfigPath should point at the file used")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	resetLoglinkEnv(t)
	t.Setenv("LOGLINK_LOCATION", "server")
	t.Setenv("LOGLINK_BUFFER_LINES", "42")

	cfg, err := loadConfig(writeTempConfig(t, `location: client`), nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.location != model.LocationServer {
		t.Errorf("location = %v, want server", cfg.location)
	}
	if cfg.BufferLines != 42 {
		t.Errorf("BufferLines = %d, want 42", cfg.BufferLines)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	resetLoglinkEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		errSubstring string
	}{
		{"unknown location", `location: gpu`, "invalid location"},
		{"unknown verbosity", `verbosity: loud`, "invalid verbosity"},
		{"zero ranks", `ranks: 0`, "invalid ranks"},
		{"stdin rank out of range", "ranks: 2\nstdin-rank: 2", "invalid stdin-rank"},
		{"bad tcp port", `tcp-port: 70000`, "invalid tcp-port"},
		{"bad buffer", `buffer-lines: -1`, "invalid buffer-lines"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeTempConfig(t, tt.configYAML), nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errSubstring) {
				t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
			}
		})
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetLoglinkEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	existed := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "LOGLINK_") {
			continue
		}
		original[key] = value
		existed[key] = true
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key := range existed {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("cleanup unset %s: %v", key, err)
			}
		}
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
