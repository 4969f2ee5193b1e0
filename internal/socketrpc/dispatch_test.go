package socketrpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/recorder"
)

func newTestDispatcher(t *testing.T) (*Server, *recorder.Recorder) {
	t.Helper()
	rec, err := recorder.New(recorder.Config{Location: model.LocationRenderServer, Ranks: 2, Verbosity: model.VerbosityInfo})
	if err != nil {
		t.Fatal(err)
	}
	u := 4.0
	if _, err := rec.Record(model.Entry{Rank: 1, Category: model.CategoryRendering, Message: "first frame", Uptime: &u}); err != nil {
		t.Fatal(err)
	}
	return NewServer("unix", "", rec), rec
}

func TestDispatch_AllMethods(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher(t)

	tests := []struct {
		method string
		params string
	}{
		{"Info", ``},
		{"SetVerbosity", `{"level":"WARNING"}`},
		{"Verbosity", ``},
		{"SetCategoryVerbosity", `{"category":"rendering","level":"TRACE"}`},
		{"CategoryVerbosity", `{"category":"rendering"}`},
		{"ClearCategoryVerbosity", `{"category":"rendering"}`},
		{"FetchLog", `{"rank":1}`},
		{"StartingLog", `{"rank":1}`},
		{"ClearLogs", ``},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := Request{JSONRPC: "2.0", ID: 1, Method: tt.method}
			if tt.params != "" {
				req.Params = json.RawMessage(tt.params)
			}
			resp := srv.dispatch(context.Background(), req)
			if resp.Error != nil {
				t.Fatalf("%s returned error: %s", tt.method, resp.Error.Message)
			}
			if resp.Result == nil {
				t.Fatalf("%s returned nil result", tt.method)
			}
			if resp.ID != 1 {
				t.Fatalf("expected ID 1, got %d", resp.ID)
			}
		})
	}
}

func TestDispatch_Results(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher(t)
	ctx := context.Background()

	resp := srv.dispatch(ctx, Request{JSONRPC: "2.0", ID: 1, Method: "Info"})
	if got := string(resp.Result); got != `{"location":"render-server","rank_count":2}` {
		t.Errorf("Info = %s", got)
	}

	resp = srv.dispatch(ctx, Request{JSONRPC: "2.0", ID: 2, Method: "Verbosity"})
	if got := string(resp.Result); got != `"INFO"` {
		t.Errorf("Verbosity = %s", got)
	}

	resp = srv.dispatch(ctx, Request{JSONRPC: "2.0", ID: 3, Method: "CategoryVerbosity", Params: json.RawMessage(`{"category":"plugins"}`)})
	if got := string(resp.Result); got != `{"level":"INFO","overridden":false}` {
		t.Errorf("CategoryVerbosity = %s", got)
	}
}

func TestDispatch_MethodNotFound(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher(t)

	resp := srv.dispatch(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "NoSuchMethod"})
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected code -32601, got %d", resp.Error.Code)
	}
}

func TestDispatch_InvalidParams(t *testing.T) {
	t.Parallel()
	srv, _ := newTestDispatcher(t)

	tests := []struct {
		name   string
		method string
		params string
		kind   string
	}{
		{"malformed", "FetchLog", `{bad json`, ""},
		{"missing", "SetVerbosity", ``, ""},
		{"rank out of range", "FetchLog", `{"rank":2}`, "invalid_rank"},
		{"negative rank", "StartingLog", `{"rank":-1}`, "invalid_rank"},
		{"unknown category", "SetCategoryVerbosity", `{"category":"audio","level":"INFO"}`, "unknown_category"},
		{"unknown level", "SetVerbosity", `{"level":"LOUD"}`, "unknown_verbosity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{JSONRPC: "2.0", ID: 1, Method: tt.method}
			if tt.params != "" {
				req.Params = json.RawMessage(tt.params)
			}
			resp := srv.dispatch(context.Background(), req)
			if resp.Error == nil {
				t.Fatal("expected error")
			}
			if resp.Error.Code != codeInvalidParams {
				t.Fatalf("expected code -32602, got %d (%s)", resp.Error.Code, resp.Error.Message)
			}
			if resp.Error.Data != tt.kind {
				t.Fatalf("data = %q, want %q", resp.Error.Data, tt.kind)
			}
		})
	}
}

func TestDispatch_StaleRecorder(t *testing.T) {
	t.Parallel()
	srv, rec := newTestDispatcher(t)
	rec.Close()

	resp := srv.dispatch(context.Background(), Request{JSONRPC: "2.0", ID: 1, Method: "ClearLogs"})
	if resp.Error == nil || resp.Error.Code != codeApplication || resp.Error.Data != "stale_recorder" {
		t.Fatalf("expected stale recorder application error, got %+v", resp.Error)
	}
}
