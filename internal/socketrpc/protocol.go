package socketrpc

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/tinytelemetry/loglink/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes one process's model.Recorder. Each method
// maps 1:1 to the Recorder interface; Info carries Location and RankCount.
//
//   Method                    Params                                   Result
//   ──────────────────────    ─────────────────────────────────────    ──────────────────────────
//   Info                      (none)                                   RecorderInfo
//   SetVerbosity              {level: Verbosity}                       null
//   Verbosity                 (none)                                   Verbosity
//   SetCategoryVerbosity      {category: Category, level: Verbosity}   null
//   ClearCategoryVerbosity    {category: Category}                     null
//   CategoryVerbosity         {category: Category}                     {level, overridden}
//   ClearLogs                 (none)                                   null
//   FetchLog                  {rank: int}                              string
//   StartingLog               {rank: int}                              string
//
// Verbosity, Category and Location travel in their text forms
// ("WARNING", "rendering", "data-server").
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including an out of range rank)
//   -32603  Internal error (marshal failure)
//   -32000  Application error (recorder failure)
//
// The error's data member names the failure kind so clients can map it
// back onto the model sentinels.

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// Unwrap maps the error kind back to its model sentinel.
func (e *RPCError) Unwrap() error {
	for _, k := range errorKinds {
		if e.Data == k.name {
			return k.err
		}
	}
	return nil
}

var errorKinds = []struct {
	name string
	err  error
}{
	{"invalid_rank", model.ErrInvalidRank},
	{"no_timestamp", model.ErrNoTimestampFound},
	{"stale_recorder", model.ErrStaleRecorder},
	{"unknown_category", model.ErrUnknownCategory},
	{"unknown_verbosity", model.ErrUnknownVerbosity},
	{"unknown_location", model.ErrUnknownLocation},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

type levelParams struct {
	Level model.Verbosity `json:"level"`
}

type categoryParams struct {
	Category model.Category  `json:"category"`
	Level    model.Verbosity `json:"level"`
}

type rankParams struct {
	Rank int `json:"rank"`
}

type categoryVerbosityResult struct {
	Level      model.Verbosity `json:"level"`
	Overridden bool            `json:"overridden"`
}

// DefaultSocketPath returns the default Unix socket path of the recorder
// at loc. It prefers $XDG_RUNTIME_DIR/loglink/<loc>.sock, falling back to
// ~/.local/state/loglink/<loc>.sock.
func DefaultSocketPath(loc model.Location) string {
	name := loc.String() + ".sock"
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "loglink", name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "loglink-"+name)
	}
	return filepath.Join(home, ".local", "state", "loglink", name)
}
