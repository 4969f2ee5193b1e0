package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (1 MB).
	scannerInitBufSize = 1024 * 1024
	// scannerMaxTokenSize is the maximum token size the scanner will accept (64 MB).
	scannerMaxTokenSize = 64 * 1024 * 1024
)

// Server exposes a model.Recorder over a socket using JSON-RPC 2.0.
type Server struct {
	network  string
	address  string
	rec      model.Recorder
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	log      zerolog.Logger
}

// NewServer creates a socket RPC server for rec. network is "unix" or
// "tcp".
func NewServer(network, address string, rec model.Recorder) *Server {
	return &Server{
		network: network,
		address: address,
		rec:     rec,
		quit:    make(chan struct{}),
		log:     logging.Component("socketrpc"),
	}
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start begins listening and accepting connections.
func (s *Server) Start() error {
	if s.network == "unix" {
		if err := os.MkdirAll(filepath.Dir(s.address), 0o755); err != nil {
			return fmt.Errorf("socketrpc: mkdir: %w", err)
		}

		// Remove stale socket if it exists.
		if _, err := os.Stat(s.address); err == nil {
			conn, dialErr := net.DialTimeout("unix", s.address, 500*time.Millisecond)
			if dialErr != nil {
				os.Remove(s.address)
			} else {
				conn.Close()
				return fmt.Errorf("socketrpc: another recorder is already listening on %s", s.address)
			}
		}
	}

	ln, err := net.Listen(s.network, s.address)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info().Str("network", s.network).Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Stop closes the listener, waits for connections to drain, and removes the
// socket file.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	if s.network == "unix" {
		os.Remove(s.address)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Warn().Err(err).Msg("accept error")
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			conn.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", ID: 0, Error: &RPCError{Code: codeParseError, Message: "parse error"}}
			encoder.Encode(resp)
			continue
		}

		resp := s.dispatch(context.Background(), req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v any, err error) Response {
		if err != nil {
			code := codeApplication
			if errors.Is(err, model.ErrInvalidRank) ||
				errors.Is(err, model.ErrUnknownCategory) ||
				errors.Is(err, model.ErrUnknownVerbosity) {
				code = codeInvalidParams
			}
			resp.Error = &RPCError{Code: code, Message: err.Error(), Data: errorKind(err)}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: codeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err), Data: errorKind(err)}
		return resp
	}

	switch req.Method {
	case "Info":
		return marshalResult(model.RecorderInfo{Location: s.rec.Location(), RankCount: s.rec.RankCount()}, nil)

	case "SetVerbosity":
		var p levelParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		return marshalResult(nil, s.rec.SetVerbosity(ctx, p.Level))

	case "Verbosity":
		return marshalResult(s.rec.Verbosity(ctx))

	case "SetCategoryVerbosity":
		var p categoryParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		return marshalResult(nil, s.rec.SetCategoryVerbosity(ctx, p.Category, p.Level))

	case "ClearCategoryVerbosity":
		var p categoryParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		return marshalResult(nil, s.rec.ClearCategoryVerbosity(ctx, p.Category))

	case "CategoryVerbosity":
		var p categoryParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		level, ok, err := s.rec.CategoryVerbosity(ctx, p.Category)
		return marshalResult(categoryVerbosityResult{Level: level, Overridden: ok}, err)

	case "ClearLogs":
		return marshalResult(nil, s.rec.ClearLogs(ctx))

	case "FetchLog":
		var p rankParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		return marshalResult(s.rec.FetchLog(ctx, p.Rank))

	case "StartingLog":
		var p rankParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		return marshalResult(s.rec.StartingLog(ctx, p.Rank))

	default:
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}
