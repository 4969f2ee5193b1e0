package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
)

const (
	// DefaultLineChannelSize is the default buffer size for the incoming log line channel.
	DefaultLineChannelSize = 100_000

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single log line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	// RankHelloPrefix starts the optional first line of a connection, e.g.
	// "@rank 3". Lines of that connection are then attributed to rank 3.
	RankHelloPrefix = "@rank "
)

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	LineChannelSize int
	MaxLineSize     int
}

// Server listens for newline-delimited rank entries over TCP. Every
// connection is tagged with its remote address as the envelope source and,
// after a rank hello, with its rank.
type Server struct {
	listener    net.Listener
	addr        string
	lineChan    chan model.IngestEnvelope
	maxLineSize int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	log         zerolog.Logger
}

// NewServer creates a new TCP server. Default addr is "127.0.0.1:4000".
func NewServer(addr string, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = "127.0.0.1:4000"
	}
	lineChannelSize := DefaultLineChannelSize
	maxLineSize := DefaultMaxLineSize
	if len(conf) > 0 {
		if conf[0].LineChannelSize > 0 {
			lineChannelSize = conf[0].LineChannelSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		lineChan:    make(chan model.IngestEnvelope, lineChannelSize),
		maxLineSize: maxLineSize,
		ctx:         ctx,
		cancel:      cancel,
		log:         logging.Component("tcpserver"),
	}
}

// Start begins accepting TCP connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.log.Info().Str("addr", listener.Addr().String()).Msg("accepting rank entries")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
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
			go s.handleConnection(conn)
		}
	}()

	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	buf := make([]byte, s.maxLineSize)
	scanner.Buffer(buf, s.maxLineSize)
	base := model.IngestEnvelope{Source: "tcp:" + conn.RemoteAddr().String()}
	first := true

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if first {
			first = false
			if rank, ok := ParseRankHello(line); ok {
				base.Rank, base.Ranked = rank, true
				base.Source += "#" + strconv.Itoa(rank)
				s.log.Debug().Str("remote", conn.RemoteAddr().String()).Int("rank", rank).Msg("rank hello")
				continue
			}
		}
		env := base
		env.Line = line
		select {
		case s.lineChan <- env:
		case <-s.ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			s.log.Warn().Str("remote", conn.RemoteAddr().String()).Int("max", s.maxLineSize).Msg("dropped connection: line exceeds max size")
			return
		}
		s.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("scanner error")
	}
}

// ParseRankHello parses a "@rank <n>" line. Negative or malformed ranks are
// not a hello; the line is then ingested like any other.
func ParseRankHello(line string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), RankHelloPrefix)
	if !ok {
		return 0, false
	}
	rank, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || rank < 0 {
		return 0, false
	}
	return rank, true
}

// Stop gracefully shuts down the TCP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	close(s.lineChan)
	return nil
}

// Lines returns the channel of received log lines.
func (s *Server) Lines() <-chan model.IngestEnvelope {
	return s.lineChan
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
