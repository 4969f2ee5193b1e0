package logsource

import (
	"fmt"

	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/tcpserver"
)

// TCPSource ingests rank entries from tcp connections. Each connection may
// open with "@rank <n>"; otherwise its plain-text lines carry no rank.
type TCPSource struct {
	server *tcpserver.Server
}

// ListenTCP starts a tcp listener on addr and wraps it.
func ListenTCP(addr string, conf ...tcpserver.ServerConfig) (*TCPSource, error) {
	server := tcpserver.NewServer(addr, conf...)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("logsource: listen tcp %s: %w", addr, err)
	}
	return NewTCPSource(server), nil
}

// NewTCPSource wraps an already started server.
func NewTCPSource(server *tcpserver.Server) *TCPSource {
	return &TCPSource{server: server}
}

// Addr returns the bound listen address.
func (t *TCPSource) Addr() string { return t.server.Addr() }

func (t *TCPSource) Lines() <-chan model.IngestEnvelope { return t.server.Lines() }
func (t *TCPSource) Stop()                              { _ = t.server.Stop() }
func (t *TCPSource) Name() string                       { return "tcp" }

// BoundRank is never set: the rank is chosen per connection.
func (t *TCPSource) BoundRank() (int, bool) { return 0, false }
