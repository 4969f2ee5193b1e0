package logsource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/tcpserver"
)

const (
	// DefaultStdinBuffer is the default channel buffer size for stdin lines.
	DefaultStdinBuffer = 50_000

	// DefaultStdinMaxLineSize is the default maximum size (in bytes) of a single stdin line.
	DefaultStdinMaxLineSize = 1024 * 1024 // 1MB
)

// StdinConfig holds tunable parameters for the stdin source. Rank is the
// rank every line is bound to until a leading hello says otherwise.
type StdinConfig struct {
	BufferSize  int
	MaxLineSize int
	Rank        int
}

// StdinSource reads one rank's entry lines from stdin. A leading
// "@rank <n>" line rebinds the stream to rank n.
type StdinSource struct {
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	rank   int
}

// NewStdinSource creates a StdinSource that reads from stdin in a background goroutine.
func NewStdinSource(ctx context.Context, conf ...StdinConfig) *StdinSource {
	return newStdinSourceWithReader(ctx, os.Stdin, conf...)
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader, conf ...StdinConfig) *StdinSource {
	bufferSize := DefaultStdinBuffer
	maxLineSize := DefaultStdinMaxLineSize
	rank := 0
	if len(conf) > 0 {
		rank = max(conf[0].Rank, 0)
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &StdinSource{
		ch:     make(chan model.IngestEnvelope, bufferSize),
		cancel: cancel,
		rank:   rank,
	}
	go s.read(ctx, r, maxLineSize)
	return s
}

func (s *StdinSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)
	log := logging.Component("logsource")

	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxLineSize)
	scanner.Buffer(buf, maxLineSize)

	// Use a single goroutine for blocking scan with a done channel to
	// detect context cancellation without spawning a goroutine per line.
	type scanResult struct {
		line string
		ok   bool
	}
	results := make(chan scanResult)
	go func() {
		defer close(results)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case results <- scanResult{line: line, ok: true}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				log.Warn().Int("max", maxLineSize).Msg("stdin line exceeded max size, stopping stdin source")
				return
			}
			log.Warn().Err(err).Msg("stdin scanner error")
		}
	}()

	base := model.IngestEnvelope{Source: s.Name(), Rank: s.rank, Ranked: true}
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok || !r.ok {
				return
			}
			if first {
				first = false
				if rank, ok := tcpserver.ParseRankHello(r.line); ok {
					base.Rank, base.Ranked = rank, true
					log.Debug().Int("rank", rank).Msg("stdin rank hello")
					continue
				}
			}
			env := base
			env.Line = r.line
			select {
			case s.ch <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *StdinSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *StdinSource) Stop()                              { s.cancel() }
func (s *StdinSource) Name() string                       { return "stdin" }

// BoundRank returns the configured rank, before any hello.
func (s *StdinSource) BoundRank() (int, bool) { return s.rank, true }
