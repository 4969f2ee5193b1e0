package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/loglink/internal/ingest"
	"github.com/tinytelemetry/loglink/internal/logsource"
	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/recorder"
	"github.com/tinytelemetry/loglink/internal/socketrpc"
	"github.com/tinytelemetry/loglink/internal/tcpserver"
	"github.com/tinytelemetry/loglink/internal/viewer"
)

// pipelineStack is one daemon without signal handling: tcp ingest into a
// recorder served on a unix socket.
type pipelineStack struct {
	rec    *recorder.Recorder
	tcp    *tcpserver.Server
	socket *socketrpc.Server
	sock   string

	mux *SourceMultiplexer
	wg  sync.WaitGroup
}

func startPipeline(t *testing.T, loc model.Location, ranks int) *pipelineStack {
	t.Helper()

	rec, err := recorder.New(recorder.Config{Location: loc, Ranks: ranks})
	if err != nil {
		t.Fatalf("recorder.New: %v", err)
	}

	sock := filepath.Join(t.TempDir(), loc.String()+".sock")
	socket := socketrpc.NewServer("unix", sock, rec)
	if err := socket.Start(); err != nil {
		t.Fatalf("socket Start: %v", err)
	}

	tcp := tcpserver.NewServer("127.0.0.1:0")
	if err := tcp.Start(); err != nil {
		t.Fatalf("tcp Start: %v", err)
	}

	processor, err := ingest.NewEnvelopeProcessor(ingest.ProcessorModeParse, rec, 0)
	if err != nil {
		t.Fatalf("NewEnvelopeProcessor: %v", err)
	}

	mux := NewSourceMultiplexer(context.Background(), []NamedLogSource{logsource.NewTCPSource(tcp)}, MuxConfig{Ranks: ranks})
	mux.Start()

	stack := &pipelineStack{rec: rec, tcp: tcp, socket: socket, sock: sock, mux: mux}
	stack.wg.Add(1)
	go func() {
		defer stack.wg.Done()
		for env := range mux.Lines() {
			processor.ProcessEnvelope(env)
		}
	}()

	t.Cleanup(func() {
		mux.Stop()
		stack.wg.Wait()
		socket.Stop()
		rec.Close()
	})
	return stack
}

func waitEventually(t *testing.T, timeout, interval time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("eventually timeout: %s", msg)
		}
		time.Sleep(interval)
	}
}

func sendTCPLines(t *testing.T, addr string, lines []string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		t.Fatalf("dial tcp %s: %v", addr, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	w := bufio.NewWriter(conn)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			t.Fatalf("write line: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func jsonEntry(rank int, uptime float64, category, level, msg string) string {
	return fmt.Sprintf(`{"rank":%d,"uptime":%g,"category":%q,"level":%q,"message":%q}`, rank, uptime, category, level, msg)
}

func waitForLines(t *testing.T, rec *recorder.Recorder, rank, want int) {
	t.Helper()
	waitEventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return rec.LineCount(rank) >= want
	}, fmt.Sprintf("%s rank %d never reached %d lines", rec.Location(), rank, want))
}

func dialRecorder(t *testing.T, sock string) *socketrpc.Client {
	t.Helper()
	c, err := socketrpc.Dial(context.Background(), "unix", sock)
	if err != nil {
		t.Fatalf("Dial %s: %v", sock, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPipelineLinkedScrollAcrossDaemons(t *testing.T) {
	client := startPipeline(t, model.LocationClient, 1)
	server := startPipeline(t, model.LocationServer, 1)

	sendTCPLines(t, client.tcp.Addr(), []string{
		jsonEntry(0, 12.3, "application", "info", "client opened"),
		jsonEntry(0, 13.3, "rendering", "info", "client render"),
		jsonEntry(0, 15.3, "application", "warning", "client late"),
	})
	sendTCPLines(t, server.tcp.Addr(), []string{
		jsonEntry(0, 5.0, "application", "info", "server opened"),
		jsonEntry(0, 6.0, "data-movement", "info", "server move"),
		jsonEntry(0, 8.0, "application", "info", "server late"),
	})
	waitForLines(t, client.rec, 0, 3)
	waitForLines(t, server.rec, 0, 3)

	ctx := context.Background()
	s, err := viewer.NewSession(ctx, []model.Recorder{dialRecorder(t, client.sock), dialRecorder(t, server.sock)})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	a, err := s.OpenPane(ctx, model.StreamKey{Location: model.LocationClient})
	if err != nil {
		t.Fatalf("OpenPane client: %v", err)
	}
	b, err := s.OpenPane(ctx, model.StreamKey{Location: model.LocationServer})
	if err != nil {
		t.Fatalf("OpenPane server: %v", err)
	}

	moved, err := s.Scroll(a.ID, 15.3)
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if len(moved) != 1 || moved[0] != b.ID {
		t.Fatalf("moved = %v, want [%s]", moved, b.ID)
	}
	if got, _ := b.DisplayedTime(); got < 7.999 || got > 8.001 {
		t.Fatalf("server pane at %.3f, want 8.0", got)
	}
	if w := b.Window(1); len(w) != 1 || !strings.Contains(w[0].Text, "server late") {
		t.Fatalf("server pane top = %+v", w)
	}
}

func TestPipelinePromotionFiltersIngest(t *testing.T) {
	client := startPipeline(t, model.LocationClient, 1)
	ctx := context.Background()

	s, err := viewer.NewSession(ctx, []model.Recorder{dialRecorder(t, client.sock)})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.SetProcessVerbosity(ctx, model.LocationClient, model.VerbosityWarning); err != nil {
		t.Fatalf("SetProcessVerbosity: %v", err)
	}
	if err := s.SetPromotion(ctx, model.CategoryRendering, true); err != nil {
		t.Fatalf("SetPromotion: %v", err)
	}

	sendTCPLines(t, client.tcp.Addr(), []string{
		jsonEntry(0, 1.0, "rendering", "info", "render detail"),
		jsonEntry(0, 2.0, "rendering", "warning", "render warning"),
		jsonEntry(0, 3.0, "pipeline", "info", "pipeline detail"),
	})
	// The dropped render detail never reaches the buffer.
	waitForLines(t, client.rec, 0, 2)

	text, err := client.rec.FetchLog(ctx, 0)
	if err != nil {
		t.Fatalf("FetchLog: %v", err)
	}
	if strings.Contains(text, "render detail") {
		t.Fatalf("promoted category recorded below WARNING:\n%s", text)
	}
	for _, want := range []string{"render warning", "pipeline detail"} {
		if !strings.Contains(text, want) {
			t.Fatalf("log missing %q:\n%s", want, text)
		}
	}
}

func TestPipelineRankHelloRoutesPlainText(t *testing.T) {
	server := startPipeline(t, model.LocationServer, 2)

	sendTCPLines(t, server.tcp.Addr(), []string{"@rank 1", "ERROR disk full"})
	waitForLines(t, server.rec, 1, 1)

	if n := server.rec.LineCount(0); n != 0 {
		t.Fatalf("rank 0 got %d lines, want 0", n)
	}
	text, err := server.rec.FetchLog(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchLog: %v", err)
	}
	if !strings.Contains(text, "disk full") || !strings.Contains(text, "ERROR") {
		t.Fatalf("rank 1 log = %q", text)
	}
}

func TestPipelineDropsLinesForMissingRank(t *testing.T) {
	server := startPipeline(t, model.LocationServer, 2)

	sendTCPLines(t, server.tcp.Addr(), []string{"@rank 5", "WARNING lost"})
	sendTCPLines(t, server.tcp.Addr(), []string{"@rank 1", "WARNING kept"})
	waitForLines(t, server.rec, 1, 1)

	waitEventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return server.mux.Stats()[0].Rejected == 1
	}, "rank 5 line never rejected")
	if n := server.rec.LineCount(0); n != 0 {
		t.Fatalf("rank 0 got %d lines, want 0", n)
	}
	if ranks := server.mux.ActiveRanks(); len(ranks) != 1 || ranks[0] != 1 {
		t.Fatalf("ActiveRanks() = %v, want [1]", ranks)
	}
}
