package logsource

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestStdinSourceStopClosesLines(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()

	select {
	case _, ok := <-src.Lines():
		if ok {
			t.Fatal("expected lines channel to be closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lines channel to close")
	}
}

func TestStdinSourceStopIsIdempotent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()
	src.Stop()
}

func TestStdinSourceDeliversLines(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	src := newStdinSourceWithReader(context.Background(), r)
	defer src.Stop()

	if _, err := w.WriteString("one\n\ntwo\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()

	var got []string
	for env := range src.Lines() {
		if env.Source != "stdin" {
			t.Errorf("source = %q, want stdin", env.Source)
		}
		got = append(got, env.Line)
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("lines = %q, want [one two]", got)
	}
}

func TestStdinSourceRankHello(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	src := newStdinSourceWithReader(context.Background(), r)
	defer src.Stop()

	if _, err := w.WriteString("@rank 3\nfirst\n@rank 1\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()

	var got []string
	for env := range src.Lines() {
		if !env.Ranked || env.Rank != 3 {
			t.Errorf("envelope %+v, want rank 3", env)
		}
		got = append(got, env.Line)
	}
	// Only the leading line is a hello.
	if len(got) != 2 || got[0] != "first" || got[1] != "@rank 1" {
		t.Fatalf("lines = %q", got)
	}
}

func TestStdinSourceBoundRank(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	src := newStdinSourceWithReader(context.Background(), r, StdinConfig{Rank: 2})
	defer src.Stop()
	if rank, ok := src.BoundRank(); !ok || rank != 2 {
		t.Fatalf("BoundRank() = %d, %v, want 2, true", rank, ok)
	}
	if got := Describe(src); got != "stdin -> rank 2" {
		t.Fatalf("Describe() = %q", got)
	}

	if _, err := w.WriteString("solver step\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()

	for env := range src.Lines() {
		if !env.Ranked || env.Rank != 2 {
			t.Fatalf("envelope %+v, want rank 2", env)
		}
	}
}
