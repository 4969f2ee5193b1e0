package logsource

import (
	"net"
	"testing"
	"time"
)

func TestListenTCPTagsHelloConnections(t *testing.T) {
	src, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer src.Stop()

	if _, ok := src.BoundRank(); ok {
		t.Fatal("tcp source must decide ranks per connection")
	}
	if got := Describe(src); got != "tcp -> @rank hello or rank 0" {
		t.Fatalf("Describe() = %q", got)
	}

	conn, err := net.DialTimeout("tcp", src.Addr(), 3*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Write([]byte("@rank 4\nframe done\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.Close()

	select {
	case env := <-src.Lines():
		if !env.Ranked || env.Rank != 4 || env.Line != "frame done" {
			t.Fatalf("envelope %+v, want rank 4 frame done", env)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for line")
	}
}

func TestListenTCPReportsBindFailure(t *testing.T) {
	src, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer src.Stop()

	if _, err := ListenTCP(src.Addr()); err == nil {
		t.Fatal("expected second listener on the same address to fail")
	}
}
