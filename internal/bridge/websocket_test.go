package bridge

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(nil, 8)
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		_ = srv.Close()
		hs.Close()
	})
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func waitPeers(t *testing.T, srv *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Peers() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d peers, got %d", n, srv.Peers())
}

func TestWebsocketRoundTrip(t *testing.T) {
	srv, url := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	waitPeers(t, srv, 1)

	if err := c.Send(ctx, Cleanup("rem-1")); err != nil {
		t.Fatalf("client send: %v", err)
	}
	select {
	case got := <-srv.Messages():
		if got != Cleanup("rem-1") {
			t.Fatalf("unexpected inbound %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for CLEANUP")
	}

	if err := srv.Send(ctx, Focus("rem-1")); err != nil {
		t.Fatalf("server send: %v", err)
	}
	select {
	case got := <-c.Messages():
		if got != Focus("rem-1") {
			t.Fatalf("unexpected outbound %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for FOCUS")
	}
}

func TestServerSendWithoutPeers(t *testing.T) {
	srv, _ := startServer(t)
	if err := srv.Send(context.Background(), Focus("rem-1")); !errors.Is(err, ErrNoPeers) {
		t.Fatalf("expected ErrNoPeers, got %v", err)
	}
}

func TestClientDoneAfterServerClose(t *testing.T) {
	srv, url := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitPeers(t, srv, 1)
	_ = srv.Close()

	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("client did not notice server close")
	}
	if err := c.Send(context.Background(), Recheck()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after disconnect, got %v", err)
	}
}

func TestURL(t *testing.T) {
	if got := URL("127.0.0.1:7878", "bridge"); got != "ws://127.0.0.1:7878/bridge" {
		t.Fatalf("unexpected url %q", got)
	}
}
