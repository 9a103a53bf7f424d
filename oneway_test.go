package eventpipe

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prettymuchbryce/eventpipe/internal/pipe"
)

// newOneWayPair starts a server, connects a client to it, and waits for
// both sides to observe the connected lifecycle event.
func newOneWayPair(t *testing.T) (*Server, *Client) {
	t.Helper()

	name := pipe.RandomName("oneway")
	srv, err := NewServer(name)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	client, err := NewClient(name)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() {
		srv.Close()
		client.Close()
	})

	srvConnected := make(chan struct{}, 1)
	if err := srv.OnLifecycle(Connected, func() { srvConnected <- struct{}{} }); err != nil {
		t.Fatalf("OnLifecycle returned error: %v", err)
	}

	if err := srv.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	waitSignal(t, srvConnected, "connected on server")
	return srv, client
}

func TestOneWaySendReceive(t *testing.T) {
	srv, client := newOneWayPair(t)

	received := make(chan []byte, 1)
	client.On("tick", func(p []byte) { received <- p })

	if err := srv.Send("tick", []byte{9, 8, 7}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case p := <-received:
		if !bytes.Equal(p, []byte{9, 8, 7}) {
			t.Errorf("client received %v, want [9 8 7]", p)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for tick")
	}
}

func TestOneWayServerDisconnect(t *testing.T) {
	srv, client := newOneWayPair(t)

	disc := make(chan struct{}, 1)
	if err := client.OnLifecycle(Disconnected, func() { disc <- struct{}{} }); err != nil {
		t.Fatalf("OnLifecycle returned error: %v", err)
	}

	if err := srv.Disconnect(); err != nil {
		t.Fatalf("Disconnect returned error: %v", err)
	}
	waitSignal(t, disc, "disconnected on client")

	if err := srv.Send("tick", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Disconnect error = %v, want ErrNotConnected", err)
	}
}

func TestOneWaySendBeforeClientAttaches(t *testing.T) {
	srv, err := NewServer(pipe.RandomName("oneway"))
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	if err := srv.Send("tick", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before Start error = %v, want ErrNotConnected", err)
	}

	if err := srv.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := srv.Send("tick", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before client attach error = %v, want ErrNotConnected", err)
	}
}

func TestClientConnectTimeout(t *testing.T) {
	client, err := NewClient(pipe.RandomName("nobody"))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	client.SetConnectTimeout(300 * time.Millisecond)

	if err := client.Connect(context.Background()); !errors.Is(err, ErrConnectTimeout) {
		t.Errorf("Connect error = %v, want ErrConnectTimeout", err)
	}
}

func TestOneWayCloseIsIdempotent(t *testing.T) {
	srv, client := newOneWayPair(t)

	for i := 0; i < 3; i++ {
		if err := srv.Close(); err != nil {
			t.Errorf("server Close #%d returned error: %v", i+1, err)
		}
		if err := client.Close(); err != nil {
			t.Errorf("client Close #%d returned error: %v", i+1, err)
		}
	}
	if err := srv.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close error = %v, want ErrClosed", err)
	}
}

func TestOneWayEmptyName(t *testing.T) {
	if _, err := NewServer(""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewServer(\"\") error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewClient(""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient(\"\") error = %v, want ErrInvalidConfig", err)
	}
}
