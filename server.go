package eventpipe

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/prettymuchbryce/eventpipe/internal/codec"
	"github.com/prettymuchbryce/eventpipe/internal/pipe"
	"github.com/prettymuchbryce/eventpipe/internal/registry"
)

// Server is the emitting half of a one-way channel. It binds a pipe
// name, waits in the background for a Client to attach, and then sends
// named events via Send. It has no inbound data path; the only
// callbacks it supports are the connected and disconnected lifecycle
// events.
type Server struct {
	name string

	reg *registry.Registry

	mu      sync.Mutex
	sess    *serverSession
	closed  bool
	onError func(error)
}

type serverSession struct {
	endpoint *pipe.Endpoint

	acceptDone chan struct{}

	connectedOnce    sync.Once
	disconnectedOnce sync.Once
	sawConnected     atomic.Bool
}

func (s *serverSession) dispatchDisconnected(reg *registry.Registry) {
	if !s.sawConnected.Load() {
		return
	}
	s.disconnectedOnce.Do(func() {
		reg.DispatchLifecycle(registry.LifecycleDisconnected)
	})
}

// NewServer creates a one-way emitting server for the given pipe name.
// No OS resource is opened until Start.
func NewServer(name string) (*Server, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: pipe name must be non-empty", ErrInvalidConfig)
	}
	srv := &Server{name: name}
	srv.reg = registry.New(srv.reportError)
	return srv, nil
}

// Start binds the pipe and begins waiting for a client in the
// background. It does not block; the connected lifecycle event fires
// once a client attaches.
func (srv *Server) Start() error {
	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		return ErrClosed
	}
	if srv.sess != nil {
		srv.mu.Unlock()
		return ErrAlreadyConnected
	}
	endpoint, err := pipe.NewListener(srv.name)
	if err != nil {
		srv.mu.Unlock()
		return err
	}
	s := &serverSession{
		endpoint:   endpoint,
		acceptDone: make(chan struct{}),
	}
	srv.sess = s
	srv.mu.Unlock()

	runtime.AddCleanup(srv, func(e *pipe.Endpoint) { e.Close() }, endpoint)

	go srv.acceptLoop(s)
	return nil
}

// acceptLoop waits for a single client to attach. The wait is issued
// once per session; restarting after Disconnect issues a fresh wait.
func (srv *Server) acceptLoop(s *serverSession) {
	defer close(s.acceptDone)

	if err := s.endpoint.WaitForPeer(); err != nil {
		if !errors.Is(err, pipe.ErrClosed) {
			srv.reportError(fmt.Errorf("wait for client on %q: %w", srv.name, err))
		}
		return
	}
	s.connectedOnce.Do(func() {
		s.sawConnected.Store(true)
		slog.Debug("one-way server connected", "pipe", srv.name)
		srv.reg.DispatchLifecycle(registry.LifecycleConnected)
	})
}

// Send encodes the named event and writes it to the attached client. It
// fails with ErrNotConnected until a client has attached. A write
// failure after the client vanished surfaces to the caller and ends the
// session with a disconnected lifecycle event.
func (srv *Server) Send(name string, payload []byte) error {
	srv.mu.Lock()
	s := srv.sess
	closed := srv.closed
	srv.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if s == nil {
		return ErrNotConnected
	}
	line, err := codec.Encode(name, payload)
	if err != nil {
		return err
	}
	if err := s.endpoint.WriteLine(line); err != nil {
		if errors.Is(err, pipe.ErrClosed) {
			return ErrNotConnected
		}
		if !errors.Is(err, ErrNotConnected) {
			srv.teardown(s)
		}
		return err
	}
	return nil
}

// OnLifecycle registers a persistent callback for Connected or
// Disconnected.
func (srv *Server) OnLifecycle(kind string, fn func()) error {
	return srv.reg.OnLifecycle(kind, fn)
}

// OnError installs an observer for background errors. Without an
// observer such errors are logged.
func (srv *Server) OnError(fn func(error)) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.onError = fn
}

// ClearLifecycleCallbacks removes all lifecycle callbacks.
func (srv *Server) ClearLifecycleCallbacks() {
	srv.reg.ClearLifecycle()
}

// Disconnect stops the accept wait, closes the pipe, and fires the
// disconnected lifecycle event. Safe to call when not started; the
// server may start again afterwards.
func (srv *Server) Disconnect() error {
	srv.mu.Lock()
	s := srv.sess
	srv.sess = nil
	srv.mu.Unlock()
	if s == nil {
		return nil
	}

	err := s.endpoint.Close()
	<-s.acceptDone
	s.dispatchDisconnected(srv.reg)
	return err
}

// Close disconnects and permanently disposes the server. Idempotent.
func (srv *Server) Close() error {
	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		return nil
	}
	srv.closed = true
	srv.mu.Unlock()
	return srv.Disconnect()
}

// teardown ends the session after a failed write revealed that the
// client is gone.
func (srv *Server) teardown(s *serverSession) {
	srv.mu.Lock()
	if srv.sess == s {
		srv.sess = nil
	}
	srv.mu.Unlock()

	s.endpoint.Close()
	<-s.acceptDone
	s.dispatchDisconnected(srv.reg)
}

func (srv *Server) reportError(err error) {
	srv.mu.Lock()
	fn := srv.onError
	srv.mu.Unlock()
	if fn != nil {
		fn(err)
		return
	}
	slog.Error("one-way server error", "pipe", srv.name, "error", err)
}
