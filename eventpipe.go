// Package eventpipe provides event-based, bidirectional interprocess
// communication over a pair of named pipes.
//
// An EventPipe joins two half-duplex pipes, one opened in the listening
// role and one in the connecting role, into a single logical duplex
// channel. Applications exchange named binary messages and react to
// connection lifecycle changes through callbacks instead of polling.
// The one-way Client and Server types cover the restricted topology
// where one process only emits events and the other only consumes them.
//
// On Windows the pipes are OS named pipes; elsewhere they are Unix
// domain sockets under a per-user runtime directory. Pipe names are
// process-local either way.
package eventpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prettymuchbryce/eventpipe/internal/codec"
	"github.com/prettymuchbryce/eventpipe/internal/pipe"
	"github.com/prettymuchbryce/eventpipe/internal/registry"
)

// DefaultConnectTimeout bounds Connect when no explicit timeout is
// configured.
const DefaultConnectTimeout = 5 * time.Second

// EventPipe is a duplex event transport over two named pipes. The
// primary pipe is bound in the listening role and carries outbound
// messages; the secondary pipe is dialed in the connecting role and
// carries inbound messages. Two processes form a channel by swapping
// the two names: one side uses ("X", "Y"), the other ("Y", "X").
//
// Callbacks registered via On and OnLifecycle are persistent: they fire
// on every matching event for the lifetime of the transport, across
// reconnects. Inbound dispatch happens on the transport's read
// goroutine, one message at a time.
type EventPipe struct {
	primaryName    string
	secondaryName  string
	connectTimeout time.Duration

	reg *registry.Registry

	mu      sync.Mutex
	sess    *session
	closed  bool
	onError func(error)
}

// session holds the per-connection state: both endpoints, the two
// background loops' cancellation and completion signals, and the
// once-per-session lifecycle dispatch guards.
type session struct {
	primary   *pipe.Endpoint
	secondary *pipe.Endpoint

	acceptCtx    context.Context
	cancelAccept context.CancelFunc
	readCtx      context.Context
	cancelRead   context.CancelFunc

	acceptDone chan struct{}
	readDone   chan struct{}
	started    bool

	connectedOnce    sync.Once
	disconnectedOnce sync.Once
	sawConnected     atomic.Bool
}

// dispatchDisconnected fires the disconnected lifecycle event at most
// once per session, and only if the session reached the connected state.
func (s *session) dispatchDisconnected(reg *registry.Registry) {
	if !s.sawConnected.Load() {
		return
	}
	s.disconnectedOnce.Do(func() {
		reg.DispatchLifecycle(registry.LifecycleDisconnected)
	})
}

// New creates a duplex transport from two distinct, non-empty pipe
// names. No OS resource is opened until Connect.
func New(primary, secondary string) (*EventPipe, error) {
	if primary == "" || secondary == "" {
		return nil, fmt.Errorf("%w: pipe names must be non-empty", ErrInvalidConfig)
	}
	if primary == secondary {
		return nil, fmt.Errorf("%w: pipe names must differ (got %q)", ErrInvalidConfig, primary)
	}
	ep := &EventPipe{
		primaryName:    primary,
		secondaryName:  secondary,
		connectTimeout: DefaultConnectTimeout,
	}
	ep.reg = registry.New(ep.reportError)
	return ep, nil
}

// SetConnectTimeout overrides the dial timeout used by Connect. A zero
// duration means wait indefinitely (subject to the Connect context).
func (ep *EventPipe) SetConnectTimeout(d time.Duration) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.connectTimeout = d
}

// Connect binds the primary pipe, dials the secondary pipe, and starts
// the background accept-wait and read-dispatch loops. The peer may
// connect in either order; dialing retries until the configured timeout
// or ctx cancellation. The connected lifecycle event fires once both
// pipes have a peer attached.
func (ep *EventPipe) Connect(ctx context.Context) error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return ErrClosed
	}
	if ep.sess != nil {
		ep.mu.Unlock()
		return ErrAlreadyConnected
	}

	primary, err := pipe.NewListener(ep.primaryName)
	if err != nil {
		ep.mu.Unlock()
		return fmt.Errorf("open primary pipe: %w", err)
	}
	secondary := pipe.NewConnector(ep.secondaryName)

	acceptCtx, cancelAccept := context.WithCancel(context.Background())
	readCtx, cancelRead := context.WithCancel(context.Background())
	s := &session{
		primary:      primary,
		secondary:    secondary,
		acceptCtx:    acceptCtx,
		cancelAccept: cancelAccept,
		readCtx:      readCtx,
		cancelRead:   cancelRead,
		acceptDone:   make(chan struct{}),
		readDone:     make(chan struct{}),
	}
	ep.sess = s
	timeout := ep.connectTimeout
	ep.mu.Unlock()

	// Release the OS handles even if the owner leaks without Close.
	runtime.AddCleanup(ep, func(s *session) {
		s.primary.Close()
		s.secondary.Close()
	}, s)

	slog.Debug("event pipe connecting", "primary", ep.primaryName, "secondary", ep.secondaryName)

	if err := secondary.Connect(ctx, timeout); err != nil {
		cancelAccept()
		cancelRead()
		primary.Close()
		secondary.Close()
		ep.mu.Lock()
		if ep.sess == s {
			ep.sess = nil
		}
		ep.mu.Unlock()
		return err
	}

	ep.mu.Lock()
	if ep.closed || ep.sess != s {
		ep.mu.Unlock()
		primary.Close()
		secondary.Close()
		return ErrClosed
	}
	s.started = true
	ep.mu.Unlock()

	go ep.acceptLoop(s)
	go ep.readLoop(s)
	return nil
}

// acceptLoop waits for the peer to attach to the primary pipe. The wait
// is issued once per session; reconnecting starts a fresh session with
// a fresh wait.
func (ep *EventPipe) acceptLoop(s *session) {
	defer close(s.acceptDone)

	if err := s.primary.WaitForPeer(); err != nil {
		if errors.Is(err, pipe.ErrClosed) || s.acceptCtx.Err() != nil {
			return
		}
		ep.reportError(fmt.Errorf("wait for peer on %q: %w", ep.primaryName, err))
		return
	}
	ep.maybeConnected(s)
}

// readLoop reads frames from the secondary pipe and dispatches them. A
// malformed frame is reported and skipped; stream closure ends the
// session and fires the disconnected lifecycle event.
func (ep *EventPipe) readLoop(s *session) {
	defer close(s.readDone)

	for {
		line, err := s.secondary.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, pipe.ErrClosed) && !errors.Is(err, pipe.ErrNotConnected) {
				ep.reportError(err)
			}
			if s.readCtx.Err() == nil {
				ep.peerDisconnected(s)
			}
			return
		}
		if line == "" {
			continue
		}
		msg, err := codec.Decode(line)
		if err != nil {
			ep.reportError(err)
			continue
		}
		ep.reg.Dispatch(msg.Name, msg.Payload)
	}
}

// maybeConnected fires the connected lifecycle event once both
// endpoints report an attached peer.
func (ep *EventPipe) maybeConnected(s *session) {
	if !s.primary.IsConnected() || !s.secondary.IsConnected() {
		return
	}
	s.connectedOnce.Do(func() {
		s.sawConnected.Store(true)
		slog.Debug("event pipe connected", "primary", ep.primaryName, "secondary", ep.secondaryName)
		ep.reg.DispatchLifecycle(registry.LifecycleConnected)
	})
}

// peerDisconnected tears down the session after the read loop observed
// stream closure.
func (ep *EventPipe) peerDisconnected(s *session) {
	ep.mu.Lock()
	if ep.sess == s {
		ep.sess = nil
	}
	ep.mu.Unlock()

	s.cancelAccept()
	s.cancelRead()
	s.primary.Close()
	s.secondary.Close()
	slog.Debug("event pipe peer disconnected", "primary", ep.primaryName)
	if !s.sawConnected.Load() {
		// The session never reached the connected state, so no lifecycle
		// event will fire for it; the closure still needs a signal.
		ep.reportError(fmt.Errorf("pipe %q: stream closed before peer attached", ep.secondaryName))
		return
	}
	s.dispatchDisconnected(ep.reg)
}

// Disconnect cancels both background loops, closes both pipes, waits
// for the loops to stop, and fires the disconnected lifecycle event.
// It is safe to call when not connected. The transport may connect
// again afterwards.
func (ep *EventPipe) Disconnect() error {
	ep.mu.Lock()
	s := ep.sess
	ep.sess = nil
	ep.mu.Unlock()
	if s == nil {
		return nil
	}

	s.cancelAccept()
	s.cancelRead()
	err := errors.Join(s.primary.Close(), s.secondary.Close())
	if s.started {
		<-s.acceptDone
		<-s.readDone
	}
	s.dispatchDisconnected(ep.reg)
	return err
}

// Close disconnects and permanently disposes the transport. It is
// idempotent; further Connect calls fail with ErrClosed.
func (ep *EventPipe) Close() error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	ep.mu.Unlock()
	return ep.Disconnect()
}

// Send encodes the named event and writes it to the primary pipe. It
// fails with ErrNotConnected until the peer has attached, and with a
// codec error for names containing the separator or line breaks.
func (ep *EventPipe) Send(name string, payload []byte) error {
	ep.mu.Lock()
	s := ep.sess
	closed := ep.closed
	ep.mu.Unlock()

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
	if err := s.primary.WriteLine(line); err != nil {
		// A send racing with session teardown sees the endpoint already
		// closed; to the caller that is an ordinary disconnected send.
		if errors.Is(err, pipe.ErrClosed) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}

// On registers a callback for the named data event. Registration does
// not require the transport to be connected; duplicate registrations
// accumulate and fire in registration order.
func (ep *EventPipe) On(name string, fn func(payload []byte)) {
	ep.reg.OnEvent(name, fn)
}

// OnLifecycle registers a persistent callback for one of the recognized
// lifecycle events, Connected or Disconnected. Any other name fails
// with ErrUnknownLifecycleEvent.
func (ep *EventPipe) OnLifecycle(kind string, fn func()) error {
	return ep.reg.OnLifecycle(kind, fn)
}

// OnError installs an observer for background errors: malformed inbound
// frames, callback panics, and unexpected stream failures. Without an
// observer such errors are logged.
func (ep *EventPipe) OnError(fn func(error)) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.onError = fn
}

// ClearCallbacks removes all data-event callbacks.
func (ep *EventPipe) ClearCallbacks() {
	ep.reg.ClearEvents()
}

// ClearLifecycleCallbacks removes all lifecycle callbacks.
func (ep *EventPipe) ClearLifecycleCallbacks() {
	ep.reg.ClearLifecycle()
}

func (ep *EventPipe) reportError(err error) {
	ep.mu.Lock()
	fn := ep.onError
	ep.mu.Unlock()
	if fn != nil {
		fn(err)
		return
	}
	slog.Error("event pipe error", "primary", ep.primaryName, "error", err)
}
