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

// Client is the receiving half of a one-way channel. It dials the pipe
// name bound by a Server, runs a read-dispatch loop, and delivers
// inbound events to callbacks registered via On. It has no send path.
type Client struct {
	name           string
	connectTimeout time.Duration

	reg *registry.Registry

	mu      sync.Mutex
	sess    *clientSession
	closed  bool
	onError func(error)
}

type clientSession struct {
	endpoint *pipe.Endpoint

	readCtx    context.Context
	cancelRead context.CancelFunc
	readDone   chan struct{}
	started    bool

	sawConnected     atomic.Bool
	disconnectedOnce sync.Once
}

// dispatchDisconnected fires the disconnected lifecycle event at most
// once per session, and only if the session reached the connected state.
func (s *clientSession) dispatchDisconnected(reg *registry.Registry) {
	if !s.sawConnected.Load() {
		return
	}
	s.disconnectedOnce.Do(func() {
		reg.DispatchLifecycle(registry.LifecycleDisconnected)
	})
}

// NewClient creates a one-way receiving client for the given pipe name.
// No OS resource is opened until Connect.
func NewClient(name string) (*Client, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: pipe name must be non-empty", ErrInvalidConfig)
	}
	c := &Client{name: name, connectTimeout: DefaultConnectTimeout}
	c.reg = registry.New(c.reportError)
	return c, nil
}

// SetConnectTimeout overrides the dial timeout used by Connect.
func (c *Client) SetConnectTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectTimeout = d
}

// Connect dials the server's pipe, fires the connected lifecycle event,
// and starts the read-dispatch loop. The server may bind its pipe after
// Connect is called; dialing retries until the timeout or ctx
// cancellation.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sess != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	endpoint := pipe.NewConnector(c.name)
	readCtx, cancelRead := context.WithCancel(context.Background())
	s := &clientSession{
		endpoint:   endpoint,
		readCtx:    readCtx,
		cancelRead: cancelRead,
		readDone:   make(chan struct{}),
	}
	c.sess = s
	timeout := c.connectTimeout
	c.mu.Unlock()

	runtime.AddCleanup(c, func(e *pipe.Endpoint) { e.Close() }, endpoint)

	if err := endpoint.Connect(ctx, timeout); err != nil {
		cancelRead()
		endpoint.Close()
		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.closed || c.sess != s {
		c.mu.Unlock()
		endpoint.Close()
		return ErrClosed
	}
	s.started = true
	c.mu.Unlock()

	slog.Debug("one-way client connected", "pipe", c.name)
	s.sawConnected.Store(true)
	c.reg.DispatchLifecycle(registry.LifecycleConnected)
	go c.readLoop(s)
	return nil
}

func (c *Client) readLoop(s *clientSession) {
	defer close(s.readDone)

	for {
		line, err := s.endpoint.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, pipe.ErrClosed) && !errors.Is(err, pipe.ErrNotConnected) {
				c.reportError(err)
			}
			if s.readCtx.Err() == nil {
				c.mu.Lock()
				if c.sess == s {
					c.sess = nil
				}
				c.mu.Unlock()
				s.cancelRead()
				s.endpoint.Close()
				s.dispatchDisconnected(c.reg)
			}
			return
		}
		if line == "" {
			continue
		}
		msg, err := codec.Decode(line)
		if err != nil {
			c.reportError(err)
			continue
		}
		c.reg.Dispatch(msg.Name, msg.Payload)
	}
}

// On registers a callback for the named data event.
func (c *Client) On(name string, fn func(payload []byte)) {
	c.reg.OnEvent(name, fn)
}

// OnLifecycle registers a persistent callback for Connected or
// Disconnected.
func (c *Client) OnLifecycle(kind string, fn func()) error {
	return c.reg.OnLifecycle(kind, fn)
}

// OnError installs an observer for background errors. Without an
// observer such errors are logged.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// ClearCallbacks removes all data-event callbacks.
func (c *Client) ClearCallbacks() {
	c.reg.ClearEvents()
}

// ClearLifecycleCallbacks removes all lifecycle callbacks.
func (c *Client) ClearLifecycleCallbacks() {
	c.reg.ClearLifecycle()
}

// Disconnect stops the read loop, closes the pipe, and fires the
// disconnected lifecycle event. Safe to call when not connected; the
// client may connect again afterwards.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	s.cancelRead()
	err := s.endpoint.Close()
	if s.started {
		<-s.readDone
	}
	s.dispatchDisconnected(c.reg)
	return err
}

// Close disconnects and permanently disposes the client. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.Disconnect()
}

func (c *Client) reportError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
		return
	}
	slog.Error("one-way client error", "pipe", c.name, "error", err)
}
