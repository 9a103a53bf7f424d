// Package pipe provides half-duplex named-pipe endpoints in a listener
// or connector role, with line-oriented reads and writes.
package pipe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// Role identifies which side of the pipe an endpoint occupies.
type Role int

const (
	// RoleListener binds the pipe name and waits for a peer to attach.
	RoleListener Role = iota
	// RoleConnector dials a pipe name bound by a peer.
	RoleConnector
)

// State is the connection state of an endpoint.
type State int

const (
	StateUnopened State = iota
	StateWaitingForPeer
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateWaitingForPeer:
		return "waiting-for-peer"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned for reads and writes before a peer is
	// attached.
	ErrNotConnected = errors.New("pipe not connected")
	// ErrClosed is returned once an endpoint has been closed.
	ErrClosed = errors.New("pipe closed")
	// ErrAlreadyConnected is returned when connecting or accepting on an
	// endpoint that already has a peer.
	ErrAlreadyConnected = errors.New("pipe already connected")
	// ErrConnectTimeout is returned when a connector gives up dialing.
	ErrConnectTimeout = errors.New("connect timed out")
)

const (
	dialAttemptTimeout = 250 * time.Millisecond
	dialRetryInterval  = 50 * time.Millisecond
)

// Endpoint owns one half-duplex pipe handle. A listener-role endpoint
// binds its name immediately and attaches a peer via WaitForPeer; a
// connector-role endpoint attaches via Connect. Reads and writes are
// line-oriented; every write is pushed to the OS immediately.
type Endpoint struct {
	name string
	addr string
	role Role

	mu     sync.Mutex
	state  State
	ln     net.Listener
	conn   net.Conn
	reader *bufio.Reader

	// Serializes WriteLine calls from concurrent senders.
	writeMu sync.Mutex
}

// NewListener binds the pipe name and returns a listener-role endpoint.
// NewListener does not block; call WaitForPeer to attach a peer.
func NewListener(name string) (*Endpoint, error) {
	addr := address(name)
	if err := prepare(addr); err != nil {
		return nil, fmt.Errorf("prepare pipe %q: %w", name, err)
	}
	ln, err := listen(addr)
	if err != nil {
		return nil, fmt.Errorf("listen on pipe %q: %w", name, err)
	}
	return &Endpoint{name: name, addr: addr, role: RoleListener, ln: ln}, nil
}

// NewConnector returns a connector-role endpoint. No OS resource is
// opened until Connect.
func NewConnector(name string) *Endpoint {
	return &Endpoint{name: name, addr: address(name), role: RoleConnector}
}

// Name returns the pipe name the endpoint is bound to.
func (e *Endpoint) Name() string { return e.name }

// State returns the endpoint's current connection state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsConnected reports whether a peer is currently attached.
func (e *Endpoint) IsConnected() bool {
	return e.State() == StateConnected
}

// WaitForPeer blocks until a connector attaches, then records the
// connection. It may be called again after the connection is torn down,
// but not while a peer is already attached.
func (e *Endpoint) WaitForPeer() error {
	e.mu.Lock()
	if e.role != RoleListener {
		e.mu.Unlock()
		return fmt.Errorf("pipe %q: wait for peer on connector endpoint", e.name)
	}
	switch e.state {
	case StateClosed:
		e.mu.Unlock()
		return ErrClosed
	case StateConnected:
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	e.state = StateWaitingForPeer
	ln := e.ln
	e.mu.Unlock()

	conn, err := ln.Accept()
	if err != nil {
		if e.State() == StateClosed || errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("accept on pipe %q: %w", e.name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		conn.Close()
		return ErrClosed
	}
	e.conn = conn
	e.reader = bufio.NewReader(conn)
	e.state = StateConnected
	return nil
}

// Connect dials the pipe name until a listener accepts, the timeout
// elapses, or ctx is cancelled. A zero timeout means wait indefinitely
// (subject to ctx). The peer may bind its listener after Connect is
// called; failed dial attempts are retried until the deadline.
func (e *Endpoint) Connect(ctx context.Context, timeout time.Duration) error {
	e.mu.Lock()
	if e.role != RoleConnector {
		e.mu.Unlock()
		return fmt.Errorf("pipe %q: connect on listener endpoint", e.name)
	}
	switch e.state {
	case StateClosed:
		e.mu.Unlock()
		return ErrClosed
	case StateConnected:
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	e.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		conn, err := dial(e.addr, dialAttemptTimeout)
		if err == nil {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.state == StateClosed {
				conn.Close()
				return ErrClosed
			}
			e.conn = conn
			e.reader = bufio.NewReader(conn)
			e.state = StateConnected
			return nil
		}
		if e.State() == StateClosed {
			return ErrClosed
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("connect to pipe %q: %w: %v", e.name, ErrConnectTimeout, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect to pipe %q: %w", e.name, ctx.Err())
		case <-time.After(dialRetryInterval):
		}
	}
}

// ReadLine blocks until a full line is available, returning it without
// the trailing line terminator. It returns io.EOF once the peer closes
// the pipe or the endpoint itself is closed.
func (e *Endpoint) ReadLine() (string, error) {
	e.mu.Lock()
	reader := e.reader
	state := e.state
	e.mu.Unlock()

	if state == StateClosed {
		return "", io.EOF
	}
	if reader == nil {
		return "", ErrNotConnected
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		// A partial line with no terminator is an incomplete frame;
		// drop it and report closure.
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || e.State() == StateClosed {
			return "", io.EOF
		}
		return "", fmt.Errorf("read from pipe %q: %w", e.name, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine writes one line and hands it to the OS immediately; nothing
// is buffered between calls. Concurrent writers are serialized.
func (e *Endpoint) WriteLine(line string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	conn := e.conn
	state := e.state
	e.mu.Unlock()

	if state == StateClosed {
		return ErrClosed
	}
	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write to pipe %q: %w", e.name, err)
	}
	return nil
}

// Close disconnects the peer and releases the pipe handle. It unblocks
// any pending WaitForPeer or ReadLine and is safe to call repeatedly.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil
	}
	e.state = StateClosed
	conn := e.conn
	ln := e.ln
	e.conn = nil
	e.reader = nil
	e.ln = nil
	e.mu.Unlock()

	var connErr, lnErr error
	if conn != nil {
		connErr = conn.Close()
	}
	if ln != nil {
		lnErr = ln.Close()
		cleanup(e.addr)
	}
	return errors.Join(connErr, lnErr)
}
