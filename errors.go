package eventpipe

import (
	"errors"

	"github.com/prettymuchbryce/eventpipe/internal/codec"
	"github.com/prettymuchbryce/eventpipe/internal/pipe"
	"github.com/prettymuchbryce/eventpipe/internal/registry"
)

// Lifecycle event names accepted by OnLifecycle. This set is closed;
// data events registered via On may use any name.
const (
	Connected    = registry.LifecycleConnected
	Disconnected = registry.LifecycleDisconnected
)

var (
	// ErrInvalidConfig is returned by constructors for empty or
	// conflicting pipe names, before any OS resource is opened.
	ErrInvalidConfig = errors.New("invalid pipe configuration")
	// ErrClosed is returned once a transport has been closed.
	ErrClosed = errors.New("event pipe closed")
	// ErrNotConnected is returned by Send when no peer is attached.
	ErrNotConnected = pipe.ErrNotConnected
	// ErrAlreadyConnected is returned by Connect on a connected transport.
	ErrAlreadyConnected = pipe.ErrAlreadyConnected
	// ErrConnectTimeout is returned when Connect gives up dialing.
	ErrConnectTimeout = pipe.ErrConnectTimeout
	// ErrUnknownLifecycleEvent is returned by OnLifecycle for names
	// outside the recognized set.
	ErrUnknownLifecycleEvent = registry.ErrUnknownLifecycleEvent
	// ErrInvalidEventName is returned by Send for event names that are
	// empty or contain the wire separator or a line break.
	ErrInvalidEventName = codec.ErrInvalidName
)
