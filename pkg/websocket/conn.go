package websocket

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsocket/opsocket/internal/idgen"
	"github.com/opsocket/opsocket/internal/metrics"
)

// connState is the lifecycle state of a [Conn], per spec.md §4.5's
// state machine: Closed -> Handshaking -> Open -> Closing -> Closed.
type connState int32

const (
	stateClosed connState = iota
	stateHandshaking
	stateOpen
	stateClosing
)

func (s connState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateHandshaking:
		return "handshaking"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// defaultHandshakeTimeout is the handshake budget applied when the
// caller's context carries no deadline of its own.
const defaultHandshakeTimeout = 15 * time.Second

// closeHandshakeTimeout is how long [Conn.Close] waits for the server to
// acknowledge a close frame before the connection is forced to abort.
const closeHandshakeTimeout = 5 * time.Second

// Conn represents the configuration and state of an open client
// connection to a WebSocket server. It implements the connection
// lifecycle, frame dispatch, and the two delivery modes (callback and
// async-pull) described in spec.md §4.5.
type Conn struct {
	id        string
	logger    zerolog.Logger
	loggerSet bool

	// Initialized before the handshake.
	client      *http.Client
	headers     http.Header
	bearerToken string
	nonceGen    io.Reader
	timeout     time.Duration
	maxPayload  uint64
	autoPong    bool
	events      Events
	async       bool
	metrics     *metrics.Recorder

	state atomic.Int32

	// Initialized after the handshake.
	transport io.ReadWriteCloser
	queue     *byteQueue

	writer chan internalMessage
	reader chan Message
	done   chan struct{}

	closeSentMu   sync.Mutex
	closeSent     bool
	closeReceived bool
	closeTimer    *time.Timer
	pendingClose  chan error

	closeErrMu sync.Mutex
	closeErr   error

	finishOnce sync.Once

	// Only for the purpose of minimizing memory allocations (safely),
	// not for state management or memory sharing of any kind.
	closeBuf [maxControlPayload]byte
}

// Message carries WebSocket data delivered from one or more
// (defragmented) data frames, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
type Message struct {
	Opcode Opcode
	Data   []byte
}

// internalMessage synchronizes concurrent calls to [Conn.writeFrame]:
// the single writer goroutine is the mailbox that serializes Send,
// Ping, Pong, and Close against each other and against one another.
type internalMessage struct {
	Opcode    Opcode
	Data      []byte
	CloseCode *StatusCode
	err       chan<- error
}

// Events holds the callback-mode handler functions described in
// spec.md §6. All fields are optional; a nil handler is simply not
// invoked. Events is ignored entirely when a [Conn] is constructed
// with [WithAsyncIterator].
type Events struct {
	OnOpen    func(c *Conn)
	OnMessage func(msg Message)
	OnPing    func(payload []byte)
	OnPong    func(payload []byte)
	OnClose   func(code StatusCode, reason string)
	OnFailure func(err error)
}

// ID returns a short, URL-safe identifier for this connection, stable
// for its lifetime, useful for correlating its log lines.
func (c *Conn) ID() string {
	return c.id
}

// IsOpen reports whether the connection is currently usable for Send,
// Ping, and Pong.
func (c *Conn) IsOpen() bool {
	return connState(c.state.Load()) == stateOpen
}

// IsClosed reports whether the connection has reached its terminal state.
func (c *Conn) IsClosed() bool {
	return connState(c.state.Load()) == stateClosed
}

// IsClosing reports whether a closing handshake is in progress.
func (c *Conn) IsClosing() bool {
	return connState(c.state.Load()) == stateClosing
}

// CloseError returns the terminal reason the connection ended with
// (clean or aborted), or nil while the connection is still active.
func (c *Conn) CloseError() error {
	c.closeErrMu.Lock()
	defer c.closeErrMu.Unlock()
	return c.closeErr
}

func (c *Conn) setCloseError(err error) {
	c.closeErrMu.Lock()
	defer c.closeErrMu.Unlock()
	if c.closeErr == nil {
		c.closeErr = err
	}
}

func (c *Conn) setState(s connState) {
	c.state.Store(int32(s))
}

// compareAndSwapState performs the atomic transition old -> new, used by
// [Conn.Close] to ensure only one caller wins the Open -> Closing edge.
func (c *Conn) compareAndSwapState(old, next connState) bool {
	return c.state.CompareAndSwap(int32(old), int32(next))
}

func (c *Conn) getState() connState {
	return connState(c.state.Load())
}

// IncomingMessages returns the connection's channel that publishes data
// [Message]s as they are received from the server. This is the
// async-pull delivery mode of spec.md §4.5.3; it is only populated when
// the connection was constructed with [WithAsyncIterator]. The channel
// is closed once the connection reaches the Closed state; callers
// should inspect [Conn.CloseError] to distinguish a clean close (wraps
// (code, reason)) from an abort.
func (c *Conn) IncomingMessages() <-chan Message {
	return c.reader
}

// newConnID generates the short connection identifier exposed by [Conn.ID].
func newConnID() string {
	return idgen.New()
}

// ctxOrTimeout applies the connection's configured handshake timeout to
// ctx if ctx doesn't already carry a deadline of its own (an existing
// deadline is kept as is, even if it's later than d), per spec.md
// §4.5's "open-timer (default 15s)".
func ctxOrTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
