package websocket

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsocket/opsocket/internal/logger"
	"github.com/opsocket/opsocket/internal/metrics"
)

// DialOpt configures a [Conn] before [Dial] performs its handshake.
type DialOpt func(*Conn)

var defaultClient = adjustHTTPClient(*http.DefaultClient)

// WithHTTPClient lets callers of [Dial] specify a custom [http.Client]
// to use for the WebSocket handshake, instead of [http.DefaultClient].
//
// Do not specify a custom timeout in the HTTP client! This will interfere
// with the long-lived WebSocket connection beyond the scope of its
// initial handshake. Instead, use [WithTimeout] or a deadline on the
// [context.Context] passed to [Dial].
func WithHTTPClient(hc *http.Client) DialOpt {
	return func(c *Conn) {
		c.client = hc
	}
}

// WithHTTPHeader lets callers of [Dial] add a single HTTP header to the
// WebSocket handshake's HTTP request. Use [WithHTTPHeaders] to specify
// multiple ones.
func WithHTTPHeader(key, value string) DialOpt {
	return func(c *Conn) {
		c.headers.Add(key, value)
	}
}

// WithHTTPHeaders lets callers of [Dial] add multiple HTTP headers to the
// WebSocket handshake's HTTP request, instead of calling [WithHTTPHeader]
// multiple times.
func WithHTTPHeaders(hs http.Header) DialOpt {
	return func(c *Conn) {
		c.headers = hs.Clone()
	}
}

// WithBearerToken attaches an "Authorization: Bearer <token>" header to
// the handshake request, e.g. a token minted by internal/authtok.
func WithBearerToken(token string) DialOpt {
	return func(c *Conn) {
		c.bearerToken = token
	}
}

// WithTimeout overrides the default 15-second handshake budget
// (spec.md §6's "timeout" configuration option).
func WithTimeout(d time.Duration) DialOpt {
	return func(c *Conn) {
		c.timeout = d
	}
}

// WithAsyncIterator selects the async-pull delivery mode
// (spec.md §4.5.3): data frames are published on the channel returned
// by [Conn.IncomingMessages] instead of invoking [Events.OnMessage].
func WithAsyncIterator() DialOpt {
	return func(c *Conn) {
		c.async = true
	}
}

// WithEvents registers the callback-mode event handlers
// (spec.md §6's "events" configuration option).
func WithEvents(e Events) DialOpt {
	return func(c *Conn) {
		c.events = e
	}
}

// WithAutoPong controls whether Ping control frames are answered
// automatically with a Pong carrying the same payload. Defaults to
// true, per spec.md §9's Design Notes.
func WithAutoPong(enabled bool) DialOpt {
	return func(c *Conn) {
		c.autoPong = enabled
	}
}

// WithMaxPayloadBytes bounds the payload length this connection will
// accept from the server, protecting memory against the 64-bit length
// field. A value of 0 disables the cap. Defaults to 64 MiB.
func WithMaxPayloadBytes(n uint64) DialOpt {
	return func(c *Conn) {
		c.maxPayload = n
	}
}

// WithMetrics attaches a [metrics.Recorder] that logs this connection's
// open/close lifecycle and per-frame counters to a CSV file.
func WithMetrics(r *metrics.Recorder) DialOpt {
	return func(c *Conn) {
		c.metrics = r
	}
}

// WithLogger overrides the logger this connection uses, instead of the
// one attached to the [context.Context] passed to [Dial].
func WithLogger(l zerolog.Logger) DialOpt {
	return func(c *Conn) {
		c.logger = l
		c.loggerSet = true
	}
}

// withNonceGenerator overrides the handshake's nonce source, which makes
// the expected handshake accept value deterministic. Nothing in this
// package calls it; its tests set the nonce source via withTestNonceGen.
func withNonceGenerator(r io.Reader) DialOpt {
	return func(c *Conn) {
		c.nonceGen = r
	}
}

const defaultMaxPayloadBytes = 64 << 20 // 64 MiB.

// newConn applies opts over a freshly-initialized, Closed [Conn].
func newConn(opts ...DialOpt) *Conn {
	c := &Conn{
		id:         newConnID(),
		headers:    http.Header{},
		nonceGen:   rand.Reader,
		timeout:    defaultHandshakeTimeout,
		maxPayload: defaultMaxPayloadBytes,
		autoPong:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = defaultClient
	} else {
		c.client = adjustHTTPClient(*c.client)
	}
	return c
}

// Dial performs a [WebSocket handshake] to establish a connection to
// the given URL ("ws://..." or "wss://"), and starts the connection's
// read and write loops on success.
//
// [WebSocket handshake]: https://datatracker.ietf.org/doc/html/rfc6455#section-4.1
func Dial(ctx context.Context, wsURL string, opts ...DialOpt) (*Conn, error) {
	c := newConn(opts...)
	if err := c.open(ctx, wsURL); err != nil {
		return nil, err
	}
	return c, nil
}

// open drives the Closed -> Handshaking -> Open transition of
// spec.md §4.5's state table. It fails with [KindLifecycle] if the
// connection isn't Closed.
func (c *Conn) open(ctx context.Context, wsURL string) error {
	if s := c.getState(); s != stateClosed {
		return newError(KindLifecycle, fmt.Sprintf("Open() called while connection is %s, want closed", s), nil)
	}
	if !c.loggerSet {
		c.logger = logger.FromContext(ctx).With().Str("conn_id", c.id).Str("component", "websocket").Logger()
	}
	c.setState(stateHandshaking)

	ctx, cancel := ctxOrTimeout(ctx, c.timeout)
	defer cancel()

	nonce, err := generateNonce(c.nonceGen)
	if err != nil {
		c.setState(stateClosed)
		return newError(KindHandshake, "failed to generate nonce for WebSocket handshake", err)
	}

	req, err := c.handshakeRequest(ctx, wsURL, nonce)
	if err != nil {
		c.setState(stateClosed)
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.setState(stateClosed)
		if ctx.Err() != nil {
			return newError(KindHandshake, "WebSocket handshake timed out", ctx.Err())
		}
		return newError(KindHandshake, "failed to send WebSocket handshake request", err)
	}
	if err := checkHandshakeResponse(resp, nonce); err != nil {
		_ = resp.Body.Close()
		c.setState(stateClosed)
		return err
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		c.setState(stateClosed)
		return newError(KindHandshake, fmt.Sprintf("WebSocket handshake response body type: got %T, want io.ReadWriteCloser", resp.Body), nil)
	}

	c.transport = rwc
	c.queue = &byteQueue{}
	if c.async {
		c.reader = make(chan Message)
	} else {
		c.reader = make(chan Message, 1)
	}
	c.writer = make(chan internalMessage)
	c.done = make(chan struct{})
	c.pendingClose = make(chan error, 1)

	c.setState(stateOpen)
	if c.metrics != nil {
		c.metrics.RecordOpen(c.id)
	}

	go c.readLoop()
	go c.writeLoop()

	c.logger.Debug().Msg("WebSocket connection initialized")
	if !c.async && c.events.OnOpen != nil {
		c.events.OnOpen(c)
	}

	return nil
}

// adjustHTTPClient returns a modified shallow copy of the given [http.Client].
func adjustHTTPClient(c http.Client) *http.Client {
	origCheckRedirect := c.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		switch req.URL.Scheme {
		case "ws":
			req.URL.Scheme = "http"
		case "wss":
			req.URL.Scheme = "https"
		}
		if origCheckRedirect != nil {
			return origCheckRedirect(req, via)
		}
		return nil
	}
	return &c
}
