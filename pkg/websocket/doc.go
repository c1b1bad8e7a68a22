// Package websocket is a client-only implementation of the WebSocket
// protocol ([RFC 6455]).
//
// It is built around three independent layers: a byte queue that
// accumulates whatever arrives from the transport regardless of chunk
// boundaries, an incremental frame decoder that advances as far as the
// queue currently allows and reports needMore instead of blocking, and a
// connection state machine that drives the opening handshake, frame
// dispatch (including fragmentation reassembly and ping/pong), and the
// closing handshake.
//
// A [Conn] delivers incoming data messages in one of two mutually
// exclusive modes, chosen at [Dial] time: callback mode via [Events], or
// async-pull mode via [Conn.IncomingMessages] ([WithAsyncIterator]).
// There is no automatic reconnection: once a [Conn] reaches its Closed
// state, callers dial a new one.
//
// Note: WebSocket [extensions] and [subprotocols] are not supported yet.
//
// [RFC 6455]: https://datatracker.ietf.org/doc/html/rfc6455
// [extensions]: https://www.iana.org/assignments/websocket/websocket.xhtml#extension-name
// [subprotocols]: https://www.iana.org/assignments/websocket/websocket.xhtml#subprotocol-name
package websocket
