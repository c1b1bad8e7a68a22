package websocket

import (
	"encoding/binary"
	"strconv"
	"time"
	"unicode/utf8"
)

// StatusCode indicates a reason for the closure of
// an established WebSocket connection, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.4.
//
// See also https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number.
//
// Other status code ranges:
//   - 0-999: not used
//   - 3000-3999: reserved for use by libraries, frameworks, and applications
//   - 4000-4999: reserved for private use and thus can't be registered
type StatusCode uint16

const (
	// The purpose for which the connection was established has been fulfilled.
	StatusNormalClosure StatusCode = iota + 1000
	// An endpoint is "going away", such as a server going
	// down or a browser having navigated away from a page.
	StatusGoingAway
	// An endpoint is terminating the connection due to a protocol error.
	StatusProtocolError
	// An endpoint is terminating the connection because it has received a
	// type of data it cannot accept (e.g., an endpoint that understands
	// only text data MAY send this if it receives a binary message).
	StatusUnsupportedData
	// Reserved. The specific meaning might be defined in the future.
	_
	// Reserved value, MUST NOT be set as a status code in a Close control
	// frame by an endpoint. It is designated for use in applications expecting
	// a status code to indicate that no status code was actually present.
	StatusNotReceived
	// Reserved value, MUST NOT be set as a status code in a Close control
	// frame by an endpoint. It is designated for use in applications expecting
	// a status code to indicate that the connection was closed abnormally,
	// e.g., without sending or receiving a Close control frame.
	StatusClosedAbnormally
	// An endpoint is terminating the connection because it has received data
	// within a message that was not consistent with the type of the message
	// (e.g., non-UTF-8 RFC 3629 data within a text message).
	StatusInvalidData
	// An endpoint is terminating the connection because it has received a message
	// that violates its policy. This is a generic status code that can be returned
	// when there is no other more suitable status code (e.g., 1003 or 1009)
	// or if there is a need to hide specific details about the policy.
	StatusPolicyViolation
	// An endpoint is terminating the connection because it has
	// received a message that is too big for it to process.
	StatusMessageTooBig
	// An endpoint (client) is terminating the connection because it has expected the
	// server to negotiate one or more extensions, but the server didn't return them in
	// the response message of the WebSocket handshake.
	StatusMandatoryExtension
	// A remote endpoint is terminating the connection because it encountered
	// an unexpected condition that prevented it from fulfilling the request.
	StatusInternalError
	// See https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number.
	StatusServiceRestart
	// See https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number.
	StatusTryAgainLater
	// See https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number.
	StatusBadGateway
	// Reserved value, MUST NOT be set as a status code in a Close control frame
	// by an endpoint. It is designated for use in applications expecting a status
	// code to indicate that the connection was closed due to a failure to perform
	// a TLS handshake (e.g., the server certificate can't be verified).
	StatusTLSHandshake
)

// String returns the status code's name, or its number if it's unrecognized.
func (s StatusCode) String() string {
	switch s {
	case StatusNormalClosure:
		return "normal closure"
	case StatusGoingAway:
		return "going away"
	case StatusProtocolError:
		return "protocol error"
	case StatusUnsupportedData:
		return "unsupported data"
	case StatusNotReceived:
		return "status not received"
	case StatusClosedAbnormally:
		return "closed abnormally"
	case StatusInvalidData:
		return "invalid data"
	case StatusPolicyViolation:
		return "policy violation"
	case StatusMessageTooBig:
		return "message too big"
	case StatusMandatoryExtension:
		return "expected extension negotiation"
	case StatusInternalError:
		return "internal error"
	case StatusServiceRestart:
		return "service restart"
	case StatusTryAgainLater:
		return "try again later"
	case StatusBadGateway:
		return "bad gateway"
	case StatusTLSHandshake:
		return "TLS handshake"
	default:
		return strconv.Itoa(int(s))
	}
}

// maxCloseReason is the maximum length of a connection closing reason.
// The difference from [maxControlPayload] is due to the status code.
const maxCloseReason = maxControlPayload - 2

// defaultCloseReason fills in a human-readable description when a peer
// sends a Close frame with no reason text, per spec.md's S5 scenario.
const defaultCloseReason = "The WebSocket Connection was Marked as Idle by the server"

// validateCloseCode implements spec.md §4.5.1: a status code is
// acceptable for an outbound Close iff it's in [1000, 5000), excluding
// the three local-only codes and the two undefined/reserved ranges.
func validateCloseCode(code StatusCode) error {
	c := int(code)
	switch {
	case c < 1000 || c >= 5000:
		return newError(KindProtocol, "close code out of range [1000, 5000)", nil)
	case code == StatusNotReceived, code == StatusClosedAbnormally, c == 1004:
		return newError(KindProtocol, "close code is local-only and must not be sent on the wire", nil)
	case c >= 1016 && c < 2000:
		return newError(KindProtocol, "close code is undefined in RFC 6455", nil)
	case c >= 2000 && c < 3000:
		return newError(KindProtocol, "close code is reserved for WebSocket extensions", nil)
	default:
		return nil
	}
}

// parseClosePayload extracts the [StatusCode] and the optional UTF-8
// reason from an incoming connection-close control frame, per
// spec.md §4.5.2: code = 1005 ("not received") if the payload is too
// short to carry one.
func parseClosePayload(payload []byte) (status StatusCode, reason string) {
	switch len(payload) {
	case 0, 1:
		return StatusNotReceived, ""
	default:
		status = StatusCode(binary.BigEndian.Uint16(payload))
	}

	if len(payload) > 2 {
		r := payload[2:]
		if !utf8.Valid(r) {
			return StatusInvalidData, ""
		}
		reason = string(r)
	}

	return status, reason
}

// sendCloseControlFrame either initiates or responds to a WebSocket
// closing handshake. It can be called from two places:
// [Conn.dispatchClose] and [Conn.Close]. It is idempotent: calls after
// the first are no-ops, per RFC 6455's "endpoint MUST send a Close
// frame in response" exactly once.
//
// It is based on:
//   - Control frames - close: https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.1
//   - Closing the connection: https://datatracker.ietf.org/doc/html/rfc6455#section-7
func (c *Conn) sendCloseControlFrame(status StatusCode, reason string) {
	c.closeSentMu.Lock()
	alreadySent := c.closeSent
	c.closeSent = true
	c.closeSentMu.Unlock()

	if alreadySent {
		return
	}

	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}

	binary.BigEndian.PutUint16(c.closeBuf[:2], uint16(status))
	n := 2
	if len(reason) > 0 {
		n += copy(c.closeBuf[2:], reason)
	}

	code := status
	l := c.logger.With().Str("close_status", status.String()).Str("close_reason", reason).Logger()
	if err := <-c.sendControlFrame(opcodeClose, c.closeBuf[:n], &code); err != nil {
		l.Err(err).Msg("failed to send WebSocket close control frame")
	} else {
		l.Trace().Msg("sent WebSocket close control frame")
	}
}

// Close initiates the [WebSocket closing handshake] to gracefully end
// an open connection, per spec.md §4.5's Open -> Closing transition. It
// returns a channel resolved with nil once the server acknowledges the
// close, or with an error if the close-timer fires first (spec.md §5's
// 5-second cancellation) or the connection aborts for another reason.
// Calling Close on a connection that isn't Open is a no-op that returns
// a channel already resolved with an error.
//
// [WebSocket closing handshake]: https://datatracker.ietf.org/doc/html/rfc6455#section-7.1.2
func (c *Conn) Close(code StatusCode, reason string) <-chan error {
	if err := validateCloseCode(code); err != nil {
		ch := make(chan error, 1)
		ch <- err
		return ch
	}

	if !c.compareAndSwapState(stateOpen, stateClosing) {
		ch := make(chan error, 1)
		ch <- newError(KindLifecycle, "Close() called while connection is not open", nil)
		return ch
	}

	c.closeTimer = time.AfterFunc(closeHandshakeTimeout, func() {
		c.abort(newError(KindTransport, "closing handshake timed out", nil), StatusClosedAbnormally)
	})

	c.sendCloseControlFrame(code, reason)
	return c.pendingClose
}
