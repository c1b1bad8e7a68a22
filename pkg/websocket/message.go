package websocket

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"unicode/utf8"
)

// readLoop is the connection's single inbound goroutine: it feeds bytes
// from the transport into the [byteQueue], drives the [decoder] one
// frame at a time, validates and dispatches each frame, and reassembles
// fragmented data messages. It runs until the connection reaches the
// Closed state, per spec.md §4.5's read side of the lifecycle.
//
// It is based on the teacher's readMessage/readMessages loop, rebuilt
// around the incremental decoder instead of a blocking [bufio.Reader].
//
// readLoop is the only goroutine that ever sends on c.reader, so it is
// also the one that closes it, in a defer after its last send: [Conn.finish]
// can run concurrently on another goroutine (the close-timer or
// [Conn.writeLoop]'s abort), and closing c.reader there instead would
// race against a send still in flight here and panic.
func (c *Conn) readLoop() {
	dec := newDecoder(c.maxPayload)
	reassembling := opcodeContinuation
	var msg bytes.Buffer

	readBuf := make([]byte, 32*1024)

	defer func() {
		if c.async {
			close(c.reader)
		}
	}()

	for {
		for {
			select {
			case <-c.done:
				return
			default:
			}

			res, err := dec.push(c.queue)
			if err != nil {
				c.abort(newError(KindProtocol, "invalid WebSocket frame", err), StatusProtocolError)
				return
			}
			if res == needMore {
				break
			}

			h := dec.header()
			if code, reason, verr := checkFrameHeader(h, reassembling); verr != nil {
				c.abort(newError(KindProtocol, reason, verr), code)
				return
			}

			if !c.dispatchFrame(h, dec.payload, &reassembling, &msg) {
				return
			}

			dec = newDecoder(c.maxPayload)
		}

		n, err := c.transport.Read(readBuf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, readBuf[:n])
			c.queue.append(chunk)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.abort(newError(KindTransport, "WebSocket transport closed unexpectedly", io.ErrUnexpectedEOF), StatusClosedAbnormally)
				return
			}
			c.abort(newError(KindTransport, "WebSocket transport read failed", err), StatusClosedAbnormally)
			return
		}
	}
}

// dispatchFrame handles one fully-decoded frame. It returns false when
// the caller's read loop should stop, which happens after a Close frame
// has been processed or after the frame caused the connection to abort.
func (c *Conn) dispatchFrame(h frameHeader, payload []byte, reassembling *Opcode, msg *bytes.Buffer) bool {
	switch h.opcode {
	case opcodeContinuation, OpcodeText, OpcodeBinary:
		if h.opcode != opcodeContinuation {
			*reassembling = h.opcode
		}
		if len(payload) > 0 {
			msg.Write(payload)
		}
		if !h.fin {
			return true
		}

		op := *reassembling
		data := append([]byte(nil), msg.Bytes()...)
		msg.Reset()
		*reassembling = opcodeContinuation

		// "When an endpoint is to interpret a byte stream as UTF-8 but
		// finds that the byte stream is not, in fact, a valid UTF-8
		// stream, that endpoint MUST _Fail the WebSocket Connection_".
		if op == OpcodeText && !utf8.Valid(data) {
			c.abort(newError(KindProtocol, "invalid UTF-8 in WebSocket text message", nil), StatusInvalidData)
			return false
		}

		if c.metrics != nil {
			c.metrics.RecordFrame(c.id, op.String(), len(data))
		}
		c.deliverMessage(Message{Opcode: op, Data: data})
		return true

	case opcodeClose:
		c.closeSentMu.Lock()
		c.closeReceived = true
		c.closeSentMu.Unlock()

		status, reason := parseClosePayload(payload)
		if status != StatusNotReceived {
			if verr := validateCloseCode(status); verr != nil {
				status, reason = StatusProtocolError, verr.Error()
			}
		}
		c.dispatchClose(status, reason)
		return false

	case opcodePing:
		if c.metrics != nil {
			c.metrics.RecordFrame(c.id, "ping", len(payload))
		}
		if !c.async && c.events.OnPing != nil {
			c.events.OnPing(payload)
		}
		if c.autoPong {
			if err := <-c.sendControlFrame(opcodePong, payload, nil); err != nil {
				c.logger.Err(err).Msg("failed to send WebSocket pong control frame")
			}
		}
		return true

	case opcodePong:
		if c.metrics != nil {
			c.metrics.RecordFrame(c.id, "pong", len(payload))
		}
		if !c.async && c.events.OnPong != nil {
			c.events.OnPong(payload)
		}
		return true

	default:
		return true
	}
}

// dispatchClose reacts to a Close frame received from the server,
// completing the closing handshake per
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.1.5: if this
// connection didn't already send its own Close frame, it echoes one
// back before finishing.
func (c *Conn) dispatchClose(status StatusCode, reason string) {
	if reason == "" {
		reason = defaultCloseReason
	}

	c.closeSentMu.Lock()
	weInitiated := c.closeSent
	c.closeSentMu.Unlock()

	if !weInitiated {
		c.sendCloseControlFrame(status, reason)
	}

	c.finish(status, reason, nil)
}

// deliverMessage routes a completed data [Message] to whichever
// delivery mode this connection was configured with, per spec.md
// §4.5.3.
func (c *Conn) deliverMessage(msg Message) {
	if c.async {
		select {
		case c.reader <- msg:
		case <-c.done:
		}
		return
	}
	if c.events.OnMessage != nil {
		c.events.OnMessage(msg)
	}
}

// writeLoop is the connection's single outbound goroutine: it serializes
// every Send, Ping, Pong, and Close control frame through one channel,
// so concurrent callers never interleave partial frames on the wire.
func (c *Conn) writeLoop() {
	for {
		select {
		case im := <-c.writer:
			err := c.writeFrame(im.Opcode, im.Data, im.CloseCode)
			if im.err != nil {
				im.err <- err
			}
			if err != nil {
				c.abort(newError(KindTransport, "WebSocket frame write failed", err), StatusClosedAbnormally)
				return
			}
		case <-c.done:
			return
		}
	}
}

// writeFrame encodes and writes a single frame to the transport, using
// [crypto/rand] as the masking key source required by RFC 6455 §5.3.
func (c *Conn) writeFrame(op Opcode, payload []byte, closeCode *StatusCode) error {
	frame, err := encodeFrame(op, payload, closeCode, rand.Reader)
	if err != nil {
		return err
	}
	_, err = c.transport.Write(frame)
	return err
}

// sendControlFrame enqueues a control frame (Ping, Pong, or Close) on
// the write loop's mailbox. Use this instead of calling [Conn.writeFrame]
// directly, so concurrent writers stay serialized.
func (c *Conn) sendControlFrame(op Opcode, payload []byte, closeCode *StatusCode) <-chan error {
	errc := make(chan error, 1)
	select {
	case c.writer <- internalMessage{Opcode: op, Data: payload, CloseCode: closeCode, err: errc}:
	case <-c.done:
		errc <- ErrNotOpen
	}
	return errc
}

// Send transmits a data message (text or binary) to the server. The
// returned channel is resolved once the frame has been written, or with
// [ErrNotOpen] if the connection isn't currently open.
func (c *Conn) Send(op Opcode, data []byte) <-chan error {
	if op != OpcodeText && op != OpcodeBinary {
		errc := make(chan error, 1)
		errc <- newError(KindLifecycle, "Send: opcode must be text or binary", nil)
		return errc
	}
	if !c.IsOpen() {
		errc := make(chan error, 1)
		errc <- ErrNotOpen
		return errc
	}

	errc := make(chan error, 1)
	select {
	case c.writer <- internalMessage{Opcode: op, Data: data, err: errc}:
	case <-c.done:
		errc <- ErrNotOpen
	}
	return errc
}

// SendTextMessage sends a UTF-8 text message to the server, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
func (c *Conn) SendTextMessage(data []byte) <-chan error {
	return c.Send(OpcodeText, data)
}

// SendBinaryMessage sends a binary message to the server, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
func (c *Conn) SendBinaryMessage(data []byte) <-chan error {
	return c.Send(OpcodeBinary, data)
}

// Ping sends a Ping control frame carrying payload (at most 125 bytes),
// per https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.2.
func (c *Conn) Ping(payload []byte) <-chan error {
	if !c.IsOpen() {
		errc := make(chan error, 1)
		errc <- ErrNotOpen
		return errc
	}
	return c.sendControlFrame(opcodePing, payload, nil)
}

// Pong sends an unsolicited Pong control frame, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.3. Pongs
// answering a received Ping are sent automatically; see [WithAutoPong].
func (c *Conn) Pong(payload []byte) <-chan error {
	if !c.IsOpen() {
		errc := make(chan error, 1)
		errc <- ErrNotOpen
		return errc
	}
	return c.sendControlFrame(opcodePong, payload, nil)
}

// finish performs the connection's terminal Closed-state transition
// exactly once, whether reached by a clean closing handshake or by
// [Conn.abort]. abortErr is nil for a clean close. An abnormal
// termination dispatches both OnClose and OnFailure; a clean close
// dispatches only OnClose.
func (c *Conn) finish(status StatusCode, reason string, abortErr error) {
	c.finishOnce.Do(func() {
		if c.closeTimer != nil {
			c.closeTimer.Stop()
		}
		c.setState(stateClosed)

		var finalErr error
		if abortErr != nil {
			finalErr = abortErr
		} else {
			finalErr = newCloseError(status, reason)
		}
		c.setCloseError(finalErr)

		if c.metrics != nil {
			c.metrics.RecordClose(c.id, int(status), reason)
		}

		_ = c.transport.Close()
		close(c.done)

		if abortErr != nil {
			c.pendingClose <- abortErr
			if !c.async {
				if c.events.OnClose != nil {
					c.events.OnClose(status, reason)
				}
				if c.events.OnFailure != nil {
					c.events.OnFailure(abortErr)
				}
			}
		} else {
			c.pendingClose <- nil
			if !c.async && c.events.OnClose != nil {
				c.events.OnClose(status, reason)
			}
		}
	})
}

// abort fails the connection immediately: it records err as the
// terminal [Conn.CloseError] and tears down the transport, without
// attempting a graceful closing handshake. Safe to call concurrently
// and more than once; only the first call has any effect.
func (c *Conn) abort(err *Error, code StatusCode) {
	c.logger.Err(err).Str("abort_code", code.String()).Msg("aborting WebSocket connection")
	c.finish(code, err.Error(), err)
}
