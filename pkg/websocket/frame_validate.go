package websocket

import "fmt"

// checkFrameHeader checks whether an incoming frame header is valid
// given the opcode of the data message currently being reassembled (or
// opcodeContinuation if none is in progress). It returns a short,
// human-readable reason alongside a close status code, both suitable
// for [Conn.abort], when the frame forces the connection to fail.
//
// It is based on:
//   - Overview: https://datatracker.ietf.org/doc/html/rfc6455#section-5.1
//   - Base framing protocol: https://datatracker.ietf.org/doc/html/rfc6455#section-5.2
//   - Fragmentation: https://datatracker.ietf.org/doc/html/rfc6455#section-5.4
//   - Control frames: https://datatracker.ietf.org/doc/html/rfc6455#section-5.5
func checkFrameHeader(h frameHeader, msgType Opcode) (StatusCode, string, error) {
	// "Reserved bits MUST be 0 unless an extension is negotiated that
	// defines meanings for non-zero values."
	if h.rsv[0] || h.rsv[1] || h.rsv[2] {
		reason := "invalid reserved bits"
		return StatusProtocolError, reason, fmt.Errorf("WebSocket server sent frame with %s", reason)
	}

	// "If an unknown opcode is received, the receiving
	// endpoint MUST _Fail the WebSocket Connection_".
	if (h.opcode > OpcodeBinary && h.opcode < opcodeClose) || h.opcode > opcodePong {
		reason := fmt.Sprintf("unknown opcode %d", h.opcode)
		return StatusProtocolError, reason, fmt.Errorf("WebSocket server sent frame with %s", reason)
	}

	// "A fragmented message consists of a single frame with the FIN bit
	// clear and an opcode other than 0, followed by zero or more frames
	// with the FIN bit clear and the opcode set to 0, and terminated by
	// a single frame with the FIN bit set and an opcode of 0".
	if h.opcode == opcodeContinuation && msgType == opcodeContinuation {
		reason := "continuation frame with nothing to continue"
		return StatusProtocolError, reason, fmt.Errorf("WebSocket server sent %s", reason)
	}
	if (h.opcode == OpcodeText || h.opcode == OpcodeBinary) && msgType != opcodeContinuation {
		reason := "data frame interrupts a fragmented message"
		return StatusProtocolError, reason, fmt.Errorf("WebSocket server sent %s", reason)
	}

	// "All control frames MUST have a payload length of
	// 125 bytes or less and MUST NOT be fragmented".
	if h.opcode.isControl() {
		if h.payloadLength > maxControlPayload {
			reason := "control frame payload too large"
			return StatusProtocolError, reason, fmt.Errorf("WebSocket control frame (opcode %s) too large: %d bytes", h.opcode, h.payloadLength)
		}
		if !h.fin {
			reason := "control frame must not be fragmented"
			return StatusProtocolError, reason, fmt.Errorf("WebSocket control frame (opcode %s) must not be fragmented", h.opcode)
		}
	}

	// "A server MUST NOT mask any frames that it sends to the client.
	// A client MUST close a connection if it detects a masked frame".
	if h.masked {
		reason := "server payload must not be masked"
		return StatusProtocolError, reason, fmt.Errorf("WebSocket server masked the payload data")
	}

	return 0, "", nil
}
