package websocket

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// buildServerFrame constructs the wire bytes of an unmasked frame, as a
// compliant server would send it (client-bound frames are never masked).
func buildServerFrame(fin bool, opcode Opcode, payload []byte) []byte {
	var buf bytes.Buffer

	b0 := byte(opcode)
	if fin {
		b0 |= bit0
	}
	buf.WriteByte(b0)

	n := len(payload)
	switch {
	case n <= len7bits:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(len16bits)
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(n))
		buf.Write(lenBuf)
	default:
		buf.WriteByte(len64bits)
		lenBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(lenBuf, uint64(n))
		buf.Write(lenBuf)
	}

	buf.Write(payload)
	return buf.Bytes()
}

func TestDecoderSingleChunk(t *testing.T) {
	frame := buildServerFrame(true, OpcodeText, []byte("Hi"))

	q := &byteQueue{}
	q.append(frame)

	d := newDecoder(0)
	res, err := d.push(q)
	if err != nil {
		t.Fatalf("push() error = %v", err)
	}
	if res != frameDone {
		t.Fatalf("push() = %v, want frameDone", res)
	}

	h := d.header()
	if !h.fin || h.opcode != OpcodeText || h.payloadLength != 2 {
		t.Fatalf("header() = %+v, unexpected", h)
	}
	if !bytes.Equal(d.payload, []byte("Hi")) {
		t.Fatalf("payload = %q, want %q", d.payload, "Hi")
	}
}

// TestDecoderByteAtATime feeds one byte of the frame at a time, the
// hardest case for an incremental decoder: every push() but the last
// must report needMore.
func TestDecoderByteAtATime(t *testing.T) {
	frame := buildServerFrame(true, OpcodeBinary, []byte("hello world"))

	q := &byteQueue{}
	d := newDecoder(0)

	var res decodeResult
	var err error
	for i, b := range frame {
		q.append([]byte{b})
		res, err = d.push(q)
		if err != nil {
			t.Fatalf("push() at byte %d: error = %v", i, err)
		}
		if i < len(frame)-1 && res != needMore {
			t.Fatalf("push() at byte %d = %v, want needMore", i, res)
		}
	}

	if res != frameDone {
		t.Fatalf("push() at final byte = %v, want frameDone", res)
	}
	if !bytes.Equal(d.payload, []byte("hello world")) {
		t.Fatalf("payload = %q, want %q", d.payload, "hello world")
	}
}

func TestDecoder16BitLength(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 200)
	frame := buildServerFrame(true, OpcodeBinary, payload)

	q := &byteQueue{}
	q.append(frame)

	d := newDecoder(0)
	res, err := d.push(q)
	if err != nil {
		t.Fatalf("push() error = %v", err)
	}
	if res != frameDone {
		t.Fatalf("push() = %v, want frameDone", res)
	}
	if !bytes.Equal(d.payload, payload) {
		t.Fatalf("payload length = %d, want %d", len(d.payload), len(payload))
	}
}

func TestDecoder64BitLengthHighBitRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(bit0 | byte(OpcodeBinary))
	buf.WriteByte(len64bits)
	lenBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(lenBuf, 1<<63)
	buf.Write(lenBuf)

	q := &byteQueue{}
	q.append(buf.Bytes())

	d := newDecoder(0)
	_, err := d.push(q)
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("push() error = %v, want ErrInvalidLength", err)
	}
}

func TestDecoderMaxPayloadExceeded(t *testing.T) {
	frame := buildServerFrame(true, OpcodeBinary, bytes.Repeat([]byte{'z'}, 10))

	q := &byteQueue{}
	q.append(frame)

	d := newDecoder(5)
	_, err := d.push(q)
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("push() error = %v, want ErrInvalidLength", err)
	}
}

func TestDecoderZeroLengthPayload(t *testing.T) {
	frame := buildServerFrame(true, opcodePing, nil)

	q := &byteQueue{}
	q.append(frame)

	d := newDecoder(0)
	res, err := d.push(q)
	if err != nil {
		t.Fatalf("push() error = %v", err)
	}
	if res != frameDone {
		t.Fatalf("push() = %v, want frameDone", res)
	}
	if len(d.payload) != 0 {
		t.Fatalf("payload length = %d, want 0", len(d.payload))
	}
}

// TestDecoderRestartsAfterFrameDone confirms the pattern [Conn.readLoop]
// relies on: a fresh decoder correctly parses the next frame once the
// queue has been advanced past the previous one.
func TestDecoderRestartsAfterFrameDone(t *testing.T) {
	q := &byteQueue{}
	q.append(buildServerFrame(true, OpcodeText, []byte("one")))
	q.append(buildServerFrame(true, OpcodeText, []byte("two")))

	d1 := newDecoder(0)
	if res, err := d1.push(q); err != nil || res != frameDone {
		t.Fatalf("first push() = (%v, %v)", res, err)
	}
	if !bytes.Equal(d1.payload, []byte("one")) {
		t.Fatalf("first payload = %q, want %q", d1.payload, "one")
	}

	d2 := newDecoder(0)
	if res, err := d2.push(q); err != nil || res != frameDone {
		t.Fatalf("second push() = (%v, %v)", res, err)
	}
	if !bytes.Equal(d2.payload, []byte("two")) {
		t.Fatalf("second payload = %q, want %q", d2.payload, "two")
	}
}
