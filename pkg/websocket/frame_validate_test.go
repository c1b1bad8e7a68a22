package websocket

import (
	"bytes"
	"testing"
)

func TestCheckFrameHeader(t *testing.T) {
	tests := []struct {
		name    string
		h       frameHeader
		msgType Opcode
		wantErr bool
	}{
		{
			name:    "valid_unfragmented_text",
			h:       frameHeader{fin: true, opcode: OpcodeText},
			msgType: opcodeContinuation,
		},
		{
			name:    "valid_continuation",
			h:       frameHeader{fin: true, opcode: opcodeContinuation},
			msgType: OpcodeText,
		},
		{
			name:    "reserved_bit_set",
			h:       frameHeader{fin: true, opcode: OpcodeText, rsv: [3]bool{true, false, false}},
			msgType: opcodeContinuation,
			wantErr: true,
		},
		{
			name:    "unknown_reserved_opcode",
			h:       frameHeader{fin: true, opcode: Opcode(3)},
			msgType: opcodeContinuation,
			wantErr: true,
		},
		{
			name:    "opcode_above_pong",
			h:       frameHeader{fin: true, opcode: Opcode(11)},
			msgType: opcodeContinuation,
			wantErr: true,
		},
		{
			name:    "continuation_with_nothing_to_continue",
			h:       frameHeader{fin: true, opcode: opcodeContinuation},
			msgType: opcodeContinuation,
			wantErr: true,
		},
		{
			name:    "data_frame_interrupts_fragmentation",
			h:       frameHeader{fin: true, opcode: OpcodeBinary},
			msgType: OpcodeText,
			wantErr: true,
		},
		{
			name:    "control_frame_too_large",
			h:       frameHeader{fin: true, opcode: opcodePing, payloadLength: 200},
			msgType: opcodeContinuation,
			wantErr: true,
		},
		{
			name:    "fragmented_control_frame",
			h:       frameHeader{fin: false, opcode: opcodePing},
			msgType: opcodeContinuation,
			wantErr: true,
		},
		{
			name:    "control_frame_mid_fragmentation_is_allowed",
			h:       frameHeader{fin: true, opcode: opcodePing},
			msgType: OpcodeText,
		},
		{
			name:    "masked_server_frame",
			h:       frameHeader{fin: true, opcode: OpcodeText, masked: true},
			msgType: opcodeContinuation,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := checkFrameHeader(tt.h, tt.msgType)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkFrameHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestCheckFrameHeaderAgainstDecodedFrame confirms the decoder and the
// validator agree on a real wire-encoded frame's header fields.
func TestCheckFrameHeaderAgainstDecodedFrame(t *testing.T) {
	frame := buildServerFrame(true, OpcodeText, []byte("ok"))
	q := &byteQueue{}
	q.append(frame)

	d := newDecoder(0)
	if res, err := d.push(q); err != nil || res != frameDone {
		t.Fatalf("push() = (%v, %v)", res, err)
	}

	if _, _, err := checkFrameHeader(d.header(), opcodeContinuation); err != nil {
		t.Errorf("checkFrameHeader() error = %v", err)
	}
	if !bytes.Equal(d.payload, []byte("ok")) {
		t.Errorf("payload = %q, want %q", d.payload, "ok")
	}
}
