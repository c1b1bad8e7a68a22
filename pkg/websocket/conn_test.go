package websocket

import (
	"context"
	"testing"
	"time"
)

func TestConnStateQueries(t *testing.T) {
	c := &Conn{}
	c.setState(stateHandshaking)
	if c.IsOpen() || c.IsClosed() || c.IsClosing() {
		t.Fatalf("handshaking state misreported: open=%v closed=%v closing=%v", c.IsOpen(), c.IsClosed(), c.IsClosing())
	}

	c.setState(stateOpen)
	if !c.IsOpen() || c.IsClosed() || c.IsClosing() {
		t.Fatalf("open state misreported: open=%v closed=%v closing=%v", c.IsOpen(), c.IsClosed(), c.IsClosing())
	}

	c.setState(stateClosing)
	if c.IsOpen() || c.IsClosed() || !c.IsClosing() {
		t.Fatalf("closing state misreported: open=%v closed=%v closing=%v", c.IsOpen(), c.IsClosed(), c.IsClosing())
	}

	c.setState(stateClosed)
	if c.IsOpen() || !c.IsClosed() || c.IsClosing() {
		t.Fatalf("closed state misreported: open=%v closed=%v closing=%v", c.IsOpen(), c.IsClosed(), c.IsClosing())
	}
}

func TestCompareAndSwapState(t *testing.T) {
	c := &Conn{}
	c.setState(stateOpen)

	if !c.compareAndSwapState(stateOpen, stateClosing) {
		t.Fatal("compareAndSwapState(open, closing) = false, want true")
	}
	if c.compareAndSwapState(stateOpen, stateClosing) {
		t.Fatal("compareAndSwapState(open, closing) on an already-closing Conn = true, want false")
	}
}

func TestCloseErrorSetOnce(t *testing.T) {
	c := &Conn{}
	first := newError(KindProtocol, "first", nil)
	second := newError(KindTransport, "second", nil)

	c.setCloseError(first)
	c.setCloseError(second)

	if got := c.CloseError(); got != first {
		t.Fatalf("CloseError() = %v, want the first error set", got)
	}
}

func TestNewConnIDIsUnique(t *testing.T) {
	a := newConnID()
	b := newConnID()
	if a == b {
		t.Fatalf("newConnID() returned the same ID twice: %q", a)
	}
	if a == "" {
		t.Fatal("newConnID() returned an empty string")
	}
}

func TestCtxOrTimeoutUsesDefaultWhenNoDeadline(t *testing.T) {
	ctx, cancel := ctxOrTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("ctxOrTimeout() did not apply the fallback deadline")
	}
}

func TestCtxOrTimeoutPreservesExistingDeadline(t *testing.T) {
	parent, parentCancel := context.WithTimeout(context.Background(), time.Hour)
	defer parentCancel()

	ctx, cancel := ctxOrTimeout(parent, 10*time.Millisecond)
	defer cancel()

	want, _ := parent.Deadline()
	got, ok := ctx.Deadline()
	if !ok || !got.Equal(want) {
		t.Fatalf("ctxOrTimeout() deadline = %v, want %v (the parent's)", got, want)
	}
}

func TestConnID(t *testing.T) {
	c := &Conn{id: "abc123"}
	if got := c.ID(); got != "abc123" {
		t.Fatalf("ID() = %q, want %q", got, "abc123")
	}
}
