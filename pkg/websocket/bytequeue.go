package websocket

// byteQueue accumulates byte chunks arriving from the transport and
// exposes random read access across chunk boundaries, which the frame
// decoder needs to peek a header before committing to consume it.
//
// Each [Conn] owns exactly one byteQueue, created in [Dial] and
// discarded when the connection closes. It is not safe for concurrent
// use: it is mutated only by the connection's single inbound read loop.
type byteQueue struct {
	chunks [][]byte
	// head is the number of already-consumed bytes at the front of
	// chunks[0]. Kept separate from slicing chunks[0] directly so that
	// advance(n) for n < len(chunks[0]) is O(1).
	head int
	size int
}

// append retains chunk by reference and adds it to the tail of the queue.
func (q *byteQueue) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	q.chunks = append(q.chunks, chunk)
	q.size += len(chunk)
}

// length reports the number of unread bytes currently queued.
func (q *byteQueue) length() int {
	return q.size
}

// copyInto copies the byte range [srcStart, srcEnd) of the queue's
// logical sequence into dst starting at dstOffset. It does not mutate
// the queue. It returns [ErrOutOfSpace] if dst can't hold the range.
func (q *byteQueue) copyInto(dst []byte, dstOffset, srcStart, srcEnd int) error {
	n := srcEnd - srcStart
	if n < 0 || srcEnd > q.size {
		return ErrOutOfSpace
	}
	if len(dst)-dstOffset < n {
		return ErrOutOfSpace
	}
	if n == 0 {
		return nil
	}

	// Walk the chunk list, skipping bytes before srcStart and copying
	// bytes in [srcStart, srcEnd).
	pos := 0 // logical offset of the start of the current chunk's unread portion
	written := 0
	for i, c := range q.chunks {
		off := 0
		if i == 0 {
			off = q.head
		}
		avail := c[off:]
		chunkStart := pos
		chunkEnd := pos + len(avail)
		pos = chunkEnd

		if chunkEnd <= srcStart {
			continue
		}
		if chunkStart >= srcEnd {
			break
		}

		lo := max(srcStart-chunkStart, 0)
		hi := min(srcEnd-chunkStart, len(avail))
		copy(dst[dstOffset+written:], avail[lo:hi])
		written += hi - lo

		if chunkEnd >= srcEnd {
			break
		}
	}

	return nil
}

// advance discards n bytes from the front of the queue. Precondition:
// n <= q.length().
func (q *byteQueue) advance(n int) {
	if n <= 0 {
		return
	}
	q.size -= n

	for n > 0 && len(q.chunks) > 0 {
		first := q.chunks[0]
		remaining := len(first) - q.head
		if n < remaining {
			q.head += n
			return
		}

		n -= remaining
		q.chunks = q.chunks[1:]
		q.head = 0
	}
}

// take copies out the next n bytes and advances the queue past them.
// Precondition: n <= q.length().
func (q *byteQueue) take(n int) []byte {
	out := make([]byte, n)
	_ = q.copyInto(out, 0, 0, n)
	q.advance(n)
	return out
}
