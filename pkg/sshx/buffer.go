package sshx

import (
	"bytes"
	"io"
	"sync"
)

// streamBuffer decouples a remote output stream from its consumer. A
// pump goroutine appends channel data as it arrives, so the consumer
// can check readiness without blocking and the remote side is never
// backpressured by an idle reader.
type streamBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool

	// readable carries a token whenever the buffer state changed.
	// Receivers must re-check the state after waking up.
	readable chan struct{}
}

func newStreamBuffer() *streamBuffer {
	return &streamBuffer{
		readable: make(chan struct{}, 1),
	}
}

// pump copies the stream into the buffer until it ends.
func (b *streamBuffer) pump(r io.Reader) {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			b.mu.Lock()
			b.buf.Write(chunk[:n])
			b.mu.Unlock()
			b.signal()
		}
		if err != nil {
			b.close()
			return
		}
	}
}

func (b *streamBuffer) signal() {
	select {
	case b.readable <- struct{}{}:
	default:
	}
}

func (b *streamBuffer) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.signal()
}

// ready reports whether a read would not block. A closed stream is
// ready so that the consumer can observe its end.
func (b *streamBuffer) ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len() > 0 || b.closed
}

// Read returns buffered data, blocking until some arrives or the
// stream ends.
func (b *streamBuffer) Read(p []byte) (int, error) {
	for {
		b.mu.Lock()
		if b.buf.Len() > 0 {
			n, _ := b.buf.Read(p)
			b.mu.Unlock()
			return n, nil
		}
		if b.closed {
			b.mu.Unlock()
			return 0, io.EOF
		}
		b.mu.Unlock()

		<-b.readable
	}
}
