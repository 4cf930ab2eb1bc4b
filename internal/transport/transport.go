package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	// ErrOpen is returned when a transport cannot be opened. The concrete
	// cause is wrapped.
	ErrOpen = errors.New("transport open failed")
	// ErrWriteTimeout reports a record write that did not finish within its
	// bound. The write itself may still complete later.
	ErrWriteTimeout = errors.New("transport write timed out")
	// ErrClosed is returned for writes on a closed transport.
	ErrClosed = errors.New("transport closed")
)

// Transport is a byte-oriented sink for framed records.
type Transport interface {
	// WriteRecord hands one record to the link and waits for it until ctx is
	// done. A write still in flight when ctx expires finishes in the
	// background and ErrWriteTimeout is returned.
	WriteRecord(ctx context.Context, record []byte) error
	Close() error
}

// Opener opens a Transport. The caller owns the result until it calls Close.
type Opener func(ctx context.Context) (Transport, error)

// Drainer is implemented by writers that can block until buffered output has
// left the device.
type Drainer interface {
	Drain() error
}

type writeRequest struct {
	record []byte
	result chan error
}

// StreamTransport serializes records onto an io.WriteCloser from a single
// writer goroutine, so that a slow link never blocks the caller beyond its
// context and at most one write is in flight.
type StreamTransport struct {
	w io.WriteCloser

	requests chan writeRequest
	done     chan struct{}

	mu     sync.Mutex
	closed bool
	busy   bool
}

// NewStreamTransport wraps w and starts its writer goroutine.
func NewStreamTransport(w io.WriteCloser) *StreamTransport {
	t := &StreamTransport{
		w:        w,
		requests: make(chan writeRequest),
		done:     make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *StreamTransport) loop() {
	defer close(t.done)
	for req := range t.requests {
		err := writeFull(t.w, req.record)
		if err == nil {
			if d, ok := t.w.(Drainer); ok {
				err = d.Drain()
			}
		}
		t.mu.Lock()
		t.busy = false
		t.mu.Unlock()
		// Buffered: nobody may be waiting any more.
		req.result <- err
	}
}

func writeFull(w io.Writer, record []byte) error {
	for len(record) > 0 {
		n, err := w.Write(record)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		record = record[n:]
	}
	return nil
}

// WriteRecord implements Transport. While a previous write is still pending
// the new record is rejected with ErrWriteTimeout instead of queueing behind it.
func (t *StreamTransport) WriteRecord(ctx context.Context, record []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.busy {
		t.mu.Unlock()
		return fmt.Errorf("%w: previous record still pending", ErrWriteTimeout)
	}
	t.busy = true
	req := writeRequest{
		record: append([]byte(nil), record...),
		result: make(chan error, 1),
	}
	// The writer goroutine is idle, so this send is immediate.
	t.requests <- req
	t.mu.Unlock()

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrWriteTimeout, ctx.Err())
	}
}

// Close stops accepting records and closes the underlying writer. It does
// not wait for a pending write; closing the device unblocks it.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.requests)
	t.mu.Unlock()

	return t.w.Close()
}

// Done is closed once the writer goroutine has exited.
func (t *StreamTransport) Done() <-chan struct{} {
	return t.done
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// StdoutOpener returns an Opener writing records to standard output, for dry
// runs without hardware.
func StdoutOpener() Opener {
	return WriterOpener(os.Stdout)
}

// WriterOpener returns an Opener over w. Closing the transport leaves w open.
func WriterOpener(w io.Writer) Opener {
	return func(context.Context) (Transport, error) {
		if w == nil {
			return nil, fmt.Errorf("%w: nil writer", ErrOpen)
		}
		return NewStreamTransport(nopCloser{w}), nil
	}
}
