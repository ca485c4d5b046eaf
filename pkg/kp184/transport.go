// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Transport owns one connection to the device and provides the
// write-then-read transaction the half-duplex protocol requires. The KP184
// cannot handle overlapping requests, so Transact serializes internally; the
// session layer additionally never issues more than one at a time.
//
// A background reader goroutine drains the connection into a byte channel.
// Transact consumes from that channel against a deadline, so a response that
// straggles in after a timeout is discarded at the start of the next
// transaction instead of corrupting it.
type Transport struct {
	conn io.ReadWriteCloser
	rx   chan byte

	mu sync.Mutex // serializes transactions

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// OpenPort opens the named serial port with the line parameters the device
// mandates: 9600 baud, 8 data bits, no parity, one stop bit, no flow control.
func OpenPort(portName string) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, &ConnectionError{Port: portName, Err: err}
	}
	return NewTransport(port), nil
}

// NewTransport wraps an already-open connection. Used for the WebSocket
// serial bridge and for test fakes; OpenPort is the normal path.
func NewTransport(conn io.ReadWriteCloser) *Transport {
	t := &Transport{
		conn:   conn,
		rx:     make(chan byte, 512),
		closed: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// readLoop moves bytes from the connection into the rx channel until the
// connection fails or is closed.
func (t *Transport) readLoop() {
	defer close(t.rx)
	buf := make([]byte, 64)
	for {
		n, err := t.conn.Read(buf)
		for i := 0; i < n; i++ {
			select {
			case t.rx <- buf[i]:
			case <-t.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Transact writes a request frame and reads the matching response, blocking
// until the response is complete or timeout elapses. A timeout is recoverable:
// the handle stays usable and the next Transact proceeds normally.
func (t *Transport) Transact(frame []byte, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.closed:
		return nil, &ConnectionError{Err: io.ErrClosedPipe}
	default:
	}

	// Discard anything left over from a previous (timed-out) exchange.
	t.drain()

	if _, err := t.conn.Write(frame); err != nil {
		return nil, &ConnectionError{Err: err}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	resp := make([]byte, 0, writeFrameSize)
	want := -1
	for {
		select {
		case b, ok := <-t.rx:
			if !ok {
				return nil, &ConnectionError{Err: io.ErrUnexpectedEOF}
			}
			resp = append(resp, b)
			if want < 0 {
				n, err := ExpectedLength(resp)
				if err != nil {
					return nil, err
				}
				want = n
			}
			if want >= 0 && len(resp) >= want {
				return resp, nil
			}
		case <-deadline.C:
			return nil, &TimeoutError{Op: "transact", Timeout: timeout}
		}
	}
}

// WriteRaw sends bytes without waiting for a response.
func (t *Transport) WriteRaw(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.conn.Write(p); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// ReadRaw collects whatever bytes arrive within the window. Edge-case tool
// for bus debugging; normal traffic goes through Transact.
func (t *Transport) ReadRaw(window time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := time.NewTimer(window)
	defer deadline.Stop()

	var out []byte
	for {
		select {
		case b, ok := <-t.rx:
			if !ok {
				return out, &ConnectionError{Err: io.ErrUnexpectedEOF}
			}
			out = append(out, b)
		case <-deadline.C:
			return out, nil
		}
	}
}

func (t *Transport) drain() {
	for {
		select {
		case _, ok := <-t.rx:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close releases the connection. Idempotent: repeat calls return the result
// of the first.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
