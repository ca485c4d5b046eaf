// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
)

// fakeConn is an in-memory stand-in for the serial port. Writes go to the
// simulated device handler; whatever the handler returns becomes readable.
type fakeConn struct {
	mu      sync.Mutex
	rx      chan []byte
	writes  [][]byte
	handler func(frame []byte) []byte
	closed  bool
}

func newFakeConn(handler func(frame []byte) []byte) *fakeConn {
	return &fakeConn{
		rx:      make(chan []byte, 16),
		handler: handler,
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	chunk, ok := <-c.rx
	if !ok {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	frame := append([]byte(nil), p...)
	c.writes = append(c.writes, frame)
	handler := c.handler
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return 0, io.ErrClosedPipe
	}
	if handler != nil {
		if resp := handler(frame); resp != nil {
			c.rx <- resp
		}
	}
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.rx)
	}
	return nil
}

// inject makes bytes readable without a preceding write.
func (c *fakeConn) inject(p []byte) {
	c.rx <- append([]byte(nil), p...)
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// framesWritten counts write attempts matching frame, including attempts
// made after the connection was closed.
func (c *fakeConn) framesWritten(frame []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if bytes.Equal(w, frame) {
			n++
		}
	}
	return n
}

// simLoad emulates the KP184's register bank: writes are echoed and applied,
// status reads report the current state plus fixed measured values.
type simLoad struct {
	mu        sync.Mutex
	address   uint8
	mode      Mode
	on        bool
	voltageMV uint32
	currentMA uint32
	registers map[uint16]uint32

	silent      bool  // drop every request (dead link)
	exception   uint8 // respond with this exception code while nonzero
	corruptNext bool  // flip a bit in the next response

	onOffWrites []uint32 // every value written to the ONOFF register, in order
}

func newSimLoad(address uint8) *simLoad {
	return &simLoad{
		address:   address,
		voltageMV: 12030,
		currentMA: 1200,
		registers: make(map[uint16]uint32),
	}
}

func (d *simLoad) setSilent(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = v
}

func (d *simLoad) setCorruptNext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.corruptNext = true
}

func (d *simLoad) outputWrites() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.onOffWrites...)
}

func (d *simLoad) handle(frame []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.silent {
		return nil
	}
	if len(frame) < 4 || frame[0] != d.address || !verifyChecksum(frame) {
		return nil
	}

	var resp []byte
	switch frame[1] {
	case FuncWriteRegister:
		if d.exception != 0 {
			resp = appendChecksum([]byte{d.address, FuncWriteRegister | exceptionBit, d.exception})
			break
		}
		reg := uint16(frame[2])<<8 | uint16(frame[3])
		value := binary.BigEndian.Uint32(frame[7:11])
		d.registers[reg] = value
		switch reg {
		case RegLoadOnOff:
			d.on = value == 1
			d.onOffWrites = append(d.onOffWrites, value)
		case RegLoadMode:
			d.mode = Mode(value)
		}
		resp = append([]byte(nil), frame...) // echo
	case FuncReadRegisters:
		status := byte(d.mode) << 1
		if d.on {
			status |= 0x01
		}
		data := []byte{
			d.address, FuncReadRegisters, 8,
			status, 0x00,
			byte(d.voltageMV >> 16), byte(d.voltageMV >> 8), byte(d.voltageMV),
			byte(d.currentMA >> 16), byte(d.currentMA >> 8), byte(d.currentMA),
		}
		resp = appendChecksum(data)
	default:
		return nil
	}

	if d.corruptNext && len(resp) > 0 {
		d.corruptNext = false
		resp[len(resp)/2] ^= 0x40
	}
	return resp
}

// newSimSession wires a simulated load to a real transport and session.
func newSimSession(address uint8) (*Session, *simLoad, *fakeConn) {
	sim := newSimLoad(address)
	conn := newFakeConn(sim.handle)
	session := NewSession(NewTransport(conn), address)
	return session, sim, conn
}
