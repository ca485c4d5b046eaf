// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"sync"
	"time"
)

// Session is the stateful wrapper over Transport and the frame codec. It is
// the sole owner of the transport handle for its lifetime and issues one
// transaction at a time. Codec and transport errors propagate to the caller
// unchanged; nothing here retries, because a stale command resent after a
// timeout could be executed twice on a live load.
//
// The last successful telemetry read is cached for display purposes. Readers
// of the cache may see a momentarily stale value; they never block a
// transaction in flight.
type Session struct {
	transport *Transport
	address   uint8

	timeout     time.Duration
	stopTimeout time.Duration

	mu   sync.RWMutex
	last *Telemetry
}

// Connect opens the serial port and wraps it in a session.
func Connect(portName string, address uint8) (*Session, error) {
	transport, err := OpenPort(portName)
	if err != nil {
		return nil, err
	}
	return NewSession(transport, address), nil
}

// NewSession wraps an open transport. The session takes ownership: closing
// the session closes the transport.
func NewSession(transport *Transport, address uint8) *Session {
	return &Session{
		transport:   transport,
		address:     address,
		timeout:     DefaultTimeout,
		stopTimeout: StopTimeout,
	}
}

// Address returns the device address this session talks to.
func (s *Session) Address() uint8 { return s.address }

// Close releases the underlying transport. Safe to call more than once.
func (s *Session) Close() error { return s.transport.Close() }

// SetMode selects the operating mode.
func (s *Session) SetMode(mode Mode) error {
	cmd, err := NewSetModeCommand(s.address, mode)
	if err != nil {
		return err
	}
	if err := s.writeRegister(cmd, s.timeout); err != nil {
		return err
	}
	s.updateCache(func(t *Telemetry) { t.Mode = mode })
	return nil
}

// SetSetpoint sets the regulation target for one field, in display units.
func (s *Session) SetSetpoint(field Field, value float64) error {
	cmd, err := NewSetpointCommand(s.address, field, value)
	if err != nil {
		return err
	}
	return s.writeRegister(cmd, s.timeout)
}

// SetOutput switches the load output on or off.
func (s *Session) SetOutput(on bool) error {
	if err := s.writeRegister(NewOutputCommand(s.address, on), s.timeout); err != nil {
		return err
	}
	s.updateCache(func(t *Telemetry) { t.OutputOn = on })
	return nil
}

// ReadTelemetry reads the common register bank and refreshes the cache.
func (s *Session) ReadTelemetry() (Telemetry, error) {
	return s.readStatus(s.timeout)
}

// EmergencyStop commands the output off with the shortest timeout in the
// system. Best effort: it exists for the case where the link or device is
// already misbehaving, so a failure is returned but the caller should treat
// the output as commanded-off and move on rather than block or retry.
func (s *Session) EmergencyStop() error {
	err := s.writeRegister(NewOutputCommand(s.address, false), s.stopTimeout)
	if err == nil {
		s.updateCache(func(t *Telemetry) { t.OutputOn = false })
	}
	return err
}

// Last returns the most recent successful telemetry, if any.
func (s *Session) Last() (Telemetry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Telemetry{}, false
	}
	return *s.last, true
}

func (s *Session) readStatus(timeout time.Duration) (Telemetry, error) {
	frame, err := Encode(NewReadStatusCommand(s.address))
	if err != nil {
		return Telemetry{}, err
	}
	raw, err := s.transport.Transact(frame, timeout)
	if err != nil {
		return Telemetry{}, err
	}
	telemetry, err := DecodeTelemetry(raw, s.address)
	if err != nil {
		return Telemetry{}, err
	}

	s.mu.Lock()
	s.last = &telemetry
	s.mu.Unlock()
	return telemetry, nil
}

func (s *Session) writeRegister(cmd Command, timeout time.Duration) error {
	frame, err := Encode(cmd)
	if err != nil {
		return err
	}
	raw, err := s.transport.Transact(frame, timeout)
	if err != nil {
		return err
	}
	return DecodeWriteEcho(raw, frame, s.address)
}

// updateCache patches the cached telemetry after a confirmed write, so the
// display reflects commanded state between polls.
func (s *Session) updateCache(patch func(*Telemetry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = &Telemetry{Timestamp: time.Now()}
	}
	patch(s.last)
}
