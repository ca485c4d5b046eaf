// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"errors"
	"math"
	"testing"
	"time"
)

// TestSession_BringUpSequence runs the normal bring-up against the simulated
// load: select CC mode, set the current target, enable the output, then read
// telemetry back.
func TestSession_BringUpSequence(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	if err := session.SetMode(ModeCC); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if err := session.SetSetpoint(FieldCurrent, 1.2); err != nil {
		t.Fatalf("SetSetpoint failed: %v", err)
	}
	if err := session.SetOutput(true); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}

	telemetry, err := session.ReadTelemetry()
	if err != nil {
		t.Fatalf("ReadTelemetry failed: %v", err)
	}
	if telemetry.Mode != ModeCC {
		t.Errorf("mode: got %s, want CC", telemetry.Mode)
	}
	if !telemetry.OutputOn {
		t.Error("output: got off, want on")
	}
	if math.Abs(telemetry.Voltage-12.030) > 0.0005 {
		t.Errorf("voltage: got %.3f, want 12.030", telemetry.Voltage)
	}
	if math.Abs(telemetry.Current-1.200) > 0.0005 {
		t.Errorf("current: got %.3f, want 1.200", telemetry.Current)
	}

	if got := sim.registers[RegSetCC]; got != 1200 {
		t.Errorf("CC setpoint register: got %d mA, want 1200", got)
	}
	if got := sim.registers[RegLoadMode]; got != uint32(ModeCC) {
		t.Errorf("mode register: got %d, want %d", got, ModeCC)
	}
}

func TestSession_SetpointOutOfRangeNeverSent(t *testing.T) {
	session, _, conn := newSimSession(1)
	defer session.Close()

	var encErr *EncodingError
	if err := session.SetSetpoint(FieldCurrent, 30.001); !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
	if n := conn.writeCount(); n != 0 {
		t.Errorf("out-of-range setpoint reached the wire (%d writes)", n)
	}
}

func TestSession_DeviceExceptionSurfaced(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	sim.mu.Lock()
	sim.exception = 0x02
	sim.mu.Unlock()

	var protoErr *ProtocolError
	if err := session.SetOutput(true); !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if protoErr.Code != 0x02 {
		t.Errorf("exception code: got 0x%02X, want 0x02", protoErr.Code)
	}
}

func TestSession_CorruptResponseRejected(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	sim.setCorruptNext()
	_, err := session.ReadTelemetry()
	var framingErr *FramingError
	if !errors.As(err, &framingErr) {
		t.Fatalf("expected FramingError, got %v", err)
	}

	// The corruption was transient; the next read succeeds.
	if _, err := session.ReadTelemetry(); err != nil {
		t.Fatalf("read after corrupt frame failed: %v", err)
	}
}

func TestSession_EmergencyStopTurnsOutputOff(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	if err := session.SetOutput(true); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}
	if err := session.EmergencyStop(); err != nil {
		t.Fatalf("EmergencyStop failed: %v", err)
	}

	writes := sim.outputWrites()
	if len(writes) != 2 || writes[1] != 0 {
		t.Fatalf("output register writes: got %v, want [1 0]", writes)
	}
}

// TestSession_EmergencyStopBounded verifies the stop path gives up within its
// own short budget on a dead link instead of hanging.
func TestSession_EmergencyStopBounded(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	sim.setSilent(true)
	start := time.Now()
	err := session.EmergencyStop()
	elapsed := time.Since(start)

	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed > StopTimeout+200*time.Millisecond {
		t.Errorf("emergency stop took %s, budget is %s", elapsed, StopTimeout)
	}
}

func TestSession_LastCache(t *testing.T) {
	session, _, _ := newSimSession(1)
	defer session.Close()

	if _, ok := session.Last(); ok {
		t.Fatal("cache populated before any read")
	}

	want, err := session.ReadTelemetry()
	if err != nil {
		t.Fatalf("ReadTelemetry failed: %v", err)
	}
	got, ok := session.Last()
	if !ok {
		t.Fatal("cache empty after successful read")
	}
	if got.Voltage != want.Voltage || got.Current != want.Current || got.Mode != want.Mode {
		t.Errorf("cache does not match last read: got %+v, want %+v", got, want)
	}

	// Confirmed writes patch the cache so the display tracks commanded state.
	if err := session.SetOutput(true); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}
	if got, _ := session.Last(); !got.OutputOn {
		t.Error("cache not patched after confirmed output write")
	}
}
