// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func collectSnapshots() (chan Snapshot, func(Snapshot)) {
	ch := make(chan Snapshot, 64)
	return ch, func(s Snapshot) { ch <- s }
}

func waitSnapshot(t *testing.T, ch chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot within 2s")
		return Snapshot{}
	}
}

func waitRunResult(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return within 2s")
		return nil
	}
}

func TestPoller_SnapshotsCarryDerivedPower(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	sim.mu.Lock()
	sim.mode = ModeCC
	sim.on = true
	sim.mu.Unlock()

	snapshots, onSnapshot := collectSnapshots()
	poller := NewPoller(session, 20*time.Millisecond, onSnapshot)

	if poller.State() != PollerIdle {
		t.Fatalf("initial state: got %s, want IDLE", poller.State())
	}

	done := make(chan error, 1)
	go func() { done <- poller.Run(context.Background()) }()

	snap := waitSnapshot(t, snapshots)
	if snap.Stale {
		t.Error("first snapshot marked stale")
	}
	if snap.Mode != ModeCC || !snap.OutputOn {
		t.Errorf("state: got %s on=%v, want CC on=true", snap.Mode, snap.OutputOn)
	}
	// 12.030 V x 1.200 A
	if math.Abs(snap.Power-14.436) > 0.001 {
		t.Errorf("power: got %.3f W, want 14.436", snap.Power)
	}

	poller.Kill()
	if err := waitRunResult(t, done); err != nil {
		t.Fatalf("Run after kill: got %v, want nil", err)
	}
}

func TestPoller_TimeoutDegradesToStale(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	snapshots, onSnapshot := collectSnapshots()
	poller := NewPoller(session, 20*time.Millisecond, onSnapshot)

	done := make(chan error, 1)
	go func() { done <- poller.Run(context.Background()) }()

	first := waitSnapshot(t, snapshots)
	if first.Stale {
		t.Fatal("first snapshot marked stale")
	}

	sim.setSilent(true)
	var stale Snapshot
	for {
		stale = waitSnapshot(t, snapshots)
		if stale.Stale {
			break
		}
	}
	if stale.Voltage != first.Voltage || stale.Current != first.Current {
		t.Errorf("stale snapshot changed values: got %.3f V %.3f A, want %.3f V %.3f A",
			stale.Voltage, stale.Current, first.Voltage, first.Current)
	}

	// Link recovers, polling resumes with fresh data.
	sim.setSilent(false)
	for {
		snap := waitSnapshot(t, snapshots)
		if !snap.Stale {
			break
		}
	}

	poller.Kill()
	if err := waitRunResult(t, done); err != nil {
		t.Fatalf("Run after kill: got %v, want nil", err)
	}
}

func TestPoller_KillStopsOutputAndReturnsNil(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	snapshots, onSnapshot := collectSnapshots()
	poller := NewPoller(session, 20*time.Millisecond, onSnapshot)

	done := make(chan error, 1)
	go func() { done <- poller.Run(context.Background()) }()

	waitSnapshot(t, snapshots)
	poller.Kill()
	poller.Kill() // repeat kills are harmless

	if err := waitRunResult(t, done); err != nil {
		t.Fatalf("Run after kill: got %v, want nil", err)
	}
	if poller.State() != PollerStopped {
		t.Errorf("final state: got %s, want STOPPED", poller.State())
	}

	writes := sim.outputWrites()
	if len(writes) == 0 || writes[len(writes)-1] != 0 {
		t.Errorf("kill did not command the output off: writes %v", writes)
	}
}

// TestPoller_KillLatencyBounded kills a poller whose device has gone silent
// and checks the loop still winds down within one interval plus the emergency
// stop budget.
func TestPoller_KillLatencyBounded(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	sim.setSilent(true)
	interval := 100 * time.Millisecond
	poller := NewPoller(session, interval, nil)

	done := make(chan error, 1)
	go func() { done <- poller.Run(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	start := time.Now()
	poller.Kill()
	if err := waitRunResult(t, done); err != nil {
		t.Fatalf("Run after kill: got %v, want nil", err)
	}

	elapsed := time.Since(start)
	budget := interval + StopTimeout + 300*time.Millisecond
	if elapsed > budget {
		t.Errorf("kill took %s, budget %s", elapsed, budget)
	}
}

func TestPoller_FatalErrorStopsWithEmergencyStop(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	snapshots, onSnapshot := collectSnapshots()
	poller := NewPoller(session, 20*time.Millisecond, onSnapshot)

	done := make(chan error, 1)
	go func() { done <- poller.Run(context.Background()) }()

	waitSnapshot(t, snapshots)
	sim.setCorruptNext()

	err := waitRunResult(t, done)
	var framingErr *FramingError
	if !errors.As(err, &framingErr) {
		t.Fatalf("expected FramingError from Run, got %v", err)
	}
	if poller.State() != PollerStopped {
		t.Errorf("final state: got %s, want STOPPED", poller.State())
	}

	var offWrites int
	for _, v := range sim.outputWrites() {
		if v == 0 {
			offWrites++
		}
	}
	if offWrites != 1 {
		t.Errorf("emergency stop attempts: got %d, want 1", offWrites)
	}
}

// TestPoller_ConnectionLossStopsOnce severs the link mid-poll and verifies
// the loop surfaces the connection error, lands in STOPPED, and makes
// exactly one bounded output-off attempt on the dead link.
func TestPoller_ConnectionLossStopsOnce(t *testing.T) {
	session, _, conn := newSimSession(1)
	defer session.Close()

	snapshots, onSnapshot := collectSnapshots()
	poller := NewPoller(session, 20*time.Millisecond, onSnapshot)

	done := make(chan error, 1)
	go func() { done <- poller.Run(context.Background()) }()

	waitSnapshot(t, snapshots)
	start := time.Now()
	conn.Close()

	runErr := waitRunResult(t, done)
	elapsed := time.Since(start)

	var connErr *ConnectionError
	if !errors.As(runErr, &connErr) {
		t.Fatalf("expected ConnectionError from Run, got %v", runErr)
	}
	if poller.State() != PollerStopped {
		t.Errorf("final state: got %s, want STOPPED", poller.State())
	}

	offFrame, err := Encode(NewOutputCommand(1, false))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if n := conn.framesWritten(offFrame); n != 1 {
		t.Errorf("output-off attempts: got %d, want 1", n)
	}
	if budget := StopTimeout + 500*time.Millisecond; elapsed > budget {
		t.Errorf("shutdown took %s, budget %s", elapsed, budget)
	}
}

func TestPoller_ContextCancellation(t *testing.T) {
	session, sim, _ := newSimSession(1)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	snapshots, onSnapshot := collectSnapshots()
	poller := NewPoller(session, 20*time.Millisecond, onSnapshot)

	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	waitSnapshot(t, snapshots)
	cancel()

	if err := waitRunResult(t, done); err != nil {
		t.Fatalf("Run after cancel: got %v, want nil", err)
	}
	if poller.State() != PollerStopped {
		t.Errorf("final state: got %s, want STOPPED", poller.State())
	}
	writes := sim.outputWrites()
	if len(writes) == 0 || writes[len(writes)-1] != 0 {
		t.Errorf("cancel did not command the output off: writes %v", writes)
	}
}
