// SPDX-License-Identifier: Apache-2.0

package kp184

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// PollerState tracks the polling loop life cycle.
type PollerState int32

// Poller states
const (
	PollerIdle PollerState = iota
	PollerPolling
	PollerStopping
	PollerStopped
)

// String returns the state name.
func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "IDLE"
	case PollerPolling:
		return "POLLING"
	case PollerStopping:
		return "STOPPING"
	case PollerStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// Snapshot is one poll cycle's worth of telemetry for the display layer.
// Power is derived (V x I, in W). Stale marks a snapshot repeated from the
// previous cycle because the read timed out.
type Snapshot struct {
	Mode      Mode
	OutputOn  bool
	Voltage   float64
	Current   float64
	Power     float64
	Stale     bool
	Timestamp time.Time
}

// Poller repeatedly reads telemetry at a fixed interval and hands snapshots
// to the presentation layer, while staying responsive to a kill request.
//
// A kill is observed within one polling interval no matter what: the kill
// channel wins over the next tick (checked first, the way a command queue
// pre-empts a poll), and each telemetry read's timeout is capped at the
// interval so a transaction in flight cannot stretch the latency past one
// period. On kill the poller immediately commands the output off, then stops.
//
// A timed-out read degrades (previous snapshot re-emitted, marked stale) and
// polling continues; any other error is fatal: the loop attempts one
// emergency stop and returns the error. Either way the loop always ends in
// STOPPED with an attempted output-off, never half-running.
type Poller struct {
	session    *Session
	interval   time.Duration
	onSnapshot func(Snapshot)

	kill     chan struct{}
	killOnce sync.Once
	state    atomic.Int32

	last *Snapshot
}

// NewPoller creates a poller in the IDLE state. onSnapshot is invoked from
// the polling goroutine once per cycle and must not block for long.
func NewPoller(session *Session, interval time.Duration, onSnapshot func(Snapshot)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{
		session:    session,
		interval:   interval,
		onSnapshot: onSnapshot,
		kill:       make(chan struct{}),
	}
	p.state.Store(int32(PollerIdle))
	return p
}

// State returns the current life-cycle state.
func (p *Poller) State() PollerState {
	return PollerState(p.state.Load())
}

// Kill requests an immediate emergency stop. Safe to call from any goroutine,
// any number of times.
func (p *Poller) Kill() {
	p.killOnce.Do(func() { close(p.kill) })
}

// Run polls until killed, cancelled, or hit by a fatal error. It returns nil
// after a kill or context cancellation, and the fatal error otherwise; in
// every case an output-off has been attempted before it returns.
func (p *Poller) Run(ctx context.Context) error {
	p.state.Store(int32(PollerPolling))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First read immediately rather than one interval in.
	if err := p.pollOnce(); err != nil {
		return p.shutdown(err)
	}

	for {
		// A pending kill wins over a pending tick.
		select {
		case <-p.kill:
			return p.shutdown(nil)
		case <-ctx.Done():
			return p.shutdown(nil)
		default:
		}

		select {
		case <-p.kill:
			return p.shutdown(nil)
		case <-ctx.Done():
			return p.shutdown(nil)
		case <-ticker.C:
			if err := p.pollOnce(); err != nil {
				return p.shutdown(err)
			}
		}
	}
}

// pollOnce performs one telemetry read. Timeouts degrade, everything else is
// returned as fatal.
func (p *Poller) pollOnce() error {
	timeout := p.session.timeout
	if timeout > p.interval {
		timeout = p.interval
	}

	telemetry, err := p.session.readStatus(timeout)
	if err != nil {
		if IsTimeout(err) {
			p.emitStale()
			return nil
		}
		return err
	}

	snap := Snapshot{
		Mode:      telemetry.Mode,
		OutputOn:  telemetry.OutputOn,
		Voltage:   telemetry.Voltage,
		Current:   telemetry.Current,
		Power:     telemetry.Voltage * telemetry.Current,
		Timestamp: telemetry.Timestamp,
	}
	p.last = &snap
	p.emit(snap)
	return nil
}

// emitStale re-emits the previous values marked stale; a single missed poll
// is not fatal.
func (p *Poller) emitStale() {
	snap := Snapshot{Stale: true, Timestamp: time.Now()}
	if p.last != nil {
		snap = *p.last
		snap.Stale = true
		snap.Timestamp = time.Now()
	}
	p.emit(snap)
}

func (p *Poller) emit(snap Snapshot) {
	if p.onSnapshot != nil {
		p.onSnapshot(snap)
	}
}

// shutdown runs the single exit path: STOPPING, one best-effort emergency
// stop, STOPPED. The cause (nil for kill/cancel) is passed through.
func (p *Poller) shutdown(cause error) error {
	p.state.Store(int32(PollerStopping))
	_ = p.session.EmergencyStop()
	p.state.Store(int32(PollerStopped))
	return cause
}
