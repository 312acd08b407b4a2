/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback runs the live show loop: advance position, tick the
// compositor, hand frames to the transport. One goroutine owns the
// whole tick-then-send sequence, so buffer reads are always sequenced
// after the write that produced them.
package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/compositor"
	"github.com/varghele/QLCplusShowCreator/internal/events"
	"github.com/varghele/QLCplusShowCreator/internal/telemetry"
	"github.com/varghele/QLCplusShowCreator/internal/tempo"
)

// Transport delivers composited frames. Satisfied by artnet.Sender.
type Transport interface {
	Send(universe int, data []byte) error
	SendForce(universe int, data []byte) error
}

// State is the engine's playback state.
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StateHalted  State = "halted"
)

// referenceBPM is the tempo at which show time advances at wall speed.
// Faster tempo maps advance position proportionally faster.
const referenceBPM = 120.0

// TempoProvider supplies the tempo at an absolute show time.
type TempoProvider interface {
	TempoAt(t float64) (bpm float64, sig tempo.Signature)
}

// Engine drives the compositor on a timer loop.
type Engine struct {
	log        zerolog.Logger
	bus        *events.Bus
	comp       *compositor.Compositor
	transport  Transport
	tempo      TempoProvider
	tickRateHz float64

	mu       sync.Mutex
	state    State
	position float64
	stop     chan struct{}
	done     chan struct{}
}

// New creates an engine. transport may be nil for headless runs
// (compositing without output); tempo may be nil for a fixed default.
func New(log zerolog.Logger, bus *events.Bus, comp *compositor.Compositor, transport Transport, provider TempoProvider, tickRateHz float64) *Engine {
	if tickRateHz <= 0 {
		tickRateHz = 60
	}
	return &Engine{
		log:        log.With().Str("component", "playback").Logger(),
		bus:        bus,
		comp:       comp,
		transport:  transport,
		tempo:      provider,
		tickRateHz: tickRateHz,
		state:      StateStopped,
	}
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position returns the current show position in seconds.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Play starts or resumes the loop. Playing again is a no-op.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.state == StatePlaying {
		e.mu.Unlock()
		return
	}
	e.state = StatePlaying
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	stop, done := e.stop, e.done
	e.mu.Unlock()

	e.log.Info().Float64("position", e.Position()).Msg("playback started")
	e.publish(events.EventPlaybackStarted, events.Payload{"position": e.Position()})
	go e.run(stop, done)
}

// Halt pauses the loop in place. Position and fixture state are kept;
// the last frame stays on the rig.
func (e *Engine) Halt() {
	if !e.stopLoop(StateHalted) {
		return
	}
	e.log.Info().Float64("position", e.Position()).Msg("playback halted")
	e.publish(events.EventPlaybackHalted, events.Payload{"position": e.Position()})
}

// Stop ends playback, rewinds to zero and blacks out every universe.
func (e *Engine) Stop() {
	e.stopLoop(StateStopped)

	e.mu.Lock()
	e.position = 0
	e.comp.Reset()
	universes := e.comp.Universes()
	e.mu.Unlock()

	if e.transport != nil {
		for _, u := range universes {
			if err := e.transport.SendForce(u, make([]byte, 512)); err != nil {
				e.log.Warn().Err(err).Int("universe", u).Msg("blackout send failed")
			}
		}
	}
	telemetry.PlaybackPosition.Set(0)
	e.log.Info().Msg("playback stopped")
	e.publish(events.EventPlaybackStopped, nil)
}

// Seek moves the position. Block start/end tracking resets so blocks
// spanning the seek target fire fresh start transitions.
func (e *Engine) Seek(t float64) {
	if t < 0 {
		t = 0
	}
	e.mu.Lock()
	e.position = t
	e.comp.Reset()
	e.mu.Unlock()
	e.publish(events.EventPositionChanged, events.Payload{"position": t})
}

func (e *Engine) stopLoop(next State) bool {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.state = next
		e.mu.Unlock()
		return false
	}
	e.state = next
	stop, done := e.stop, e.done
	e.mu.Unlock()

	close(stop)
	<-done
	return true
}

func (e *Engine) run(stop, done chan struct{}) {
	defer close(done)
	interval := time.Duration(float64(time.Second) / e.tickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.step(interval.Seconds())
		}
	}
}

// step advances show time by dt wall seconds scaled by the current
// tempo, then composites and sends. The transport applies its own rate
// limit, so ticking faster than 44 Hz just refreshes its input.
func (e *Engine) step(dt float64) {
	start := time.Now()

	e.mu.Lock()
	bpm := referenceBPM
	if e.tempo != nil {
		bpm, _ = e.tempo.TempoAt(e.position)
	}
	e.position += dt * bpm / referenceBPM
	pos := e.position

	e.comp.Tick(pos)
	universes := e.comp.Universes()
	frames := make(map[int][]byte, len(universes))
	for _, u := range universes {
		frames[u] = e.comp.Buffer(u)
	}
	e.mu.Unlock()

	if e.transport != nil {
		for _, u := range universes {
			if err := e.transport.Send(u, frames[u]); err != nil {
				e.log.Warn().Err(err).Int("universe", u).Msg("frame send failed")
			}
		}
	}

	telemetry.TicksTotal.Inc()
	telemetry.TickDuration.Observe(time.Since(start).Seconds())
	telemetry.PlaybackPosition.Set(pos)
	e.publish(events.EventPositionChanged, events.Payload{"position": pos})
}

func (e *Engine) publish(eventType events.EventType, payload events.Payload) {
	if e.bus != nil {
		e.bus.Publish(eventType, payload)
	}
}
