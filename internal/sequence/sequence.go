/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sequence compiles envelopes into bounded step sequences for
// export. A Compile call is pure: no shared mutable state, safe on a
// background goroutine, cancellation is discarding the result. The
// same effect functions drive the live path, so exported shows look
// like live playback.
package sequence

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/effects"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/tempo"
	"github.com/varghele/QLCplusShowCreator/internal/timeline"
)

// Neutral defaults used when a step has no overlapping sub-block for a
// channel. Channels are never left unset.
const (
	NeutralIntensity = 200
	NeutralRed       = 255
	NeutralGreen     = 255
	NeutralBlue      = 255
)

// maxStepsPerSecond is the downstream consumer's stability ceiling.
const maxStepsPerSecond = 24

// absoluteStepCap bounds any single compiled sequence.
const absoluteStepCap = 256

// TempoProvider supplies the tempo at an absolute show time.
type TempoProvider interface {
	TempoAt(t float64) (bpm float64, sig tempo.Signature)
}

// ChannelValue is one resolved DMX write inside a step.
type ChannelValue struct {
	Universe int
	Channel  int
	Value    byte
}

// Step is one discrete slice of a compiled sequence.
type Step struct {
	FadeIn  time.Duration
	Hold    time.Duration
	FadeOut time.Duration
	Values  []ChannelValue
}

// Pointer references a compiled sequence from a show timeline. It
// deliberately carries no total-duration field: the downstream loader
// derives duration from summed step durations and rejects an explicit
// one. Wire contract, do not add fields here without checking the
// consumer.
type Pointer struct {
	StartOffset time.Duration
	Tag         string
}

// Description is the compiled output for one envelope.
type Description struct {
	Steps   []Step
	Pointer Pointer
}

// Duration sums the step durations.
func (d *Description) Duration() time.Duration {
	var total time.Duration
	for _, s := range d.Steps {
		total += s.FadeIn + s.Hold + s.FadeOut
	}
	return total
}

// Options parameterize one Compile call.
type Options struct {
	Tag         string
	StartOffset time.Duration
}

// Compiler turns envelopes into step sequences. The tempo provider is
// an explicit dependency; nil falls back to a fixed default tempo.
type Compiler struct {
	log   zerolog.Logger
	tempo TempoProvider
}

// NewCompiler creates a compiler.
func NewCompiler(log zerolog.Logger, provider TempoProvider) *Compiler {
	return &Compiler{log: log.With().Str("component", "sequence").Logger(), tempo: provider}
}

func (c *Compiler) tempoAt(t float64) (float64, tempo.Signature) {
	if c.tempo == nil {
		return tempo.DefaultBPM, tempo.Signature{Numerator: 4, Denominator: 4}
	}
	return c.tempo.TempoAt(t)
}

// Compile renders env onto targets. Empty input (nil envelope, no
// targets, no sub-blocks) compiles to an empty description, not an
// error. Fixtures with no usable mapping are skipped with a warning.
func (c *Compiler) Compile(env *timeline.Envelope, targets []*fixture.Map, opts Options) (*Description, error) {
	desc := &Description{Pointer: Pointer{StartOffset: opts.StartOffset, Tag: opts.Tag}}
	if env != nil && desc.Pointer.Tag == "" {
		desc.Pointer.Tag = env.Name
	}
	if env == nil || len(targets) == 0 {
		return desc, nil
	}
	if len(env.Intensity)+len(env.Colour)+len(env.Position)+len(env.Special) == 0 {
		return desc, nil
	}

	usable := make([]*fixture.Map, 0, len(targets))
	for _, m := range targets {
		if mappable(m) {
			usable = append(usable, m)
		} else {
			c.log.Warn().Str("fixture", m.Fixture.Name).Msg("fixture has no usable channel mapping, skipped")
		}
	}
	if len(usable) == 0 {
		return desc, nil
	}

	span := compileSpan(env)
	duration := span.Duration()
	if duration <= 0 {
		return desc, nil
	}

	bpm, sig := c.tempoAt(span.Start)

	driver, rate := driverRate(env)
	cycles := effects.TotalCycles(duration, bpm, sig.BeatsPerBar(), rate)

	n := 1
	if driver {
		n = stepCount(cycles, rate, duration)
	}

	stepDur := time.Duration(duration / float64(n) * float64(time.Second))
	for i := 0; i < n; i++ {
		progress := float64(i) / float64(n)
		sampleT := span.Start + progress*duration
		values := c.stepValues(env, usable, i, progress, sampleT, bpm, sig)
		desc.Steps = append(desc.Steps, Step{Hold: stepDur, Values: values})
	}
	return desc, nil
}

// compileSpan is the envelope span with zero-duration children already
// excluded by Recompute; recompute defensively in case the caller
// mutated children directly.
func compileSpan(env *timeline.Envelope) timeline.Span {
	env.Recompute()
	return env.Span
}

// driverRate reports whether anything in the envelope animates, and
// the rate multiplier governing the step count. Position rates win
// over intensity effect rates.
func driverRate(env *timeline.Envelope) (animated bool, rate float64) {
	for i := range env.Position {
		b := &env.Position[i]
		if b.Span.Duration() <= 0 {
			continue
		}
		if b.Shape != effects.ShapeStatic && b.Shape != "" {
			return true, effects.ParseRate(b.Rate)
		}
	}
	for i := range env.Intensity {
		b := &env.Intensity[i]
		if b.Span.Duration() <= 0 {
			continue
		}
		if b.Effect == effects.IntensityPulse || b.Effect == effects.IntensityFlicker {
			return true, effects.ParseRate(b.Rate)
		}
	}
	return false, 1.0
}

// stepCount applies the four-way clamp. Every bound matters: the
// preferred density keeps slow shapes smooth, the per-second ceiling
// protects the consumer, the cycle floor keeps shapes recognizable,
// and the absolute cap bounds the file.
func stepCount(totalCycles, speed, durationSeconds float64) int {
	preferred := 16.0
	if speed <= 0.5 {
		preferred = 64.0
	} else if speed <= 2.0 {
		preferred = 32.0
	}
	desired := totalCycles * preferred
	maxSteps := math.Floor(durationSeconds * maxStepsPerSecond)
	minSteps := totalCycles * 8

	final := desired
	if final < minSteps {
		final = minSteps
	}
	if final > maxSteps {
		final = maxSteps
	}
	if final > absoluteStepCap {
		final = absoluteStepCap
	}
	if final < 1 {
		final = 1
	}
	return int(final)
}

func mappable(m *fixture.Map) bool {
	for _, role := range []fixture.Role{
		fixture.RoleMasterIntensity, fixture.RoleRed, fixture.RoleGreen,
		fixture.RoleBlue, fixture.RoleCyan, fixture.RoleMagenta,
		fixture.RoleYellow, fixture.RoleColourWheel, fixture.RolePan,
		fixture.RoleTilt, fixture.RoleGobo, fixture.RolePrism,
		fixture.RoleFocus, fixture.RoleZoom,
	} {
		if m.Has(role) {
			return true
		}
	}
	return false
}

// stepValues synthesizes one step's channel writes across the targets.
// Inheritance is an interval search at the step's timestamp; flicker is
// seeded by (stepIndex, fixtureIndex) for live/export parity.
func (c *Compiler) stepValues(env *timeline.Envelope, targets []*fixture.Map, stepIndex int, progress, sampleT, bpm float64, sig tempo.Signature) []ChannelValue {
	intensity := latestIntensity(env.IntensityAt(sampleT))
	colour := latestColour(env.ColourAt(sampleT))
	position := latestPosition(env.PositionAt(sampleT))
	special := latestSpecial(env.SpecialAt(sampleT))

	var values []ChannelValue
	add := func(m *fixture.Map, role fixture.Role, v byte) {
		for _, a := range m.Resolve(role) {
			values = append(values, ChannelValue{Universe: a.Universe, Channel: a.Offset, Value: v})
		}
	}

	for fi, m := range targets {
		level := float64(NeutralIntensity)
		if intensity != nil {
			switch intensity.Effect {
			case effects.IntensityPulse:
				level = effects.PulseLevel(intensity.BaseLevel, effects.ParseRate(intensity.Rate), stepIndex)
			case effects.IntensityFlicker:
				level = effects.FlickerLevel(intensity.BaseLevel, stepIndex, fi)
			default:
				level = intensity.BaseLevel
			}
		}
		add(m, fixture.RoleMasterIntensity, effects.ClampDMX(level))

		// Neutral white: full RGB, clear subtractive filters.
		col := timeline.ColourBlock{Red: NeutralRed, Green: NeutralGreen, Blue: NeutralBlue}
		if colour != nil {
			col = *colour
		}
		emitters := []struct {
			role fixture.Role
			v    float64
		}{
			{fixture.RoleRed, col.Red},
			{fixture.RoleGreen, col.Green},
			{fixture.RoleBlue, col.Blue},
			{fixture.RoleWhite, col.White},
			{fixture.RoleAmber, col.Amber},
			{fixture.RoleUV, col.UV},
			{fixture.RoleCyan, col.Cyan},
			{fixture.RoleMagenta, col.Magenta},
			{fixture.RoleYellow, col.Yellow},
			{fixture.RoleLime, col.Lime},
		}
		wrote := false
		for _, e := range emitters {
			if m.Has(e.role) {
				add(m, e.role, effects.ClampDMX(e.v))
				wrote = true
			}
		}
		if !wrote && m.Has(fixture.RoleColourWheel) {
			add(m, fixture.RoleColourWheel, effects.NearestWheelEntry(col.Red, col.Green, col.Blue, m.Wheel()))
		}

		if position != nil && (m.Has(fixture.RolePan) || m.Has(fixture.RoleTilt)) {
			prate := effects.ParseRate(position.Rate)
			f1, f2 := effects.ParseLissajousRatio(position.LissajousRatio)
			params := effects.MotionParams{
				CenterPan:     position.Pan,
				CenterTilt:    position.Tilt,
				PanAmplitude:  position.PanAmplitude,
				TiltAmplitude: position.TiltAmplitude,
				PanMin:        position.PanMin,
				PanMax:        position.PanMax,
				TiltMin:       position.TiltMin,
				TiltMax:       position.TiltMax,
				PhaseOffset:   position.PhaseOffset * float64(fi),
				FreqPan:       float64(f1),
				FreqTilt:      float64(f2),
				TotalCycles:   effects.TotalCycles(position.Span.Duration(), bpm, sig.BeatsPerBar(), prate),
			}
			pan, tilt := effects.EvalMotion(position.Shape, position.Span.Progress(sampleT), params)
			add(m, fixture.RolePan, effects.ClampDMX(pan))
			add(m, fixture.RoleTilt, effects.ClampDMX(tilt))
		}

		goboIndex, prism := 0, false
		var focus, zoom float64
		if special != nil {
			goboIndex, prism = special.GoboIndex, special.PrismEnabled
			focus, zoom = special.Focus, special.Zoom
		}
		if m.Has(fixture.RoleGobo) {
			add(m, fixture.RoleGobo, effects.GoboValue(goboIndex))
		}
		if m.Has(fixture.RolePrism) {
			add(m, fixture.RolePrism, effects.PrismValue(prism))
		}
		if m.Has(fixture.RoleFocus) {
			add(m, fixture.RoleFocus, effects.ClampDMX(focus))
		}
		if m.Has(fixture.RoleZoom) {
			add(m, fixture.RoleZoom, effects.ClampDMX(zoom))
		}
	}
	return values
}

func latestIntensity(blocks []timeline.IntensityBlock) *timeline.IntensityBlock {
	var best *timeline.IntensityBlock
	for i := range blocks {
		b := &blocks[i]
		if b.Span.Duration() <= 0 {
			continue
		}
		if best == nil || laterStart(b.Span, b.ID, best.Span, best.ID) {
			best = b
		}
	}
	return best
}

func latestColour(blocks []timeline.ColourBlock) *timeline.ColourBlock {
	var best *timeline.ColourBlock
	for i := range blocks {
		b := &blocks[i]
		if b.Span.Duration() <= 0 {
			continue
		}
		if best == nil || laterStart(b.Span, b.ID, best.Span, best.ID) {
			best = b
		}
	}
	return best
}

func latestPosition(blocks []timeline.PositionBlock) *timeline.PositionBlock {
	var best *timeline.PositionBlock
	for i := range blocks {
		b := &blocks[i]
		if b.Span.Duration() <= 0 {
			continue
		}
		if best == nil || laterStart(b.Span, b.ID, best.Span, best.ID) {
			best = b
		}
	}
	return best
}

func latestSpecial(blocks []timeline.SpecialBlock) *timeline.SpecialBlock {
	var best *timeline.SpecialBlock
	for i := range blocks {
		b := &blocks[i]
		if b.Span.Duration() <= 0 {
			continue
		}
		if best == nil || laterStart(b.Span, b.ID, best.Span, best.ID) {
			best = b
		}
	}
	return best
}

func laterStart(s timeline.Span, id string, bestSpan timeline.Span, bestID string) bool {
	if s.Start != bestSpan.Start {
		return s.Start > bestSpan.Start
	}
	return id < bestID
}
