/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package effects holds the pure value-synthesis functions shared by the
// live compositor and the offline sequence compiler. Everything here is
// a function of progress and parameters only; the two paths stay
// visually identical because they call the exact same code.
package effects

import (
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

// IntensityEffect selects the dimmer behaviour of an intensity block.
type IntensityEffect string

const (
	IntensityStatic  IntensityEffect = "static"
	IntensityPulse   IntensityEffect = "pulse"
	IntensityFlicker IntensityEffect = "flicker"
)

// Shape selects the motion pattern of a position block.
type Shape string

const (
	ShapeStatic    Shape = "static"
	ShapeCircle    Shape = "circle"
	ShapeFigure8   Shape = "figure8"
	ShapeLissajous Shape = "lissajous"
	ShapeDiamond   Shape = "diamond"
	ShapeSquare    Shape = "square"
	ShapeTriangle  Shape = "triangle"
	ShapeRandom    Shape = "random"
	ShapeBounce    Shape = "bounce"
)

// MotionParams parameterizes a motion evaluation. Amplitudes and centers
// are in DMX units; PhaseOffset is in cycles and desynchronizes
// neighbouring fixtures.
type MotionParams struct {
	CenterPan, CenterTilt       float64
	PanAmplitude, TiltAmplitude float64
	PanMin, PanMax              float64
	TiltMin, TiltMax            float64
	PhaseOffset                 float64
	FreqPan, FreqTilt           float64 // lissajous frequency ratio
	TotalCycles                 float64
}

// MotionFunc evaluates pan/tilt for normalized block progress in [0,1].
type MotionFunc func(progress float64, p MotionParams) (pan, tilt float64)

// Motions is the keyed dispatch table for every supported shape. Both
// the live and offline paths resolve shapes through this table.
var Motions = map[Shape]MotionFunc{
	ShapeStatic:    motionStatic,
	ShapeCircle:    motionCircle,
	ShapeFigure8:   motionFigure8,
	ShapeLissajous: motionLissajous,
	ShapeDiamond:   motionDiamond,
	ShapeSquare:    motionSquare,
	ShapeTriangle:  motionTriangle,
	ShapeRandom:    motionRandom,
	ShapeBounce:    motionBounce,
}

// EvalMotion evaluates a shape at the given progress, clamping the
// result to the configured pan/tilt ranges. Unknown shapes degrade to
// static rather than erroring.
func EvalMotion(shape Shape, progress float64, p MotionParams) (pan, tilt float64) {
	fn, ok := Motions[shape]
	if !ok {
		fn = motionStatic
	}
	pan, tilt = fn(progress, p)
	pan = clampF(pan, p.PanMin, p.PanMax)
	tilt = clampF(tilt, p.TiltMin, p.TiltMax)
	return pan, tilt
}

// angle converts progress to radians across the block's total cycles,
// including the per-fixture phase offset.
func angle(progress float64, p MotionParams) float64 {
	return 2 * math.Pi * (p.TotalCycles*progress + p.PhaseOffset)
}

func motionStatic(_ float64, p MotionParams) (float64, float64) {
	return p.CenterPan, p.CenterTilt
}

func motionCircle(progress float64, p MotionParams) (float64, float64) {
	t := angle(progress, p)
	return p.CenterPan + p.PanAmplitude*math.Cos(t),
		p.CenterTilt + p.TiltAmplitude*math.Sin(t)
}

func motionFigure8(progress float64, p MotionParams) (float64, float64) {
	t := angle(progress, p)
	return p.CenterPan + p.PanAmplitude*math.Sin(t),
		p.CenterTilt + p.TiltAmplitude*math.Sin(2*t)
}

func motionLissajous(progress float64, p MotionParams) (float64, float64) {
	t := angle(progress, p)
	fp, ft := p.FreqPan, p.FreqTilt
	if fp <= 0 || ft <= 0 {
		fp, ft = 1, 2
	}
	return p.CenterPan + p.PanAmplitude*math.Sin(fp*t),
		p.CenterTilt + p.TiltAmplitude*math.Sin(ft*t)
}

func motionRandom(progress float64, p MotionParams) (float64, float64) {
	t := angle(progress, p)
	pan := p.CenterPan + p.PanAmplitude*(0.5*math.Sin(3*t)+0.3*math.Sin(7*t)+0.2*math.Sin(11*t))
	tilt := p.CenterTilt + p.TiltAmplitude*(0.5*math.Sin(5*t)+0.3*math.Sin(11*t)+0.2*math.Sin(13*t))
	return pan, tilt
}

func motionBounce(progress float64, p MotionParams) (float64, float64) {
	bt := 4 * (p.TotalCycles*progress + p.PhaseOffset)
	panT := math.Abs(math.Mod(bt, 2) - 1)
	tiltT := math.Abs(math.Mod(bt+0.5, 2) - 1)
	pan := p.CenterPan - p.PanAmplitude + 2*p.PanAmplitude*panT
	tilt := p.CenterTilt - p.TiltAmplitude + 2*p.TiltAmplitude*tiltT
	return pan, tilt
}

// corner shapes traverse their vertices with piecewise-linear motion.

func motionDiamond(progress float64, p MotionParams) (float64, float64) {
	corners := [][2]float64{
		{p.CenterPan, p.CenterTilt - p.TiltAmplitude},
		{p.CenterPan + p.PanAmplitude, p.CenterTilt},
		{p.CenterPan, p.CenterTilt + p.TiltAmplitude},
		{p.CenterPan - p.PanAmplitude, p.CenterTilt},
	}
	return traverse(corners, progress, p)
}

func motionSquare(progress float64, p MotionParams) (float64, float64) {
	corners := [][2]float64{
		{p.CenterPan - p.PanAmplitude, p.CenterTilt - p.TiltAmplitude},
		{p.CenterPan + p.PanAmplitude, p.CenterTilt - p.TiltAmplitude},
		{p.CenterPan + p.PanAmplitude, p.CenterTilt + p.TiltAmplitude},
		{p.CenterPan - p.PanAmplitude, p.CenterTilt + p.TiltAmplitude},
	}
	return traverse(corners, progress, p)
}

func motionTriangle(progress float64, p MotionParams) (float64, float64) {
	corners := [][2]float64{
		{p.CenterPan, p.CenterTilt - p.TiltAmplitude},
		{p.CenterPan + p.PanAmplitude*0.866, p.CenterTilt + p.TiltAmplitude*0.5},
		{p.CenterPan - p.PanAmplitude*0.866, p.CenterTilt + p.TiltAmplitude*0.5},
	}
	return traverse(corners, progress, p)
}

// traverse interpolates across N corner points, one full circuit per
// cycle.
func traverse(corners [][2]float64, progress float64, p MotionParams) (float64, float64) {
	n := float64(len(corners))
	phase := (p.TotalCycles*progress + p.PhaseOffset) * n
	idx := int(math.Floor(phase))
	local := phase - math.Floor(phase)
	start := corners[((idx%len(corners))+len(corners))%len(corners)]
	end := corners[(((idx+1)%len(corners))+len(corners))%len(corners)]
	pan := start[0] + local*(end[0]-start[0])
	tilt := start[1] + local*(end[1]-start[1])
	return pan, tilt
}

// PulsePeriodTicks returns the square-wave period for a pulse effect in
// ticks. Faster rates shorten the period; it never drops below 2 so the
// wave always has an on and an off phase.
func PulsePeriodTicks(rate float64) int {
	if rate <= 0 {
		rate = 1
	}
	period := int(math.Round(8 / rate))
	if period < 2 {
		period = 2
	}
	return period
}

// PulseLevel evaluates a ~50% duty square wave at the given tick.
func PulseLevel(base float64, rate float64, tickIndex int) float64 {
	period := PulsePeriodTicks(rate)
	if tickIndex%period < (period+1)/2 {
		return base
	}
	return 0
}

// flickerDepth bounds how far flicker can dip below the base level.
const flickerDepth = 0.4

// FlickerLevel reduces base by a deterministic pseudorandom amount
// seeded from the tick and fixture indices. No wall-clock entropy: the
// live path and a re-run of the same show produce identical output.
func FlickerLevel(base float64, tickIndex, fixtureIndex int) float64 {
	h := fnv.New32a()
	var buf [8]byte
	buf[0] = byte(tickIndex)
	buf[1] = byte(tickIndex >> 8)
	buf[2] = byte(tickIndex >> 16)
	buf[3] = byte(tickIndex >> 24)
	buf[4] = byte(fixtureIndex)
	buf[5] = byte(fixtureIndex >> 8)
	buf[6] = byte(fixtureIndex >> 16)
	buf[7] = byte(fixtureIndex >> 24)
	_, _ = h.Write(buf[:])
	unit := float64(h.Sum32()) / float64(math.MaxUint32)
	return base * (1 - flickerDepth*unit)
}

// WheelEntry is one colour on a fixed colour wheel.
type WheelEntry struct {
	R, G, B float64
	Value   byte
}

// DefaultWheel is the fallback palette for fixtures that expose a colour
// wheel instead of RGB channels. DMX values are wheel slot midpoints.
var DefaultWheel = []WheelEntry{
	{255, 255, 255, 5},   // white
	{255, 0, 0, 16},      // red
	{255, 127, 0, 27},    // orange
	{255, 255, 0, 43},    // yellow
	{0, 255, 0, 64},      // green
	{0, 255, 255, 85},    // cyan
	{0, 0, 255, 106},     // blue
	{255, 0, 255, 127},   // magenta
	{255, 0, 127, 148},   // pink
}

// NearestWheelValue maps an RGB colour to the closest DefaultWheel entry
// by Euclidean distance.
func NearestWheelValue(r, g, b float64) byte {
	return NearestWheelEntry(r, g, b, DefaultWheel)
}

// NearestWheelEntry maps an RGB colour to the closest entry of an
// arbitrary wheel (e.g. one read from a fixture definition).
func NearestWheelEntry(r, g, b float64, wheel []WheelEntry) byte {
	best := byte(0)
	bestDist := math.Inf(1)
	for _, entry := range wheel {
		dr, dg, db := r-entry.R, g-entry.G, b-entry.B
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			bestDist = dist
			best = entry.Value
		}
	}
	return best
}

// goboSpacing is the DMX distance between adjacent gobo slots.
const goboSpacing = 25

// GoboValue maps a gobo slot index to its DMX value.
func GoboValue(index int) byte {
	if index < 0 {
		index = 0
	}
	v := index * goboSpacing
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// PrismValue returns the DMX value for the prism channel.
func PrismValue(enabled bool) byte {
	if enabled {
		return 128
	}
	return 0
}

// ParseRate parses speed strings like "1", "2", "0.5" or "1/2" into a
// multiplier. Unparsable input falls back to 1.0.
func ParseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1
	}
	if num, den, found := strings.Cut(s, "/"); found {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN != nil || errD != nil || d == 0 {
			return 1
		}
		return n / d
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 1
	}
	return v
}

// ParseLissajousRatio parses "f1:f2" frequency ratios, defaulting to 1:2.
func ParseLissajousRatio(s string) (int, int) {
	if a, b, found := strings.Cut(strings.TrimSpace(s), ":"); found {
		fa, errA := strconv.Atoi(strings.TrimSpace(a))
		fb, errB := strconv.Atoi(strings.TrimSpace(b))
		if errA == nil && errB == nil && fa > 0 && fb > 0 {
			return fa, fb
		}
	}
	return 1, 2
}

// TotalCycles derives how many motion cycles a block of the given
// duration completes: one cycle per bar at the reference tempo, scaled
// by the rate multiplier. Tempo changes mid-show change the result tick
// by tick.
func TotalCycles(durationSeconds, bpm, beatsPerBar, rate float64) float64 {
	if bpm <= 0 || beatsPerBar <= 0 || durationSeconds <= 0 {
		return 0
	}
	secondsPerBar := beatsPerBar * 60 / bpm
	return durationSeconds / secondsPerBar * rate
}

func clampF(v, lo, hi float64) float64 {
	if hi > lo {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
	}
	return v
}

// ClampDMX bounds a float value into a DMX byte.
func ClampDMX(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(math.Round(v))
}
