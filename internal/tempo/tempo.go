/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tempo models the show's tempo map: an ordered list of parts,
// each with a time signature, target BPM and a transition style from the
// previous part. Lookups are defined for every t >= 0.
package tempo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultBPM is used when no tempo map is present.
const DefaultBPM = 120.0

// transitionCurve shapes gradual BPM ramps. The exponent slightly fronts
// the change so ramps feel musical rather than mechanical.
const transitionCurve = 0.52

// Transition selects how a part reaches its BPM from the previous part.
type Transition string

const (
	TransitionInstant Transition = "instant"
	TransitionGradual Transition = "gradual"
)

// Signature is a parsed time signature.
type Signature struct {
	Numerator   int
	Denominator int
}

// ParseSignature parses strings like "4/4" or "6/8". Malformed input
// falls back to 4/4.
func ParseSignature(s string) Signature {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) == 2 {
		num, errN := strconv.Atoi(strings.TrimSpace(parts[0]))
		den, errD := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errN == nil && errD == nil && num > 0 && den > 0 {
			return Signature{Numerator: num, Denominator: den}
		}
	}
	return Signature{Numerator: 4, Denominator: 4}
}

func (s Signature) String() string {
	return fmt.Sprintf("%d/%d", s.Numerator, s.Denominator)
}

// BeatsPerBar normalizes the signature to quarter-note beats.
func (s Signature) BeatsPerBar() float64 {
	if s.Denominator == 0 {
		return 4
	}
	return float64(s.Numerator) * 4 / float64(s.Denominator)
}

// Part is one region of the tempo map.
type Part struct {
	Name       string
	Signature  Signature
	BPM        float64
	Bars       int
	Transition Transition

	// Derived on Load.
	Start    float64
	Duration float64
}

// Map holds the ordered parts with derived start offsets.
type Map struct {
	parts      []Part
	defaultBPM float64
}

// NewMap builds a tempo map from ordered parts, deriving each part's
// start offset and duration. A nil or empty parts list is valid and
// yields the default tempo everywhere.
func NewMap(parts []Part) *Map {
	m := &Map{defaultBPM: DefaultBPM}
	m.Load(parts)
	return m
}

// SetDefaultBPM overrides the tempo reported outside any part.
func (m *Map) SetDefaultBPM(bpm float64) {
	if bpm > 0 {
		m.defaultBPM = bpm
	}
}

// Load replaces the part list and recomputes derived timing.
func (m *Map) Load(parts []Part) {
	m.parts = make([]Part, len(parts))
	copy(m.parts, parts)

	current := 0.0
	var previousBPM float64
	havePrevious := false

	for i := range m.parts {
		p := &m.parts[i]
		p.Start = current
		if havePrevious {
			p.Duration = partDuration(*p, previousBPM)
		} else {
			p.Duration = partDuration(*p, p.BPM)
		}
		current += p.Duration
		previousBPM = p.BPM
		havePrevious = true
	}
}

// partDuration returns the part length in seconds, accumulating bar by
// bar for gradual transitions.
func partDuration(p Part, previousBPM float64) float64 {
	beatsPerBar := p.Signature.BeatsPerBar()
	if p.BPM <= 0 || p.Bars <= 0 {
		return 0
	}

	if p.Transition != TransitionGradual || previousBPM <= 0 || previousBPM == p.BPM {
		totalBeats := float64(p.Bars) * beatsPerBar
		return totalBeats * 60.0 / p.BPM
	}

	total := 0.0
	for bar := 0; bar < p.Bars; bar++ {
		progress := math.Pow(float64(bar)/float64(p.Bars), transitionCurve)
		bpm := previousBPM + (p.BPM-previousBPM)*progress
		total += beatsPerBar * 60.0 / bpm
	}
	return total
}

// Parts returns a copy of the derived part list.
func (m *Map) Parts() []Part {
	out := make([]Part, len(m.parts))
	copy(out, m.parts)
	return out
}

// TotalDuration returns the end time of the last part.
func (m *Map) TotalDuration() float64 {
	if len(m.parts) == 0 {
		return 0
	}
	last := m.parts[len(m.parts)-1]
	return last.Start + last.Duration
}

// PartAt returns the part covering t, or the last part for t past the
// end, or nil when the map is empty or t precedes the first part.
func (m *Map) PartAt(t float64) *Part {
	for i := range m.parts {
		p := &m.parts[i]
		if t >= p.Start && t < p.Start+p.Duration {
			return p
		}
	}
	if n := len(m.parts); n > 0 {
		last := &m.parts[n-1]
		if t >= last.Start+last.Duration {
			return last
		}
	}
	return nil
}

// TempoAt reports the BPM and time signature at t. Gradual parts
// interpolate from the previous part's BPM along the transition curve.
func (m *Map) TempoAt(t float64) (bpm float64, sig Signature) {
	if m == nil {
		return DefaultBPM, Signature{Numerator: 4, Denominator: 4}
	}

	part := m.PartAt(t)
	if part == nil {
		return m.defaultBPM, Signature{Numerator: 4, Denominator: 4}
	}

	if part.Transition != TransitionGradual {
		return part.BPM, part.Signature
	}

	idx := m.indexOf(part)
	previousBPM := part.BPM
	if idx > 0 {
		previousBPM = m.parts[idx-1].BPM
	}

	progress := 0.0
	if part.Duration > 0 {
		progress = (t - part.Start) / part.Duration
		progress = math.Min(1, math.Max(0, progress))
	}
	curved := math.Pow(progress, transitionCurve)
	return previousBPM + (part.BPM-previousBPM)*curved, part.Signature
}

func (m *Map) indexOf(part *Part) int {
	for i := range m.parts {
		if &m.parts[i] == part {
			return i
		}
	}
	return -1
}

// NearestBeat snaps t to the closest beat boundary for grid alignment.
// Inside gradual transitions the input is returned unchanged; exact beat
// positions there would need integrating the ramp.
func (m *Map) NearestBeat(t float64) float64 {
	if len(m.parts) == 0 {
		secondsPerBeat := 60.0 / m.defaultBPM
		return math.Round(t/secondsPerBeat) * secondsPerBeat
	}

	part := m.PartAt(t)
	if part == nil {
		if t < 0 {
			return 0
		}
		return t
	}
	if part.Transition == TransitionGradual {
		return t
	}

	secondsPerBeat := 60.0 / part.BPM
	inPart := t - part.Start
	floorBeat := math.Floor(inPart / secondsPerBeat)
	floorTime := part.Start + floorBeat*secondsPerBeat
	ceilTime := floorTime + secondsPerBeat
	if t-floorTime <= ceilTime-t {
		return floorTime
	}
	return ceilTime
}
