/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeline holds the scheduling data model: envelopes owning
// four independent sublanes of timed blocks, and lanes binding envelopes
// to fixture groups. The compositor and compiler read this model; only
// the external editor writes it.
package timeline

import (
	"github.com/google/uuid"

	"github.com/varghele/QLCplusShowCreator/internal/effects"
)

// Kind identifies one of the four sublanes inside an envelope.
type Kind string

const (
	KindIntensity Kind = "intensity"
	KindColour    Kind = "colour"
	KindPosition  Kind = "position"
	KindSpecial   Kind = "special"
)

// Kinds lists the sublane kinds in composition order.
var Kinds = []Kind{KindIntensity, KindColour, KindPosition, KindSpecial}

// Span is a half-open [Start,End) interval in seconds.
type Span struct {
	Start float64
	End   float64
}

// Duration returns the span length, never negative.
func (s Span) Duration() float64 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Contains reports whether t falls inside the half-open interval.
func (s Span) Contains(t float64) bool {
	return t >= s.Start && t < s.End
}

// Overlaps reports whether the span intersects [a,b).
func (s Span) Overlaps(a, b float64) bool {
	return s.Start < b && s.End > a
}

// Progress maps t to normalized [0,1] progress through the span.
func (s Span) Progress(t float64) float64 {
	d := s.Duration()
	if d <= 0 {
		return 0
	}
	p := (t - s.Start) / d
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// NewID mints a stable block identifier. Identity survives
// serialization; active-block tracking never relies on pointers.
func NewID() string {
	return uuid.NewString()
}

// IntensityBlock drives dimmer channels.
type IntensityBlock struct {
	ID        string
	Span      Span
	BaseLevel float64 // 0-255
	Effect    effects.IntensityEffect
	Rate      string // multiplier string, e.g. "1", "2", "1/2"
}

// ColourBlock drives colour channels. Values are 0-255 per emitter;
// RGB and CMY are independent sets so mixed rigs get both written.
type ColourBlock struct {
	ID      string
	Span    Span
	Red     float64
	Green   float64
	Blue    float64
	White   float64
	Amber   float64
	UV      float64
	Cyan    float64
	Magenta float64
	Yellow  float64
	Lime    float64
}

// PositionBlock drives pan/tilt channels with a procedural shape.
type PositionBlock struct {
	ID             string
	Span           Span
	Shape          effects.Shape
	Pan, Tilt      float64 // center
	PanAmplitude   float64
	TiltAmplitude  float64
	PanMin, PanMax float64
	TiltMin        float64
	TiltMax        float64
	Rate           string
	PhaseOffset    float64 // cycles, for multi-fixture desynchronization
	LissajousRatio string  // "f1:f2"
}

// SpecialBlock drives gobo, prism, focus and zoom channels.
type SpecialBlock struct {
	ID           string
	Span         Span
	GoboIndex    int
	PrismEnabled bool
	Focus        float64
	Zoom         float64
}

// NewIntensityBlock creates an intensity block with a fresh ID.
func NewIntensityBlock(start, end, level float64, effect effects.IntensityEffect, rate string) IntensityBlock {
	return IntensityBlock{ID: NewID(), Span: Span{Start: start, End: end}, BaseLevel: level, Effect: effect, Rate: rate}
}

// NewColourBlock creates a colour block with a fresh ID.
func NewColourBlock(start, end, r, g, b float64) ColourBlock {
	return ColourBlock{ID: NewID(), Span: Span{Start: start, End: end}, Red: r, Green: g, Blue: b}
}

// NewPositionBlock creates a position block with a fresh ID and full
// pan/tilt travel.
func NewPositionBlock(start, end float64, shape effects.Shape) PositionBlock {
	return PositionBlock{
		ID:    NewID(),
		Span:  Span{Start: start, End: end},
		Shape: shape,
		Pan:   128, Tilt: 128,
		PanAmplitude: 64, TiltAmplitude: 64,
		PanMin: 0, PanMax: 255,
		TiltMin: 0, TiltMax: 255,
		Rate: "1",
	}
}

// NewSpecialBlock creates a special block with a fresh ID.
func NewSpecialBlock(start, end float64) SpecialBlock {
	return SpecialBlock{ID: NewID(), Span: Span{Start: start, End: end}}
}
