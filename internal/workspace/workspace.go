/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package workspace loads and saves the YAML project file the editor
// produces: patched fixtures, shows with their tempo parts, and the
// timeline lanes. Document types are plain serialization structs;
// Build methods convert them into the runtime model.
package workspace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/varghele/QLCplusShowCreator/internal/effects"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/tempo"
	"github.com/varghele/QLCplusShowCreator/internal/timeline"
)

// ArtNet holds output addressing.
type ArtNet struct {
	Target string `yaml:"target"`
	Port   int    `yaml:"port"`
}

// Part is one tempo section of a show.
type Part struct {
	Name       string  `yaml:"name"`
	Signature  string  `yaml:"signature"`
	BPM        float64 `yaml:"bpm"`
	Bars       int     `yaml:"num_bars"`
	Transition string  `yaml:"transition"`
}

// IntensityBlock serializes one intensity sub-block.
type IntensityBlock struct {
	ID     string  `yaml:"id,omitempty"`
	Start  float64 `yaml:"start"`
	End    float64 `yaml:"end"`
	Level  float64 `yaml:"level"`
	Effect string  `yaml:"effect,omitempty"`
	Rate   string  `yaml:"rate,omitempty"`
}

// ColourBlock serializes one colour sub-block.
type ColourBlock struct {
	ID    string  `yaml:"id,omitempty"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Red   float64 `yaml:"red"`
	Green float64 `yaml:"green"`
	Blue  float64 `yaml:"blue"`
	White float64 `yaml:"white,omitempty"`
	Amber float64 `yaml:"amber,omitempty"`
	UV    float64 `yaml:"uv,omitempty"`

	// Subtractive emitters, for CMY colour-mixing heads.
	Cyan    float64 `yaml:"cyan,omitempty"`
	Magenta float64 `yaml:"magenta,omitempty"`
	Yellow  float64 `yaml:"yellow,omitempty"`
	Lime    float64 `yaml:"lime,omitempty"`
}

// PositionBlock serializes one position sub-block.
type PositionBlock struct {
	ID             string  `yaml:"id,omitempty"`
	Start          float64 `yaml:"start"`
	End            float64 `yaml:"end"`
	Shape          string  `yaml:"shape"`
	Pan            float64 `yaml:"pan"`
	Tilt           float64 `yaml:"tilt"`
	PanAmplitude   float64 `yaml:"pan_amplitude"`
	TiltAmplitude  float64 `yaml:"tilt_amplitude"`
	PanMin         float64 `yaml:"pan_min"`
	PanMax         float64 `yaml:"pan_max"`
	TiltMin        float64 `yaml:"tilt_min"`
	TiltMax        float64 `yaml:"tilt_max"`
	Rate           string  `yaml:"rate,omitempty"`
	PhaseOffset    float64 `yaml:"phase_offset,omitempty"`
	LissajousRatio string  `yaml:"lissajous_ratio,omitempty"`
}

// SpecialBlock serializes one special sub-block.
type SpecialBlock struct {
	ID           string  `yaml:"id,omitempty"`
	Start        float64 `yaml:"start"`
	End          float64 `yaml:"end"`
	GoboIndex    int     `yaml:"gobo_index"`
	PrismEnabled bool    `yaml:"prism"`
	Focus        float64 `yaml:"focus,omitempty"`
	Zoom         float64 `yaml:"zoom,omitempty"`
}

// Envelope serializes one envelope with its four sublanes.
type Envelope struct {
	Name      string           `yaml:"name"`
	Intensity []IntensityBlock `yaml:"intensity,omitempty"`
	Colour    []ColourBlock    `yaml:"colour,omitempty"`
	Position  []PositionBlock  `yaml:"position,omitempty"`
	Special   []SpecialBlock   `yaml:"special,omitempty"`
}

// Lane serializes one timeline lane.
type Lane struct {
	Name      string     `yaml:"name"`
	Group     string     `yaml:"group"`
	Muted     bool       `yaml:"muted,omitempty"`
	Solo      bool       `yaml:"solo,omitempty"`
	Envelopes []Envelope `yaml:"envelopes,omitempty"`
}

// Show is one song with its tempo structure and lanes.
type Show struct {
	Name  string `yaml:"name"`
	Parts []Part `yaml:"parts,omitempty"`
	Lanes []Lane `yaml:"lanes,omitempty"`
}

// Document is the root of a workspace file.
type Document struct {
	Name           string            `yaml:"name"`
	FixtureLibrary string            `yaml:"fixture_library,omitempty"`
	ArtNet         ArtNet            `yaml:"artnet,omitempty"`
	Fixtures       []fixture.Fixture `yaml:"fixtures,omitempty"`
	Shows          []Show            `yaml:"shows,omitempty"`
}

// Load reads a workspace file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse workspace %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes a workspace file.
func Save(path string, doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal workspace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write workspace %s: %w", path, err)
	}
	return nil
}

// Show looks up a show by name.
func (d *Document) Show(name string) (*Show, bool) {
	for i := range d.Shows {
		if d.Shows[i].Name == name {
			return &d.Shows[i], true
		}
	}
	return nil, false
}

// Groups collects the fixture groups referenced by the patch, keyed by
// group name in the fixtures' order.
func (d *Document) Groups() []fixture.Group {
	index := make(map[string]int)
	var groups []fixture.Group
	for _, f := range d.Fixtures {
		name := f.Group
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, fixture.Group{Name: name})
		}
		groups[i].Fixtures = append(groups[i].Fixtures, f)
	}
	return groups
}

// TempoMap builds the show's tempo map.
func (s *Show) TempoMap() *tempo.Map {
	parts := make([]tempo.Part, 0, len(s.Parts))
	for _, p := range s.Parts {
		parts = append(parts, tempo.Part{
			Name:       p.Name,
			Signature:  tempo.ParseSignature(p.Signature),
			BPM:        p.BPM,
			Bars:       p.Bars,
			Transition: tempo.Transition(p.Transition),
		})
	}
	return tempo.NewMap(parts)
}

// BuildLanes converts the show's lanes to the runtime model. Block IDs
// from the file are kept when present so identity survives reloads.
func (s *Show) BuildLanes() []*timeline.Lane {
	lanes := make([]*timeline.Lane, 0, len(s.Lanes))
	for _, ld := range s.Lanes {
		lane := timeline.NewLane(ld.Name, ld.Group)
		lane.Muted = ld.Muted
		lane.Solo = ld.Solo
		for _, ed := range ld.Envelopes {
			lane.AddEnvelope(buildEnvelope(ed))
		}
		lanes = append(lanes, lane)
	}
	return lanes
}

func buildEnvelope(ed Envelope) *timeline.Envelope {
	env := timeline.NewEnvelope(ed.Name)
	for _, b := range ed.Intensity {
		blk := timeline.NewIntensityBlock(b.Start, b.End, b.Level, effects.IntensityEffect(orDefault(b.Effect, string(effects.IntensityStatic))), orDefault(b.Rate, "1"))
		if b.ID != "" {
			blk.ID = b.ID
		}
		env.AddIntensity(blk)
	}
	for _, b := range ed.Colour {
		blk := timeline.NewColourBlock(b.Start, b.End, b.Red, b.Green, b.Blue)
		blk.White, blk.Amber, blk.UV = b.White, b.Amber, b.UV
		blk.Cyan, blk.Magenta, blk.Yellow, blk.Lime = b.Cyan, b.Magenta, b.Yellow, b.Lime
		if b.ID != "" {
			blk.ID = b.ID
		}
		env.AddColour(blk)
	}
	for _, b := range ed.Position {
		blk := timeline.NewPositionBlock(b.Start, b.End, effects.Shape(b.Shape))
		if b.Pan != 0 || b.Tilt != 0 {
			blk.Pan, blk.Tilt = b.Pan, b.Tilt
		}
		if b.PanAmplitude != 0 || b.TiltAmplitude != 0 {
			blk.PanAmplitude, blk.TiltAmplitude = b.PanAmplitude, b.TiltAmplitude
		}
		if b.PanMax != 0 || b.TiltMax != 0 {
			blk.PanMin, blk.PanMax = b.PanMin, b.PanMax
			blk.TiltMin, blk.TiltMax = b.TiltMin, b.TiltMax
		}
		blk.Rate = orDefault(b.Rate, "1")
		blk.PhaseOffset = b.PhaseOffset
		blk.LissajousRatio = b.LissajousRatio
		if b.ID != "" {
			blk.ID = b.ID
		}
		env.AddPosition(blk)
	}
	for _, b := range ed.Special {
		blk := timeline.NewSpecialBlock(b.Start, b.End)
		blk.GoboIndex = b.GoboIndex
		blk.PrismEnabled = b.PrismEnabled
		blk.Focus, blk.Zoom = b.Focus, b.Zoom
		if b.ID != "" {
			blk.ID = b.ID
		}
		env.AddSpecial(blk)
	}
	return env
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
