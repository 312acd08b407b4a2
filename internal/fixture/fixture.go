/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fixture resolves fixture capabilities to DMX addresses. A
// fixture definition (parsed from the library's JSON files) describes
// channels by preset name; a Map projects one patched fixture's mode
// onto role -> absolute address lookups for the compositor and
// compiler. Missing roles resolve to empty slices, never errors.
package fixture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/varghele/QLCplusShowCreator/internal/effects"
)

// Role names a controllable aspect of a fixture.
type Role string

const (
	RoleMasterIntensity Role = "master_intensity"
	RoleRed             Role = "red"
	RoleGreen           Role = "green"
	RoleBlue            Role = "blue"
	RoleWhite           Role = "white"
	RoleAmber           Role = "amber"
	RoleUV              Role = "uv"
	RoleCyan            Role = "cyan"
	RoleMagenta         Role = "magenta"
	RoleYellow          Role = "yellow"
	RoleLime            Role = "lime"
	RoleColourWheel     Role = "colour_wheel"
	RolePan             Role = "pan"
	RoleTilt            Role = "tilt"
	RolePanFine         Role = "pan_fine"
	RoleTiltFine        Role = "tilt_fine"
	RoleGobo            Role = "gobo"
	RolePrism           Role = "prism"
	RoleFocus           Role = "focus"
	RoleZoom            Role = "zoom"
)

// rolePresets maps each role to the definition preset names that serve it.
var rolePresets = map[Role][]string{
	RoleMasterIntensity: {"IntensityMasterDimmer", "IntensityDimmer"},
	RoleRed:             {"IntensityRed"},
	RoleGreen:           {"IntensityGreen"},
	RoleBlue:            {"IntensityBlue"},
	RoleWhite:           {"IntensityWhite"},
	RoleAmber:           {"IntensityAmber"},
	RoleUV:              {"IntensityUV"},
	RoleCyan:            {"IntensityCyan"},
	RoleMagenta:         {"IntensityMagenta"},
	RoleYellow:          {"IntensityYellow"},
	RoleLime:            {"IntensityLime"},
	RoleColourWheel:     {"ColorWheel", "ColorMacro"},
	RolePan:             {"PositionPan"},
	RoleTilt:            {"PositionTilt"},
	RolePanFine:         {"PositionPanFine"},
	RoleTiltFine:        {"PositionTiltFine"},
	RoleGobo:            {"GoboWheel", "Gobo"},
	RolePrism:           {"Prism", "PrismRotation"},
	RoleFocus:           {"BeamFocusNearFar"},
	RoleZoom:            {"BeamZoomSmallBig"},
}

// Address is an absolute DMX location.
type Address struct {
	Universe int
	Offset   int // 0-511
}

// Fixture is one patched unit, as the editor configures it.
type Fixture struct {
	Universe     int    `json:"universe" yaml:"universe"`
	Address      int    `json:"address" yaml:"address"` // 1-indexed, DMX convention
	Manufacturer string `json:"manufacturer" yaml:"manufacturer"`
	Model        string `json:"model" yaml:"model"`
	Name         string `json:"name" yaml:"name"`
	Group        string `json:"group" yaml:"group"`
	Mode         string `json:"mode" yaml:"current_mode"`
}

// Group is a named set of fixtures driven by one lane.
type Group struct {
	Name     string    `json:"name" yaml:"name"`
	Fixtures []Fixture `json:"fixtures" yaml:"fixtures"`
}

// Capability is one DMX range on a channel, optionally tagged with the
// colour it produces (wheel slots).
type Capability struct {
	Min    int    `json:"min"`
	Max    int    `json:"max"`
	Name   string `json:"name"`
	Colour string `json:"color"` // "#RRGGBB" for wheel slots
}

// Channel is one definition channel.
type Channel struct {
	Name         string       `json:"name"`
	Preset       string       `json:"preset"`
	Group        string       `json:"group"`
	Capabilities []Capability `json:"capabilities"`
}

// Mode lists the channel names active in one fixture mode, in slot order.
type Mode struct {
	Name     string   `json:"name"`
	Channels []string `json:"channels"`
}

// Definition is a parsed fixture definition.
type Definition struct {
	Manufacturer string    `json:"manufacturer"`
	Model        string    `json:"model"`
	Channels     []Channel `json:"channels"`
	Modes        []Mode    `json:"modes"`
}

func (d *Definition) mode(name string) (*Mode, bool) {
	for i := range d.Modes {
		if d.Modes[i].Name == name {
			return &d.Modes[i], true
		}
	}
	return nil, false
}

func (d *Definition) channel(name string) (*Channel, bool) {
	for i := range d.Channels {
		if d.Channels[i].Name == name {
			return &d.Channels[i], true
		}
	}
	return nil, false
}

// Library is a loaded set of fixture definitions keyed by
// manufacturer/model.
type Library struct {
	defs map[string]*Definition
}

func defKey(manufacturer, model string) string {
	return strings.ToLower(manufacturer) + "/" + strings.ToLower(model)
}

// LoadLibrary reads every .json definition under dir.
func LoadLibrary(dir string) (*Library, error) {
	lib := &Library{defs: make(map[string]*Definition)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture library %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read fixture definition %s: %w", path, err)
		}
		var def Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse fixture definition %s: %w", path, err)
		}
		lib.Add(&def)
	}
	return lib, nil
}

// NewLibrary creates an empty in-memory library.
func NewLibrary() *Library {
	return &Library{defs: make(map[string]*Definition)}
}

// Add registers a definition.
func (l *Library) Add(def *Definition) {
	l.defs[defKey(def.Manufacturer, def.Model)] = def
}

// Definition looks up a definition by manufacturer and model.
func (l *Library) Definition(manufacturer, model string) (*Definition, bool) {
	def, ok := l.defs[defKey(manufacturer, model)]
	return def, ok
}

// Map projects one patched fixture onto role lookups.
type Map struct {
	Fixture  Fixture
	offsets  map[Role][]int
	wheel    []effects.WheelEntry
	channels int
}

// NewMap builds the role map for a fixture against its definition,
// using the fixture's configured mode.
func NewMap(fix Fixture, def *Definition) (*Map, error) {
	mode, ok := def.mode(fix.Mode)
	if !ok {
		return nil, fmt.Errorf("fixture %s: mode %q not in definition %s %s", fix.Name, fix.Mode, def.Manufacturer, def.Model)
	}

	m := &Map{Fixture: fix, offsets: make(map[Role][]int), channels: len(mode.Channels)}

	presetOffsets := make(map[string][]int)
	for slot, channelName := range mode.Channels {
		ch, ok := def.channel(channelName)
		if !ok {
			continue
		}
		presetOffsets[ch.Preset] = append(presetOffsets[ch.Preset], slot)
		if ch.Preset == "ColorWheel" || ch.Preset == "ColorMacro" {
			m.wheel = append(m.wheel, wheelEntries(ch.Capabilities)...)
		}
	}

	for role, presets := range rolePresets {
		for _, preset := range presets {
			m.offsets[role] = append(m.offsets[role], presetOffsets[preset]...)
		}
	}
	return m, nil
}

// wheelEntries converts colour-tagged capabilities into wheel entries,
// taking the midpoint of each DMX range.
func wheelEntries(caps []Capability) []effects.WheelEntry {
	var out []effects.WheelEntry
	for _, c := range caps {
		r, g, b, ok := parseHexColour(c.Colour)
		if !ok {
			continue
		}
		out = append(out, effects.WheelEntry{R: r, G: g, B: b, Value: byte((c.Min + c.Max) / 2)})
	}
	return out
}

func parseHexColour(s string) (r, g, b float64, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	rv, errR := strconv.ParseUint(s[0:2], 16, 8)
	gv, errG := strconv.ParseUint(s[2:4], 16, 8)
	bv, errB := strconv.ParseUint(s[4:6], 16, 8)
	if errR != nil || errG != nil || errB != nil {
		return 0, 0, 0, false
	}
	return float64(rv), float64(gv), float64(bv), true
}

// Channels returns the fixture's footprint in its current mode.
func (m *Map) Channels() int {
	return m.channels
}

// Has reports whether the fixture exposes the role in its current mode.
func (m *Map) Has(role Role) bool {
	return len(m.offsets[role]) > 0
}

// Resolve returns the absolute addresses serving the role. Empty when
// the role is absent; never an error.
func (m *Map) Resolve(role Role) []Address {
	offs := m.offsets[role]
	if len(offs) == 0 {
		return nil
	}
	base := m.Fixture.Address - 1
	out := make([]Address, 0, len(offs))
	for _, off := range offs {
		abs := base + off
		if abs < 0 || abs >= 512 {
			continue
		}
		out = append(out, Address{Universe: m.Fixture.Universe, Offset: abs})
	}
	return out
}

// Wheel returns the fixture's own colour-wheel palette, or the shared
// default palette when the definition does not describe one.
func (m *Map) Wheel() []effects.WheelEntry {
	if len(m.wheel) > 0 {
		return m.wheel
	}
	return effects.DefaultWheel
}

// HasRGB reports whether the fixture mixes colour additively.
func (m *Map) HasRGB() bool {
	return m.Has(RoleRed) || m.Has(RoleGreen) || m.Has(RoleBlue)
}

// HasCMY reports whether the fixture mixes colour subtractively.
// Fixtures with neither emitter set fall back to the colour wheel.
func (m *Map) HasCMY() bool {
	return m.Has(RoleCyan) || m.Has(RoleMagenta) || m.Has(RoleYellow)
}

// Capabilities summarizes what a set of fixture maps (one group) can do.
type Capabilities struct {
	Intensity bool
	Colour    bool
	Position  bool
	Special   bool
}

// GroupCapabilities aggregates role presence over a group's maps.
func GroupCapabilities(maps []*Map) Capabilities {
	var c Capabilities
	for _, m := range maps {
		if m.Has(RoleMasterIntensity) {
			c.Intensity = true
		}
		if m.HasRGB() || m.HasCMY() || m.Has(RoleColourWheel) ||
			m.Has(RoleWhite) || m.Has(RoleAmber) || m.Has(RoleUV) || m.Has(RoleLime) {
			c.Colour = true
		}
		if m.Has(RolePan) || m.Has(RoleTilt) {
			c.Position = true
		}
		if m.Has(RoleGobo) || m.Has(RolePrism) || m.Has(RoleFocus) || m.Has(RoleZoom) {
			c.Special = true
		}
	}
	return c
}
