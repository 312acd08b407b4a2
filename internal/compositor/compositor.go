/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package compositor synthesizes per-tick DMX state from the timeline
// model. Each Tick is synchronous and bounded: baseline first, then
// membership update (start/end detection), then conflict resolution and
// value synthesis through the capability resolver. It owns the
// per-universe buffers; sending is the transport's problem.
package compositor

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/effects"
	"github.com/varghele/QLCplusShowCreator/internal/events"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/telemetry"
	"github.com/varghele/QLCplusShowCreator/internal/tempo"
	"github.com/varghele/QLCplusShowCreator/internal/timeline"
)

// Baseline is the visible default a mapped fixture shows when no block
// targets it. Not a blackout: fixtures should never vanish just because
// the timeline is silent around them.
const (
	BaselineIntensity = 10
	BaselineRed       = 255
	BaselineGreen     = 240
	BaselineBlue      = 200
	BaselinePan       = 128
	BaselineTilt      = 128
)

// TempoProvider supplies the tempo in effect at an absolute show time.
type TempoProvider interface {
	TempoAt(t float64) (bpm float64, sig tempo.Signature)
}

// Compositor composites lanes onto per-universe DMX buffers.
type Compositor struct {
	log   zerolog.Logger
	bus   *events.Bus
	tempo TempoProvider

	lanes   []*timeline.Lane
	groups  map[string][]*fixture.Map
	buffers map[int]*[512]byte

	// active tracks block IDs per lane and sublane kind across ticks so
	// start/end transitions fire exactly once per block.
	active    map[string]map[timeline.Kind]map[string]bool
	tickIndex int
}

// New creates a compositor. A nil tempo provider means a fixed default
// tempo; a nil bus disables event publication.
func New(log zerolog.Logger, bus *events.Bus, provider TempoProvider) *Compositor {
	return &Compositor{
		log:     log.With().Str("component", "compositor").Logger(),
		bus:     bus,
		tempo:   provider,
		groups:  make(map[string][]*fixture.Map),
		buffers: make(map[int]*[512]byte),
		active:  make(map[string]map[timeline.Kind]map[string]bool),
	}
}

// AddGroup registers the fixture maps behind a group name and allocates
// buffers for every universe the group touches.
func (c *Compositor) AddGroup(name string, maps []*fixture.Map) {
	c.groups[name] = maps
	for _, m := range maps {
		c.buffer(m.Fixture.Universe)
	}
}

// SetLanes replaces the composited lane set and clears block tracking.
func (c *Compositor) SetLanes(lanes []*timeline.Lane) {
	c.lanes = lanes
	c.active = make(map[string]map[timeline.Kind]map[string]bool)
}

// Reset clears block tracking and the tick counter, for a seek or a
// fresh playback run.
func (c *Compositor) Reset() {
	c.active = make(map[string]map[timeline.Kind]map[string]bool)
	c.tickIndex = 0
}

// TickIndex returns the number of ticks composited since the last Reset.
func (c *Compositor) TickIndex() int {
	return c.tickIndex
}

// Universes returns the universes with allocated buffers, sorted.
func (c *Compositor) Universes() []int {
	out := make([]int, 0, len(c.buffers))
	for u := range c.buffers {
		out = append(out, u)
	}
	sort.Ints(out)
	return out
}

// Buffer returns a copy of the 512-byte frame for a universe. Unknown
// universes read as blackout.
func (c *Compositor) Buffer(universe int) []byte {
	out := make([]byte, 512)
	if buf, ok := c.buffers[universe]; ok {
		copy(out, buf[:])
	}
	return out
}

func (c *Compositor) buffer(universe int) *[512]byte {
	buf, ok := c.buffers[universe]
	if !ok {
		buf = new([512]byte)
		c.buffers[universe] = buf
	}
	return buf
}

// Tick composites the show state at absolute time t into the buffers.
// Never blocks and never panics outward; all failures degrade to
// skipped channels.
func (c *Compositor) Tick(t float64) {
	bpm, sig := c.tempoAt(t)

	for _, buf := range c.buffers {
		*buf = [512]byte{}
	}
	c.applyBaseline()

	anySolo := timeline.AnySolo(c.lanes)
	for _, lane := range c.lanes {
		audible := lane.Audible(anySolo)
		c.updateMembership(lane, t, audible)
		if !audible {
			continue
		}
		maps := c.groups[lane.FixtureGroup]
		if len(maps) == 0 {
			continue
		}
		c.composeLane(lane, maps, t, bpm, sig)
	}
	c.tickIndex++
}

func (c *Compositor) tempoAt(t float64) (float64, tempo.Signature) {
	if c.tempo == nil {
		return tempo.DefaultBPM, tempo.Signature{Numerator: 4, Denominator: 4}
	}
	return c.tempo.TempoAt(t)
}

// applyBaseline sets every mapped fixture to its visible default.
func (c *Compositor) applyBaseline() {
	for _, maps := range c.groups {
		for _, m := range maps {
			c.writeQuiet(m, fixture.RoleMasterIntensity, BaselineIntensity)
			if m.HasRGB() {
				c.writeQuiet(m, fixture.RoleRed, BaselineRed)
				c.writeQuiet(m, fixture.RoleGreen, BaselineGreen)
				c.writeQuiet(m, fixture.RoleBlue, BaselineBlue)
			} else if m.Has(fixture.RoleColourWheel) {
				c.writeQuiet(m, fixture.RoleColourWheel,
					effects.NearestWheelEntry(BaselineRed, BaselineGreen, BaselineBlue, m.Wheel()))
			}
			c.writeQuiet(m, fixture.RolePan, BaselinePan)
			c.writeQuiet(m, fixture.RoleTilt, BaselineTilt)
		}
	}
}

// updateMembership diffs the active-ID sets against the previous tick
// and fires start/end transitions. Runs before value synthesis, every
// tick, including for inaudible lanes so their blocks end cleanly.
func (c *Compositor) updateMembership(lane *timeline.Lane, t float64, audible bool) {
	cur := make(map[timeline.Kind]map[string]bool, len(timeline.Kinds))
	for _, kind := range timeline.Kinds {
		set := make(map[string]bool)
		if audible {
			for _, id := range lane.ActiveIDsAt(kind, t) {
				set[id] = true
			}
		}
		cur[kind] = set
	}

	prev := c.active[lane.Name]
	for _, kind := range timeline.Kinds {
		for id := range cur[kind] {
			if prev == nil || !prev[kind][id] {
				c.BlockStarted(lane.FixtureGroup, id, kind, t)
			}
		}
		if prev == nil {
			continue
		}
		for id := range prev[kind] {
			if !cur[kind][id] {
				c.BlockEnded(lane.FixtureGroup, kind)
			}
		}
	}
	c.active[lane.Name] = cur
}

// BlockStarted records a sub-block becoming active and publishes it.
func (c *Compositor) BlockStarted(group, blockID string, kind timeline.Kind, t float64) {
	c.log.Debug().Str("group", group).Str("block", blockID).Str("kind", string(kind)).Float64("t", t).Msg("block started")
	if c.bus != nil {
		c.bus.Publish(events.EventBlockStarted, events.Payload{
			"group": group, "block": blockID, "kind": string(kind), "t": t,
		})
	}
}

// BlockEnded records a sub-block of the given kind going inactive. The
// fixture state reverts to baseline for that kind on the same tick.
func (c *Compositor) BlockEnded(group string, kind timeline.Kind) {
	c.log.Debug().Str("group", group).Str("kind", string(kind)).Msg("block ended")
	if c.bus != nil {
		c.bus.Publish(events.EventBlockEnded, events.Payload{
			"group": group, "kind": string(kind),
		})
	}
}

func (c *Compositor) composeLane(lane *timeline.Lane, maps []*fixture.Map, t, bpm float64, sig tempo.Signature) {
	intensity := winnerIntensity(lane.IntensityAt(t))
	colour := winnerColour(lane.ColourAt(t))
	position := c.winnerPosition(lane, lane.PositionAt(t), t)
	special := c.winnerSpecial(lane, lane.SpecialAt(t), t)

	for fi, m := range maps {
		if intensity != nil {
			level := intensityLevel(*intensity, c.tickIndex, fi)
			c.write(lane, m, fixture.RoleMasterIntensity, effects.ClampDMX(level))
		}
		if colour != nil {
			c.writeColour(lane, m, *colour)
		}
		if position != nil {
			c.writePosition(lane, m, *position, t, bpm, sig, fi)
		}
		if special != nil {
			c.writeSpecial(lane, m, *special)
		}
	}
}

// intensityLevel evaluates the block's effect at the current tick.
func intensityLevel(b timeline.IntensityBlock, tickIndex, fixtureIndex int) float64 {
	switch b.Effect {
	case effects.IntensityPulse:
		return effects.PulseLevel(b.BaseLevel, effects.ParseRate(b.Rate), tickIndex)
	case effects.IntensityFlicker:
		return effects.FlickerLevel(b.BaseLevel, tickIndex, fixtureIndex)
	default:
		return b.BaseLevel
	}
}

func (c *Compositor) writeColour(lane *timeline.Lane, m *fixture.Map, b timeline.ColourBlock) {
	emitters := []struct {
		role fixture.Role
		v    float64
	}{
		{fixture.RoleRed, b.Red},
		{fixture.RoleGreen, b.Green},
		{fixture.RoleBlue, b.Blue},
		{fixture.RoleWhite, b.White},
		{fixture.RoleAmber, b.Amber},
		{fixture.RoleUV, b.UV},
		{fixture.RoleCyan, b.Cyan},
		{fixture.RoleMagenta, b.Magenta},
		{fixture.RoleYellow, b.Yellow},
		{fixture.RoleLime, b.Lime},
	}
	wrote := false
	for _, e := range emitters {
		if m.Has(e.role) {
			c.write(lane, m, e.role, effects.ClampDMX(e.v))
			wrote = true
		}
	}
	if wrote {
		return
	}
	if m.Has(fixture.RoleColourWheel) {
		c.write(lane, m, fixture.RoleColourWheel, effects.NearestWheelEntry(b.Red, b.Green, b.Blue, m.Wheel()))
		return
	}
	c.miss(lane, m, fixture.RoleColourWheel)
}

func (c *Compositor) writePosition(lane *timeline.Lane, m *fixture.Map, b timeline.PositionBlock, t, bpm float64, sig tempo.Signature, fixtureIndex int) {
	rate := effects.ParseRate(b.Rate)
	f1, f2 := effects.ParseLissajousRatio(b.LissajousRatio)
	params := effects.MotionParams{
		CenterPan:     b.Pan,
		CenterTilt:    b.Tilt,
		PanAmplitude:  b.PanAmplitude,
		TiltAmplitude: b.TiltAmplitude,
		PanMin:        b.PanMin,
		PanMax:        b.PanMax,
		TiltMin:       b.TiltMin,
		TiltMax:       b.TiltMax,
		PhaseOffset:   b.PhaseOffset * float64(fixtureIndex),
		FreqPan:       float64(f1),
		FreqTilt:      float64(f2),
		TotalCycles:   effects.TotalCycles(b.Span.Duration(), bpm, sig.BeatsPerBar(), rate),
	}
	pan, tilt := effects.EvalMotion(b.Shape, b.Span.Progress(t), params)

	c.write(lane, m, fixture.RolePan, effects.ClampDMX(pan))
	c.write(lane, m, fixture.RoleTilt, effects.ClampDMX(tilt))
	if m.Has(fixture.RolePanFine) {
		c.write(lane, m, fixture.RolePanFine, fineByte(pan))
	}
	if m.Has(fixture.RoleTiltFine) {
		c.write(lane, m, fixture.RoleTiltFine, fineByte(tilt))
	}
}

// fineByte spreads the fractional part of a coarse value over the fine
// channel's range.
func fineByte(v float64) byte {
	if v <= 0 || v >= 255 {
		return 0
	}
	frac := v - float64(int(v))
	return byte(frac * 255)
}

func (c *Compositor) writeSpecial(lane *timeline.Lane, m *fixture.Map, b timeline.SpecialBlock) {
	if m.Has(fixture.RoleGobo) {
		c.write(lane, m, fixture.RoleGobo, effects.GoboValue(b.GoboIndex))
	}
	if m.Has(fixture.RolePrism) {
		c.write(lane, m, fixture.RolePrism, effects.PrismValue(b.PrismEnabled))
	}
	if m.Has(fixture.RoleFocus) {
		c.write(lane, m, fixture.RoleFocus, effects.ClampDMX(b.Focus))
	}
	if m.Has(fixture.RoleZoom) {
		c.write(lane, m, fixture.RoleZoom, effects.ClampDMX(b.Zoom))
	}
}

// write resolves the role and writes v to every serving address. A
// missing mapping skips the channel and logs, never errors.
func (c *Compositor) write(lane *timeline.Lane, m *fixture.Map, role fixture.Role, v byte) {
	addrs := m.Resolve(role)
	if len(addrs) == 0 {
		c.miss(lane, m, role)
		return
	}
	for _, a := range addrs {
		c.buffer(a.Universe)[a.Offset] = v
	}
}

// writeQuiet is write without mapping-miss reporting, for baselines.
func (c *Compositor) writeQuiet(m *fixture.Map, role fixture.Role, v byte) {
	for _, a := range m.Resolve(role) {
		c.buffer(a.Universe)[a.Offset] = v
	}
}

func (c *Compositor) miss(lane *timeline.Lane, m *fixture.Map, role fixture.Role) {
	telemetry.MappingMisses.Inc()
	c.log.Debug().Str("lane", lane.Name).Str("fixture", m.Fixture.Name).Str("role", string(role)).Msg("mapping miss")
	if c.bus != nil {
		c.bus.Publish(events.EventMappingMiss, events.Payload{
			"lane": lane.Name, "fixture": m.Fixture.Name, "role": string(role),
		})
	}
}

// winnerIntensity applies latest-takes-priority over overlapping
// intensity blocks, ties broken by lexicographic ID for determinism.
func winnerIntensity(blocks []timeline.IntensityBlock) *timeline.IntensityBlock {
	var best *timeline.IntensityBlock
	for i := range blocks {
		b := &blocks[i]
		if best == nil || laterStart(b.Span, b.ID, best.Span, best.ID) {
			best = b
		}
	}
	return best
}

func winnerColour(blocks []timeline.ColourBlock) *timeline.ColourBlock {
	var best *timeline.ColourBlock
	for i := range blocks {
		b := &blocks[i]
		if best == nil || laterStart(b.Span, b.ID, best.Span, best.ID) {
			best = b
		}
	}
	return best
}

// winnerPosition resolves the exclusivity invariant for position
// blocks: at most one should be active, but an overlap never raises;
// the most recently started wins and the clash is reported.
func (c *Compositor) winnerPosition(lane *timeline.Lane, blocks []timeline.PositionBlock, t float64) *timeline.PositionBlock {
	var best *timeline.PositionBlock
	for i := range blocks {
		b := &blocks[i]
		if best == nil || laterStart(b.Span, b.ID, best.Span, best.ID) {
			best = b
		}
	}
	if len(blocks) > 1 {
		c.clash(lane, timeline.KindPosition, t)
	}
	return best
}

func (c *Compositor) winnerSpecial(lane *timeline.Lane, blocks []timeline.SpecialBlock, t float64) *timeline.SpecialBlock {
	var best *timeline.SpecialBlock
	for i := range blocks {
		b := &blocks[i]
		if best == nil || laterStart(b.Span, b.ID, best.Span, best.ID) {
			best = b
		}
	}
	if len(blocks) > 1 {
		c.clash(lane, timeline.KindSpecial, t)
	}
	return best
}

func (c *Compositor) clash(lane *timeline.Lane, kind timeline.Kind, t float64) {
	c.log.Warn().Str("lane", lane.Name).Str("kind", string(kind)).Float64("t", t).Msg("exclusivity violation, most recently started wins")
	if c.bus != nil {
		c.bus.Publish(events.EventExclusivityClash, events.Payload{
			"lane": lane.Name, "kind": string(kind), "t": t,
		})
	}
}

func laterStart(s timeline.Span, id string, bestSpan timeline.Span, bestID string) bool {
	if s.Start != bestSpan.Start {
		return s.Start > bestSpan.Start
	}
	return id < bestID
}
