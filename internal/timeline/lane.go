/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

// Lane is a timeline track bound to one fixture group.
type Lane struct {
	Name         string
	FixtureGroup string
	Muted        bool
	Solo         bool
	Envelopes    []*Envelope
}

// NewLane creates an empty lane for a fixture group.
func NewLane(name, fixtureGroup string) *Lane {
	return &Lane{Name: name, FixtureGroup: fixtureGroup}
}

// AddEnvelope appends an envelope to the lane.
func (l *Lane) AddEnvelope(e *Envelope) {
	l.Envelopes = append(l.Envelopes, e)
}

// EnvelopeAt returns the first envelope covering t, or nil.
func (l *Lane) EnvelopeAt(t float64) *Envelope {
	for _, e := range l.Envelopes {
		if e.Span.Contains(t) {
			return e
		}
	}
	return nil
}

// EnvelopesInRange returns all envelopes overlapping [start,end).
func (l *Lane) EnvelopesInRange(start, end float64) []*Envelope {
	var out []*Envelope
	for _, e := range l.Envelopes {
		if e.Span.Overlaps(start, end) {
			out = append(out, e)
		}
	}
	return out
}

// IntensityAt returns all intensity blocks active at t across the
// lane's envelopes.
func (l *Lane) IntensityAt(t float64) []IntensityBlock {
	var out []IntensityBlock
	for _, e := range l.Envelopes {
		out = append(out, e.IntensityAt(t)...)
	}
	return out
}

// ColourAt returns all colour blocks active at t.
func (l *Lane) ColourAt(t float64) []ColourBlock {
	var out []ColourBlock
	for _, e := range l.Envelopes {
		out = append(out, e.ColourAt(t)...)
	}
	return out
}

// PositionAt returns all position blocks active at t.
func (l *Lane) PositionAt(t float64) []PositionBlock {
	var out []PositionBlock
	for _, e := range l.Envelopes {
		out = append(out, e.PositionAt(t)...)
	}
	return out
}

// SpecialAt returns all special blocks active at t.
func (l *Lane) SpecialAt(t float64) []SpecialBlock {
	var out []SpecialBlock
	for _, e := range l.Envelopes {
		out = append(out, e.SpecialAt(t)...)
	}
	return out
}

// ActiveIDsAt returns the IDs of blocks of kind active at t.
func (l *Lane) ActiveIDsAt(kind Kind, t float64) []string {
	var ids []string
	for _, e := range l.Envelopes {
		ids = append(ids, e.ActiveAt(kind, t)...)
	}
	return ids
}

// AnySolo reports whether any lane in the set is soloed.
func AnySolo(lanes []*Lane) bool {
	for _, lane := range lanes {
		if lane.Solo {
			return true
		}
	}
	return false
}

// Audible reports whether a lane participates in composition given the
// solo state of the whole set.
func (l *Lane) Audible(anySolo bool) bool {
	if l.Muted {
		return false
	}
	if anySolo && !l.Solo {
		return false
	}
	return true
}
