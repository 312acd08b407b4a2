/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package qlc renders compiled sequences into a QLC+ workspace file.
// The generated document carries the patched fixtures, one hidden scene
// per track, the step sequences bound to those scenes, and a Show
// function referencing each sequence by start offset. Sequence
// durations are derived by QLC+ from the summed step times; the
// ShowFunction elements intentionally carry no duration attribute, the
// loader rejects files that add one.
package qlc

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/sequence"
)

const workspaceNamespace = "http://www.qlcplus.org/Workspace"

// Patch is one fixture as it appears in the output universe map.
type Patch struct {
	Fixture  fixture.Fixture
	Channels int
}

// Sequence is one compiled envelope placed on a track.
type Sequence struct {
	Name        string
	Description *sequence.Description
}

// Track groups sequences under one named timeline row.
type Track struct {
	Name      string
	Sequences []Sequence
}

// Input is everything the exporter needs for one workspace.
type Input struct {
	ShowName string
	BPM      float64
	Patches  []Patch
	Tracks   []Track
}

// Exporter writes QLC+ workspace XML.
type Exporter struct {
	log zerolog.Logger
}

// NewExporter creates an exporter.
func NewExporter(log zerolog.Logger) *Exporter {
	return &Exporter{log: log.With().Str("component", "qlc-export").Logger()}
}

type xmlCreator struct {
	Name    string `xml:"Name"`
	Version string `xml:"Version"`
	Author  string `xml:"Author"`
}

type xmlUniverse struct {
	ID   int    `xml:"ID,attr"`
	Name string `xml:"Name,attr"`
}

type xmlFixture struct {
	Manufacturer string `xml:"Manufacturer"`
	Model        string `xml:"Model"`
	Mode         string `xml:"Mode"`
	ID           int    `xml:"ID"`
	Name         string `xml:"Name"`
	Universe     int    `xml:"Universe"`
	Address      int    `xml:"Address"`
	Channels     int    `xml:"Channels"`
}

type xmlSpeed struct {
	FadeIn  int64 `xml:"FadeIn,attr"`
	FadeOut int64 `xml:"FadeOut,attr"`
	Duration int64 `xml:"Duration,attr"`
}

type xmlStep struct {
	Number  int    `xml:"Number,attr"`
	FadeIn  int64  `xml:"FadeIn,attr"`
	Hold    int64  `xml:"Hold,attr"`
	FadeOut int64  `xml:"FadeOut,attr"`
	Values  int    `xml:"Values,attr"`
	Data    string `xml:",chardata"`
}

type xmlShowFunction struct {
	ID        int    `xml:"ID,attr"`
	StartTime int64  `xml:"StartTime,attr"`
	Color     string `xml:"Color,attr"`
}

type xmlTrack struct {
	ID            int               `xml:"ID,attr"`
	Name          string            `xml:"Name,attr"`
	SceneID       int               `xml:"SceneID,attr"`
	IsMute        int               `xml:"isMute,attr"`
	ShowFunctions []xmlShowFunction `xml:"ShowFunction"`
}

type xmlTimeDivision struct {
	Type string  `xml:"Type,attr"`
	BPM  float64 `xml:"BPM,attr"`
}

type xmlFunction struct {
	ID         int    `xml:"ID,attr"`
	Type       string `xml:"Type,attr"`
	Name       string `xml:"Name,attr"`
	Hidden     string `xml:"Hidden,attr,omitempty"`
	BoundScene int    `xml:"BoundScene,attr,omitempty"`

	Speed        *xmlSpeed        `xml:"Speed,omitempty"`
	Direction    string           `xml:"Direction,omitempty"`
	RunOrder     string           `xml:"RunOrder,omitempty"`
	Steps        []xmlStep        `xml:"Step"`
	TimeDivision *xmlTimeDivision `xml:"TimeDivision,omitempty"`
	Tracks       []xmlTrack       `xml:"Track"`
}

type xmlEngine struct {
	Universes []xmlUniverse `xml:"InputOutputMap>Universe"`
	Fixtures  []xmlFixture  `xml:"Fixture"`
	Functions []xmlFunction `xml:"Function"`
}

type xmlWorkspace struct {
	XMLName       xml.Name   `xml:"Workspace"`
	Namespace     string     `xml:"xmlns,attr"`
	CurrentWindow string     `xml:"CurrentWindow,attr"`
	Creator       xmlCreator `xml:"Creator"`
	Engine        xmlEngine  `xml:"Engine"`
}

// Export writes the workspace document for in.
func (e *Exporter) Export(w io.Writer, in Input) error {
	doc := xmlWorkspace{
		Namespace:     workspaceNamespace,
		CurrentWindow: "ShowManager",
		Creator: xmlCreator{
			Name:    "Q Light Controller Plus",
			Version: "4.12.7",
			Author:  "QLC+ Show Creator",
		},
	}

	universes := map[int]bool{}
	for i, p := range in.Patches {
		universes[p.Fixture.Universe] = true
		doc.Engine.Fixtures = append(doc.Engine.Fixtures, xmlFixture{
			Manufacturer: p.Fixture.Manufacturer,
			Model:        p.Fixture.Model,
			Mode:         p.Fixture.Mode,
			ID:           i,
			Name:         p.Fixture.Name,
			Universe:     p.Fixture.Universe,
			Address:      p.Fixture.Address - 1,
			Channels:     p.Channels,
		})
	}
	for _, u := range sortedKeys(universes) {
		doc.Engine.Universes = append(doc.Engine.Universes, xmlUniverse{ID: u, Name: fmt.Sprintf("Universe %d", u+1)})
	}

	nextID := 0
	newID := func() int {
		id := nextID
		nextID++
		return id
	}

	bpm := in.BPM
	if bpm <= 0 {
		bpm = 120
	}
	show := xmlFunction{
		ID:           newID(),
		Type:         "Show",
		Name:         in.ShowName,
		TimeDivision: &xmlTimeDivision{Type: "Time", BPM: bpm},
	}

	for ti, track := range in.Tracks {
		sceneID := newID()
		doc.Engine.Functions = append(doc.Engine.Functions, xmlFunction{
			ID:     sceneID,
			Type:   "Scene",
			Name:   fmt.Sprintf("Scene for %s", track.Name),
			Hidden: "True",
			Speed:  &xmlSpeed{},
		})

		xt := xmlTrack{ID: ti, Name: track.Name, SceneID: sceneID}
		for _, seq := range track.Sequences {
			if seq.Description == nil || len(seq.Description.Steps) == 0 {
				e.log.Debug().Str("track", track.Name).Str("sequence", seq.Name).Msg("empty sequence skipped")
				continue
			}
			seqID := newID()
			fn := xmlFunction{
				ID:         seqID,
				Type:       "Sequence",
				Name:       seq.Name,
				BoundScene: sceneID,
				Direction:  "Forward",
				RunOrder:   "SingleShot",
			}
			for si, step := range seq.Description.Steps {
				data, count := e.renderStepValues(in.Patches, step)
				fn.Steps = append(fn.Steps, xmlStep{
					Number:  si,
					FadeIn:  step.FadeIn.Milliseconds(),
					Hold:    step.Hold.Milliseconds(),
					FadeOut: step.FadeOut.Milliseconds(),
					Values:  count,
					Data:    data,
				})
			}
			doc.Engine.Functions = append(doc.Engine.Functions, fn)

			// The reference deliberately omits any duration attribute:
			// QLC+ derives it from the steps.
			xt.ShowFunctions = append(xt.ShowFunctions, xmlShowFunction{
				ID:        seqID,
				StartTime: seq.Description.Pointer.StartOffset.Milliseconds(),
				Color:     trackColor(ti),
			})
		}
		show.Tracks = append(show.Tracks, xt)
	}
	doc.Engine.Functions = append(doc.Engine.Functions, show)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "<!DOCTYPE Workspace>\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", " ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	return enc.Flush()
}

// renderStepValues groups a step's channel writes by patched fixture
// into QLC's "fixtureID:ch,val,ch,val" form.
func (e *Exporter) renderStepValues(patches []Patch, step sequence.Step) (string, int) {
	type pair struct{ ch, val int }
	byFixture := make(map[int][]pair)
	total := 0

	for _, v := range step.Values {
		fi, rel, ok := locate(patches, v.Universe, v.Channel)
		if !ok {
			e.log.Debug().Int("universe", v.Universe).Int("channel", v.Channel).Msg("channel outside any patched fixture")
			continue
		}
		byFixture[fi] = append(byFixture[fi], pair{ch: rel, val: int(v.Value)})
		total++
	}

	var parts []string
	for _, fi := range sortedKeys(mapKeys(byFixture)) {
		pairs := byFixture[fi]
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].ch < pairs[b].ch })
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d:", fi)
		for j, p := range pairs {
			if j > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "%d,%d", p.ch, p.val)
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, ":"), total
}

// locate finds the patched fixture covering an absolute channel.
func locate(patches []Patch, universe, channel int) (index, relative int, ok bool) {
	for i, p := range patches {
		if p.Fixture.Universe != universe {
			continue
		}
		base := p.Fixture.Address - 1
		if channel >= base && channel < base+p.Channels {
			return i, channel - base, true
		}
	}
	return 0, 0, false
}

var trackColors = []string{"#3498db", "#e74c3c", "#2ecc71", "#f39c12", "#9b59b6", "#1abc9c"}

func trackColor(i int) string {
	return trackColors[i%len(trackColors)]
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func mapKeys[T any](m map[int]T) map[int]bool {
	out := make(map[int]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
