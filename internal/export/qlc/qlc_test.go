package qlc

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/sequence"
)

func sampleInput() Input {
	desc := &sequence.Description{
		Steps: []sequence.Step{
			{Hold: 500 * time.Millisecond, Values: []sequence.ChannelValue{
				{Universe: 0, Channel: 0, Value: 255},
				{Universe: 0, Channel: 1, Value: 128},
			}},
			{Hold: 500 * time.Millisecond, Values: []sequence.ChannelValue{
				{Universe: 0, Channel: 0, Value: 0},
				{Universe: 0, Channel: 4, Value: 42},
			}},
		},
		Pointer: sequence.Pointer{StartOffset: 8 * time.Second, Tag: "chorus"},
	}
	return Input{
		ShowName: "Demo Show",
		BPM:      128,
		Patches: []Patch{
			{Fixture: fixture.Fixture{Universe: 0, Address: 1, Manufacturer: "Generic", Model: "Par", Name: "par-1", Mode: "4ch"}, Channels: 4},
			{Fixture: fixture.Fixture{Universe: 0, Address: 5, Manufacturer: "Generic", Model: "Par", Name: "par-2", Mode: "4ch"}, Channels: 4},
		},
		Tracks: []Track{{
			Name:      "Pars",
			Sequences: []Sequence{{Name: "chorus", Description: desc}},
		}},
	}
}

type parsedWorkspace struct {
	XMLName xml.Name `xml:"Workspace"`
	Engine  struct {
		Fixtures  []parsedFixture  `xml:"Fixture"`
		Functions []parsedFunction `xml:"Function"`
	} `xml:"Engine"`
}

type parsedFixture struct {
	ID       int `xml:"ID"`
	Address  int `xml:"Address"`
	Channels int `xml:"Channels"`
}

type parsedFunction struct {
	ID     int          `xml:"ID,attr"`
	Type   string       `xml:"Type,attr"`
	Name   string       `xml:"Name,attr"`
	Hidden string       `xml:"Hidden,attr"`
	Steps  []parsedStep `xml:"Step"`
	Tracks []struct {
		SceneID       int `xml:"SceneID,attr"`
		ShowFunctions []struct {
			ID        int   `xml:"ID,attr"`
			StartTime int64 `xml:"StartTime,attr"`
		} `xml:"ShowFunction"`
	} `xml:"Track"`
}

type parsedStep struct {
	Number int    `xml:"Number,attr"`
	Hold   int64  `xml:"Hold,attr"`
	Values int    `xml:"Values,attr"`
	Data   string `xml:",chardata"`
}

func export(t *testing.T, in Input) (string, *parsedWorkspace) {
	t.Helper()
	var buf bytes.Buffer
	if err := NewExporter(zerolog.Nop()).Export(&buf, in); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var ws parsedWorkspace
	if err := xml.Unmarshal(buf.Bytes(), &ws); err != nil {
		t.Fatalf("output is not valid XML: %v", err)
	}
	return buf.String(), &ws
}

func TestExportStructure(t *testing.T) {
	raw, ws := export(t, sampleInput())

	if !strings.Contains(raw, "<!DOCTYPE Workspace>") {
		t.Fatal("missing doctype")
	}
	if len(ws.Engine.Fixtures) != 2 {
		t.Fatalf("got %d fixtures, want 2", len(ws.Engine.Fixtures))
	}
	// QLC+ addresses are zero-based in the file.
	if ws.Engine.Fixtures[1].Address != 4 {
		t.Fatalf("second fixture address = %d, want 4", ws.Engine.Fixtures[1].Address)
	}

	var scene, seq, show *parsedFunction
	for i := range ws.Engine.Functions {
		fn := &ws.Engine.Functions[i]
		switch fn.Type {
		case "Scene":
			scene = fn
		case "Sequence":
			seq = fn
		case "Show":
			show = fn
		}
	}
	if scene == nil || seq == nil || show == nil {
		t.Fatal("expected Scene, Sequence and Show functions")
	}
	if scene.Hidden != "True" {
		t.Fatal("bound scene should be hidden")
	}
	if len(show.Tracks) != 1 || show.Tracks[0].SceneID != scene.ID {
		t.Fatalf("track not bound to scene: %+v", show.Tracks)
	}
	sf := show.Tracks[0].ShowFunctions
	if len(sf) != 1 || sf[0].ID != seq.ID || sf[0].StartTime != 8000 {
		t.Fatalf("show function = %+v, want sequence %d at 8000ms", sf, seq.ID)
	}
}

func TestShowFunctionCarriesNoDuration(t *testing.T) {
	raw, _ := export(t, sampleInput())
	// Duration on a ShowFunction makes the QLC+ loader reject the file;
	// it must derive duration from the steps.
	for _, line := range strings.Split(raw, "\n") {
		if strings.Contains(line, "<ShowFunction") && strings.Contains(line, "Duration") {
			t.Fatalf("ShowFunction must not carry a duration attribute: %s", line)
		}
	}
}

func TestStepValueFormat(t *testing.T) {
	_, ws := export(t, sampleInput())
	var seq *parsedFunction
	for i := range ws.Engine.Functions {
		if ws.Engine.Functions[i].Type == "Sequence" {
			seq = &ws.Engine.Functions[i]
		}
	}
	if seq == nil || len(seq.Steps) != 2 {
		t.Fatalf("expected sequence with 2 steps")
	}

	first := seq.Steps[0]
	if first.Hold != 500 || first.Values != 2 {
		t.Fatalf("step 0: hold=%d values=%d", first.Hold, first.Values)
	}
	if got := strings.TrimSpace(first.Data); got != "0:0,255,1,128" {
		t.Fatalf("step 0 data = %q", got)
	}

	// The second step hits channel 4, which belongs to the second
	// fixture (base 4), channel 0 relative.
	second := seq.Steps[1]
	if got := strings.TrimSpace(second.Data); got != "0:0,0:1:0,42" {
		t.Fatalf("step 1 data = %q", got)
	}
}

func TestEmptySequenceSkipped(t *testing.T) {
	in := sampleInput()
	in.Tracks[0].Sequences = append(in.Tracks[0].Sequences, Sequence{Name: "empty", Description: &sequence.Description{}})

	_, ws := export(t, in)
	count := 0
	for _, fn := range ws.Engine.Functions {
		if fn.Type == "Sequence" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("got %d sequences, want 1 (empty one skipped)", count)
	}
}
