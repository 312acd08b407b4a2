package show

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/workspace"
)

func testLibrary() *fixture.Library {
	lib := fixture.NewLibrary()
	lib.Add(&fixture.Definition{
		Manufacturer: "Generic", Model: "RGB Par",
		Channels: []fixture.Channel{
			{Name: "Dimmer", Preset: "IntensityMasterDimmer"},
			{Name: "Red", Preset: "IntensityRed"},
			{Name: "Green", Preset: "IntensityGreen"},
			{Name: "Blue", Preset: "IntensityBlue"},
		},
		Modes: []fixture.Mode{{Name: "4ch", Channels: []string{"Dimmer", "Red", "Green", "Blue"}}},
	})
	return lib
}

func testDocument() *workspace.Document {
	return &workspace.Document{
		Name: "test rig",
		Fixtures: []fixture.Fixture{
			{Universe: 0, Address: 1, Manufacturer: "Generic", Model: "RGB Par", Name: "par-1", Group: "wash", Mode: "4ch"},
			{Universe: 0, Address: 5, Manufacturer: "Unknown", Model: "Mystery", Name: "ghost", Group: "wash", Mode: "1ch"},
		},
		Shows: []workspace.Show{{
			Name:  "opener",
			Parts: []workspace.Part{{Name: "intro", Signature: "4/4", BPM: 120, Bars: 8}},
			Lanes: []workspace.Lane{{
				Name: "wash", Group: "wash",
				Envelopes: []workspace.Envelope{{
					Name: "warm look",
					Intensity: []workspace.IntensityBlock{
						{Start: 0, End: 4, Level: 210},
					},
					Colour: []workspace.ColourBlock{
						{Start: 0, End: 4, Red: 255, Green: 120, Blue: 40},
					},
				}},
			}},
		}},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(zerolog.Nop(), nil, testDocument(), testLibrary(), nil, 60, nil)
}

func TestServiceSkipsFixturesWithoutDefinitions(t *testing.T) {
	s := newTestService(t)
	if got := len(s.maps["wash"]); got != 1 {
		t.Fatalf("wash group has %d mapped fixtures, want 1 (ghost skipped)", got)
	}
}

func TestLoadShowAndTick(t *testing.T) {
	s := newTestService(t)
	if err := s.LoadShow("opener"); err != nil {
		t.Fatalf("LoadShow: %v", err)
	}
	if s.CurrentShow() != "opener" {
		t.Fatalf("current show = %q", s.CurrentShow())
	}

	bpm, _ := s.TempoAt(0)
	if bpm != 120 {
		t.Fatalf("bpm = %v, want 120", bpm)
	}

	s.Compositor().Tick(1)
	buf := s.Compositor().Buffer(0)
	if buf[0] != 210 || buf[1] != 255 || buf[3] != 40 {
		t.Fatalf("frame = %d,%d,_,%d, want 210/255/40", buf[0], buf[1], buf[3])
	}
}

func TestLoadUnknownShowFails(t *testing.T) {
	s := newTestService(t)
	if err := s.LoadShow("nope"); err == nil {
		t.Fatal("expected error for unknown show")
	}
}

func TestCompileShow(t *testing.T) {
	s := newTestService(t)
	tracks, err := s.CompileShow("opener")
	if err != nil {
		t.Fatalf("CompileShow: %v", err)
	}
	if len(tracks) != 1 || len(tracks[0].Sequences) != 1 {
		t.Fatalf("tracks = %+v", tracks)
	}
	desc := tracks[0].Sequences[0].Description
	// Static look compiles to a single step.
	if len(desc.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(desc.Steps))
	}
	if desc.Pointer.Tag != "warm look" {
		t.Fatalf("pointer tag = %q", desc.Pointer.Tag)
	}
}

func TestExportShow(t *testing.T) {
	s := newTestService(t)
	var buf bytes.Buffer
	if err := s.ExportShow("opener", &buf); err != nil {
		t.Fatalf("ExportShow: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<Workspace", "Type=\"Show\"", "Type=\"Sequence\"", "par-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("export missing %q", want)
		}
	}
}
