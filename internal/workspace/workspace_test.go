package workspace

import (
	"path/filepath"
	"testing"

	"github.com/varghele/QLCplusShowCreator/internal/effects"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
)

func sampleDocument() *Document {
	return &Document{
		Name:           "club night",
		FixtureLibrary: "fixtures",
		ArtNet:         ArtNet{Target: "10.0.0.255", Port: 6454},
		Fixtures: []fixture.Fixture{
			{Universe: 0, Address: 1, Manufacturer: "Generic", Model: "RGB Par", Name: "par-1", Group: "wash", Mode: "4ch"},
			{Universe: 0, Address: 5, Manufacturer: "Generic", Model: "RGB Par", Name: "par-2", Group: "wash", Mode: "4ch"},
			{Universe: 1, Address: 1, Manufacturer: "Stairville", Model: "MH-X50", Name: "head-1", Group: "movers", Mode: "12ch"},
		},
		Shows: []Show{{
			Name: "opener",
			Parts: []Part{
				{Name: "intro", Signature: "4/4", BPM: 120, Bars: 4},
				{Name: "drop", Signature: "4/4", BPM: 150, Bars: 8, Transition: "gradual"},
			},
			Lanes: []Lane{{
				Name:  "movers",
				Group: "movers",
				Envelopes: []Envelope{{
					Name: "sweep",
					Intensity: []IntensityBlock{
						{ID: "blk-int-1", Start: 0, End: 8, Level: 220, Effect: "pulse", Rate: "1/2"},
					},
					Colour: []ColourBlock{
						{ID: "blk-col-1", Start: 0, End: 8, Cyan: 200, Magenta: 30, Yellow: 10, Lime: 5},
					},
					Position: []PositionBlock{
						{ID: "blk-pos-1", Start: 0, End: 8, Shape: "circle", Pan: 128, Tilt: 100, PanAmplitude: 40, TiltAmplitude: 40, PanMax: 255, TiltMax: 255, Rate: "1"},
					},
				}},
			}},
		}},
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspace.yaml")
	if err := Save(path, sampleDocument()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if doc.Name != "club night" || doc.ArtNet.Target != "10.0.0.255" {
		t.Fatalf("document header mangled: %+v", doc)
	}
	if len(doc.Fixtures) != 3 || doc.Fixtures[2].Mode != "12ch" {
		t.Fatalf("fixtures mangled: %+v", doc.Fixtures)
	}
	show, ok := doc.Show("opener")
	if !ok {
		t.Fatal("show lookup failed")
	}
	if len(show.Parts) != 2 || show.Parts[1].Transition != "gradual" {
		t.Fatalf("parts mangled: %+v", show.Parts)
	}
	if show.Lanes[0].Envelopes[0].Intensity[0].ID != "blk-int-1" {
		t.Fatal("block ID lost in round trip")
	}
}

func TestGroupsFromPatch(t *testing.T) {
	doc := sampleDocument()
	groups := doc.Groups()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Name != "wash" || len(groups[0].Fixtures) != 2 {
		t.Fatalf("wash group = %+v", groups[0])
	}
	if groups[1].Name != "movers" || len(groups[1].Fixtures) != 1 {
		t.Fatalf("movers group = %+v", groups[1])
	}
}

func TestTempoMapFromShow(t *testing.T) {
	doc := sampleDocument()
	show, _ := doc.Show("opener")
	m := show.TempoMap()

	bpm, sig := m.TempoAt(0)
	if bpm != 120 || sig.Numerator != 4 {
		t.Fatalf("TempoAt(0) = %v %v", bpm, sig)
	}
	// Intro is 4 bars of 4/4 at 120 BPM, 8 seconds.
	if parts := m.Parts(); parts[1].Start != 8 {
		t.Fatalf("second part starts at %v, want 8", parts[1].Start)
	}
}

func TestBuildLanes(t *testing.T) {
	doc := sampleDocument()
	show, _ := doc.Show("opener")
	lanes := show.BuildLanes()

	if len(lanes) != 1 || lanes[0].FixtureGroup != "movers" {
		t.Fatalf("lanes = %+v", lanes)
	}
	env := lanes[0].Envelopes[0]
	if env.Span.Start != 0 || env.Span.End != 8 {
		t.Fatalf("envelope span = %+v, want [0,8)", env.Span)
	}
	if env.Intensity[0].ID != "blk-int-1" || env.Intensity[0].Effect != effects.IntensityPulse {
		t.Fatalf("intensity block = %+v", env.Intensity[0])
	}
	if env.Position[0].Shape != effects.ShapeCircle || env.Position[0].TiltAmplitude != 40 {
		t.Fatalf("position block = %+v", env.Position[0])
	}
	if c := env.Colour[0]; c.Cyan != 200 || c.Magenta != 30 || c.Yellow != 10 || c.Lime != 5 {
		t.Fatalf("colour block = %+v", c)
	}

	// Defaults fill in when the file omits optional fields.
	if env.Intensity[0].Rate != "1/2" {
		t.Fatalf("rate = %q", env.Intensity[0].Rate)
	}
}
