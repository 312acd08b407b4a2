package sequence

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/effects"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/timeline"
)

func wheelHeadMap(t *testing.T) *fixture.Map {
	t.Helper()
	def := &fixture.Definition{
		Manufacturer: "Generic", Model: "Wheel Head",
		Channels: []fixture.Channel{
			{Name: "Pan", Preset: "PositionPan"},
			{Name: "Tilt", Preset: "PositionTilt"},
			{Name: "Dimmer", Preset: "IntensityDimmer"},
			{Name: "Colour", Preset: "ColorWheel"},
		},
		Modes: []fixture.Mode{{Name: "4ch", Channels: []string{"Pan", "Tilt", "Dimmer", "Colour"}}},
	}
	m, err := fixture.NewMap(fixture.Fixture{Universe: 0, Address: 1, Name: "head", Mode: "4ch"}, def)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	return m
}

func dimmerMap(t *testing.T, address int) *fixture.Map {
	t.Helper()
	def := &fixture.Definition{
		Manufacturer: "Generic", Model: "Dimmer",
		Channels: []fixture.Channel{{Name: "Dimmer", Preset: "IntensityMasterDimmer"}},
		Modes:    []fixture.Mode{{Name: "1ch", Channels: []string{"Dimmer"}}},
	}
	m, err := fixture.NewMap(fixture.Fixture{Universe: 0, Address: address, Name: "dim", Mode: "1ch"}, def)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	return m
}

func newTestCompiler() *Compiler {
	return NewCompiler(zerolog.Nop(), nil)
}

func channelValue(step Step, channel int) (byte, bool) {
	for _, v := range step.Values {
		if v.Channel == channel {
			return v.Value, true
		}
	}
	return 0, false
}

func TestStepCountFourWayClamp(t *testing.T) {
	cases := []struct {
		cycles, speed, duration float64
		want                    int
	}{
		// 2 cycles at half speed: desired 128, within [16, 192].
		{2, 0.5, 8, 128},
		// High speed drops the preferred density to 16.
		{4, 4, 8, 64},
		// Per-second ceiling binds: desired 640 but 2s allows 48.
		{10, 0.5, 2, 48},
		// Fast rate with room to spare stays at desired.
		{3, 3, 10, 48},
		// Absolute cap.
		{40, 1, 60, 256},
	}
	for _, tc := range cases {
		if got := stepCount(tc.cycles, tc.speed, tc.duration); got != tc.want {
			t.Errorf("stepCount(%v,%v,%v) = %d, want %d", tc.cycles, tc.speed, tc.duration, got, tc.want)
		}
	}
}

func TestHalfSpeedCompileStaysInBounds(t *testing.T) {
	e := timeline.NewEnvelope("slow sweep")
	p := timeline.NewPositionBlock(0, 8, effects.ShapeCircle)
	p.Rate = "1/2"
	e.AddPosition(p)

	desc, err := newTestCompiler().Compile(e, []*fixture.Map{wheelHeadMap(t)}, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// 8s at 120 BPM 4/4 and rate 1/2 is 2 cycles.
	n := len(desc.Steps)
	if n < 16 || n > 192 {
		t.Fatalf("step count %d outside [16,192]", n)
	}
	if n != 128 {
		t.Fatalf("step count = %d, want 128", n)
	}
}

func TestAllStaticEnvelopeCompilesToOneStep(t *testing.T) {
	e := timeline.NewEnvelope("look")
	e.AddIntensity(timeline.NewIntensityBlock(0, 6, 180, effects.IntensityStatic, "1"))
	e.AddColour(timeline.NewColourBlock(0, 6, 10, 20, 30))

	desc, err := newTestCompiler().Compile(e, []*fixture.Map{dimmerMap(t, 1)}, Options{Tag: "look"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(desc.Steps) != 1 {
		t.Fatalf("got %d steps, want exactly 1", len(desc.Steps))
	}
	if v, ok := channelValue(desc.Steps[0], 0); !ok || v != 180 {
		t.Fatalf("dimmer = %d (ok=%v), want 180", v, ok)
	}
	if desc.Steps[0].Hold != 6*time.Second {
		t.Fatalf("hold = %v, want 6s", desc.Steps[0].Hold)
	}
}

func TestEmptyInputCompilesToEmptyDescription(t *testing.T) {
	c := newTestCompiler()

	desc, err := c.Compile(nil, []*fixture.Map{dimmerMap(t, 1)}, Options{})
	if err != nil || len(desc.Steps) != 0 {
		t.Fatalf("nil envelope: steps=%d err=%v", len(desc.Steps), err)
	}

	e := timeline.NewEnvelope("empty")
	desc, err = c.Compile(e, []*fixture.Map{dimmerMap(t, 1)}, Options{})
	if err != nil || len(desc.Steps) != 0 {
		t.Fatalf("empty envelope: steps=%d err=%v", len(desc.Steps), err)
	}

	e.AddIntensity(timeline.NewIntensityBlock(0, 4, 100, effects.IntensityStatic, "1"))
	desc, err = c.Compile(e, nil, Options{})
	if err != nil || len(desc.Steps) != 0 {
		t.Fatalf("no targets: steps=%d err=%v", len(desc.Steps), err)
	}
}

func TestZeroDurationBlocksAreSkipped(t *testing.T) {
	e := timeline.NewEnvelope("degenerate")
	e.AddIntensity(timeline.NewIntensityBlock(2, 2, 255, effects.IntensityStatic, "1"))

	desc, err := newTestCompiler().Compile(e, []*fixture.Map{dimmerMap(t, 1)}, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(desc.Steps) != 0 {
		t.Fatalf("zero-duration envelope produced %d steps", len(desc.Steps))
	}
}

func TestUnmappableFixtureSkipped(t *testing.T) {
	def := &fixture.Definition{
		Manufacturer: "Generic", Model: "Strobe Only",
		Channels: []fixture.Channel{{Name: "Strobe", Preset: "ShutterStrobeOpen"}},
		Modes:    []fixture.Mode{{Name: "1ch", Channels: []string{"Strobe"}}},
	}
	bare, err := fixture.NewMap(fixture.Fixture{Address: 100, Name: "strobe", Mode: "1ch"}, def)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}

	e := timeline.NewEnvelope("hit")
	e.AddIntensity(timeline.NewIntensityBlock(0, 2, 255, effects.IntensityStatic, "1"))

	desc, err := newTestCompiler().Compile(e, []*fixture.Map{bare, dimmerMap(t, 1)}, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(desc.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(desc.Steps))
	}
	for _, v := range desc.Steps[0].Values {
		if v.Channel == 99 {
			t.Fatal("unmappable fixture should contribute no values")
		}
	}
}

func TestCompileWritesCMYEmitters(t *testing.T) {
	def := &fixture.Definition{
		Manufacturer: "Generic", Model: "CMY Wash",
		Channels: []fixture.Channel{
			{Name: "Dimmer", Preset: "IntensityMasterDimmer"},
			{Name: "Cyan", Preset: "IntensityCyan"},
			{Name: "Magenta", Preset: "IntensityMagenta"},
			{Name: "Yellow", Preset: "IntensityYellow"},
		},
		Modes: []fixture.Mode{{Name: "4ch", Channels: []string{"Dimmer", "Cyan", "Magenta", "Yellow"}}},
	}
	wash, err := fixture.NewMap(fixture.Fixture{Address: 1, Name: "wash", Mode: "4ch"}, def)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}

	e := timeline.NewEnvelope("teal")
	blk := timeline.NewColourBlock(0, 4, 0, 0, 0)
	blk.Cyan, blk.Magenta, blk.Yellow = 230, 20, 40
	e.AddColour(blk)

	desc, err := newTestCompiler().Compile(e, []*fixture.Map{wash}, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(desc.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(desc.Steps))
	}
	step := desc.Steps[0]
	want := map[int]byte{1: 230, 2: 20, 3: 40}
	for ch, v := range want {
		if got, ok := channelValue(step, ch); !ok || got != v {
			t.Fatalf("channel %d = %d (present=%v), want %d", ch, got, ok, v)
		}
	}
}

func TestPointerCarriesNoDuration(t *testing.T) {
	e := timeline.NewEnvelope("chorus")
	e.AddIntensity(timeline.NewIntensityBlock(0, 4, 120, effects.IntensityStatic, "1"))

	desc, err := newTestCompiler().Compile(e, []*fixture.Map{dimmerMap(t, 1)}, Options{StartOffset: 12 * time.Second})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if desc.Pointer.StartOffset != 12*time.Second || desc.Pointer.Tag != "chorus" {
		t.Fatalf("pointer = %+v", desc.Pointer)
	}
	// Duration is derived from summed steps, never stored on the pointer.
	if got := desc.Duration(); got != 4*time.Second {
		t.Fatalf("derived duration = %v, want 4s", got)
	}
}

func TestPinkOnWheelEndToEnd(t *testing.T) {
	e := timeline.NewEnvelope("pink lissajous")
	e.AddIntensity(timeline.NewIntensityBlock(0, 4, 200, effects.IntensityStatic, "1"))
	e.AddColour(timeline.NewColourBlock(0, 4, 255, 105, 180))
	p := timeline.NewPositionBlock(0, 4, effects.ShapeLissajous)
	p.LissajousRatio = "1:2"
	e.AddPosition(p)

	desc, err := newTestCompiler().Compile(e, []*fixture.Map{wheelHeadMap(t)}, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	n := len(desc.Steps)
	if n < 32 || n > 96 {
		t.Fatalf("step count %d outside [32,96]", n)
	}

	wantWheel := effects.NearestWheelValue(255, 105, 180)
	moved := false
	var firstPan byte
	for i, step := range desc.Steps {
		if v, ok := channelValue(step, 2); !ok || v != 200 {
			t.Fatalf("step %d: dimmer = %d (ok=%v), want constant 200", i, v, ok)
		}
		if v, ok := channelValue(step, 3); !ok || v != wantWheel {
			t.Fatalf("step %d: wheel = %d (ok=%v), want %d", i, v, ok, wantWheel)
		}
		pan, ok := channelValue(step, 0)
		if !ok {
			t.Fatalf("step %d: no pan value", i)
		}
		if i == 0 {
			firstPan = pan
		} else if pan != firstPan {
			moved = true
		}
	}
	if !moved {
		t.Fatal("position steps should animate")
	}
}

func TestCompileIsRepeatable(t *testing.T) {
	e := timeline.NewEnvelope("twinkle")
	e.AddIntensity(timeline.NewIntensityBlock(0, 4, 220, effects.IntensityFlicker, "1"))
	p := timeline.NewPositionBlock(0, 4, effects.ShapeCircle)
	e.AddPosition(p)

	c := newTestCompiler()
	targets := []*fixture.Map{wheelHeadMap(t)}
	a, err := c.Compile(e, targets, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	b, err := c.Compile(e, targets, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(a.Steps) != len(b.Steps) {
		t.Fatalf("step counts differ: %d vs %d", len(a.Steps), len(b.Steps))
	}
	for i := range a.Steps {
		if len(a.Steps[i].Values) != len(b.Steps[i].Values) {
			t.Fatalf("step %d value counts differ", i)
		}
		for j := range a.Steps[i].Values {
			if a.Steps[i].Values[j] != b.Steps[i].Values[j] {
				t.Fatalf("step %d value %d differs", i, j)
			}
		}
	}
}
