package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/compositor"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/tempo"
)

type sendRec struct {
	universe int
	data     []byte
	forced   bool
}

type fakeTransport struct {
	mu    sync.Mutex
	sends []sendRec
}

func (f *fakeTransport) Send(universe int, data []byte) error {
	f.record(universe, data, false)
	return nil
}

func (f *fakeTransport) SendForce(universe int, data []byte) error {
	f.record(universe, data, true)
	return nil
}

func (f *fakeTransport) record(universe int, data []byte, forced bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sends = append(f.sends, sendRec{universe: universe, data: cp, forced: forced})
}

func (f *fakeTransport) all() []sendRec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendRec(nil), f.sends...)
}

func testCompositor(t *testing.T) *compositor.Compositor {
	t.Helper()
	def := &fixture.Definition{
		Manufacturer: "Generic", Model: "Dimmer",
		Channels: []fixture.Channel{{Name: "Dimmer", Preset: "IntensityMasterDimmer"}},
		Modes:    []fixture.Mode{{Name: "1ch", Channels: []string{"Dimmer"}}},
	}
	m, err := fixture.NewMap(fixture.Fixture{Universe: 0, Address: 1, Name: "dim", Mode: "1ch"}, def)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	c := compositor.New(zerolog.Nop(), nil, nil)
	c.AddGroup("rig", []*fixture.Map{m})
	return c
}

func TestStepScalesPositionByTempo(t *testing.T) {
	m := tempo.NewMap([]tempo.Part{{
		Name: "fast", Signature: tempo.ParseSignature("4/4"), BPM: 240, Bars: 100,
	}})
	e := New(zerolog.Nop(), nil, testCompositor(t), nil, m, 60)

	e.step(0.1)
	if got := e.Position(); got < 0.199 || got > 0.201 {
		t.Fatalf("position = %v, want 0.2 (240 BPM doubles wall speed)", got)
	}
}

func TestStepSendsCompositedFrames(t *testing.T) {
	ft := &fakeTransport{}
	e := New(zerolog.Nop(), nil, testCompositor(t), ft, nil, 60)

	e.step(1.0 / 60)
	sends := ft.all()
	if len(sends) != 1 {
		t.Fatalf("got %d sends, want 1", len(sends))
	}
	if sends[0].universe != 0 || len(sends[0].data) != 512 || sends[0].forced {
		t.Fatalf("unexpected send: universe=%d len=%d forced=%v", sends[0].universe, len(sends[0].data), sends[0].forced)
	}
	if sends[0].data[0] != compositor.BaselineIntensity {
		t.Fatalf("dimmer = %d, want baseline", sends[0].data[0])
	}
}

func TestStopRewindsAndBlacksOut(t *testing.T) {
	ft := &fakeTransport{}
	e := New(zerolog.Nop(), nil, testCompositor(t), ft, nil, 60)

	e.Seek(5)
	e.step(1.0 / 60)
	e.Stop()

	if e.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", e.State())
	}
	if e.Position() != 0 {
		t.Fatalf("position = %v, want 0", e.Position())
	}

	sends := ft.all()
	last := sends[len(sends)-1]
	if !last.forced {
		t.Fatal("blackout should bypass the rate limit")
	}
	for i, b := range last.data {
		if b != 0 {
			t.Fatalf("blackout byte %d = %d, want 0", i, b)
		}
	}
}

func TestHaltKeepsPosition(t *testing.T) {
	ft := &fakeTransport{}
	e := New(zerolog.Nop(), nil, testCompositor(t), ft, nil, 200)

	e.Play()
	if e.State() != StatePlaying {
		t.Fatalf("state = %v, want playing", e.State())
	}
	time.Sleep(50 * time.Millisecond)
	e.Halt()

	if e.State() != StateHalted {
		t.Fatalf("state = %v, want halted", e.State())
	}
	if e.Position() <= 0 {
		t.Fatal("position should have advanced before halt")
	}
	for _, s := range ft.all() {
		if s.forced {
			t.Fatal("halt must not black out the rig")
		}
	}
}

func TestPlayTwiceIsANoOp(t *testing.T) {
	e := New(zerolog.Nop(), nil, testCompositor(t), nil, nil, 200)
	e.Play()
	e.Play()
	e.Stop()
	if e.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", e.State())
	}
}
