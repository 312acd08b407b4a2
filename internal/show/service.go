/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package show wires the workspace document, fixture library,
// compositor, playback engine and compiler into one service the HTTP
// surface and the CLI share.
package show

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/varghele/QLCplusShowCreator/internal/compositor"
	"github.com/varghele/QLCplusShowCreator/internal/events"
	"github.com/varghele/QLCplusShowCreator/internal/export/qlc"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/models"
	"github.com/varghele/QLCplusShowCreator/internal/playback"
	"github.com/varghele/QLCplusShowCreator/internal/sequence"
	"github.com/varghele/QLCplusShowCreator/internal/telemetry"
	"github.com/varghele/QLCplusShowCreator/internal/tempo"
	"github.com/varghele/QLCplusShowCreator/internal/workspace"
)

// Service owns a loaded workspace and the runtime built from it.
type Service struct {
	log zerolog.Logger
	bus *events.Bus
	db  *gorm.DB

	doc      *workspace.Document
	library  *fixture.Library
	maps     map[string][]*fixture.Map
	ordered  []*fixture.Map
	comp     *compositor.Compositor
	engine   *playback.Engine
	compiler *sequence.Compiler

	mu       sync.RWMutex
	current  *workspace.Show
	tempoMap *tempo.Map
}

// NewService builds the runtime for a loaded document. Fixtures whose
// definition or mode is missing from the library are skipped with a
// warning; the rest of the rig stays usable. database may be nil.
func NewService(log zerolog.Logger, bus *events.Bus, doc *workspace.Document, library *fixture.Library, transport playback.Transport, tickRateHz float64, database *gorm.DB) *Service {
	s := &Service{
		log:     log.With().Str("component", "show").Logger(),
		bus:     bus,
		db:      database,
		doc:     doc,
		library: library,
		maps:    make(map[string][]*fixture.Map),
	}

	for _, group := range doc.Groups() {
		var maps []*fixture.Map
		for _, fix := range group.Fixtures {
			def, ok := library.Definition(fix.Manufacturer, fix.Model)
			if !ok {
				s.log.Warn().Str("fixture", fix.Name).Str("model", fix.Model).Msg("no definition in library, fixture skipped")
				continue
			}
			m, err := fixture.NewMap(fix, def)
			if err != nil {
				s.log.Warn().Err(err).Str("fixture", fix.Name).Msg("fixture skipped")
				continue
			}
			maps = append(maps, m)
			s.ordered = append(s.ordered, m)
		}
		s.maps[group.Name] = maps
	}

	s.comp = compositor.New(log, bus, s)
	for name, maps := range s.maps {
		s.comp.AddGroup(name, maps)
	}
	s.compiler = sequence.NewCompiler(log, s)
	s.engine = playback.New(log, bus, s.comp, transport, s, tickRateHz)

	if bus != nil {
		bus.Publish(events.EventWorkspaceLoaded, events.Payload{"name": doc.Name, "shows": len(doc.Shows)})
	}
	return s
}

// TempoAt implements the tempo provider over the currently loaded
// show. With no show loaded it reports the fixed default.
func (s *Service) TempoAt(t float64) (float64, tempo.Signature) {
	s.mu.RLock()
	m := s.tempoMap
	s.mu.RUnlock()
	if m == nil {
		return tempo.DefaultBPM, tempo.Signature{Numerator: 4, Denominator: 4}
	}
	return m.TempoAt(t)
}

// Document returns the loaded workspace document.
func (s *Service) Document() *workspace.Document {
	return s.doc
}

// Engine returns the playback engine.
func (s *Service) Engine() *playback.Engine {
	return s.engine
}

// Compositor returns the live compositor.
func (s *Service) Compositor() *compositor.Compositor {
	return s.comp
}

// CurrentShow returns the name of the loaded show, or empty.
func (s *Service) CurrentShow() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Name
}

// LoadShow makes the named show current: its tempo map drives playback
// and its lanes are handed to the compositor.
func (s *Service) LoadShow(name string) error {
	sh, ok := s.doc.Show(name)
	if !ok {
		return fmt.Errorf("show %q not in workspace", name)
	}

	s.mu.Lock()
	s.current = sh
	s.tempoMap = sh.TempoMap()
	s.mu.Unlock()

	s.comp.SetLanes(sh.BuildLanes())
	s.log.Info().Str("show", name).Msg("show loaded")
	return nil
}

// CompiledTrack pairs a lane with its compiled sequences.
type CompiledTrack struct {
	Lane      string
	Sequences []qlc.Sequence
}

// CompileShow compiles every envelope of every lane in the named show.
func (s *Service) CompileShow(name string) ([]CompiledTrack, error) {
	sh, ok := s.doc.Show(name)
	if !ok {
		return nil, fmt.Errorf("show %q not in workspace", name)
	}

	s.mu.Lock()
	s.tempoMap = sh.TempoMap()
	s.mu.Unlock()

	var tracks []CompiledTrack
	for _, lane := range sh.BuildLanes() {
		targets := s.maps[lane.FixtureGroup]
		ct := CompiledTrack{Lane: lane.Name}
		for _, env := range lane.Envelopes {
			desc, err := s.compiler.Compile(env, targets, sequence.Options{
				Tag:         env.Name,
				StartOffset: time.Duration(env.Span.Start * float64(time.Second)),
			})
			if err != nil {
				return nil, fmt.Errorf("compile %s/%s: %w", lane.Name, env.Name, err)
			}
			telemetry.CompileSteps.Observe(float64(len(desc.Steps)))
			s.recordCompile(name, desc)
			ct.Sequences = append(ct.Sequences, qlc.Sequence{Name: env.Name, Description: desc})
		}
		tracks = append(tracks, ct)
	}

	if s.bus != nil {
		s.bus.Publish(events.EventCompileFinished, events.Payload{"show": name, "tracks": len(tracks)})
	}
	return tracks, nil
}

func (s *Service) recordCompile(showName string, desc *sequence.Description) {
	if s.db == nil {
		return
	}
	run := models.CompileRun{
		Tag:         desc.Pointer.Tag,
		StartOffset: desc.Pointer.StartOffset,
		StepCount:   len(desc.Steps),
	}
	if err := s.db.Create(&run).Error; err != nil {
		s.log.Warn().Err(err).Msg("compile run not recorded")
	}
}

// ExportShow compiles the named show and writes a QLC+ workspace.
func (s *Service) ExportShow(name string, w io.Writer) error {
	tracks, err := s.CompileShow(name)
	if err != nil {
		return err
	}

	bpm := tempo.DefaultBPM
	if sh, ok := s.doc.Show(name); ok && len(sh.Parts) > 0 {
		bpm = sh.Parts[0].BPM
	}

	in := qlc.Input{ShowName: name, BPM: bpm}
	for _, m := range s.ordered {
		in.Patches = append(in.Patches, qlc.Patch{Fixture: m.Fixture, Channels: m.Channels()})
	}
	for _, t := range tracks {
		in.Tracks = append(in.Tracks, qlc.Track{Name: t.Lane, Sequences: t.Sequences})
	}
	return qlc.NewExporter(s.log).Export(w, in)
}
