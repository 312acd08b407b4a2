/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package models defines the persisted entities: projects, patched
// fixtures, shows with their tempo parts, timeline blocks, and compile
// history. Runtime types live in internal/timeline and internal/tempo;
// these records are their storage shape.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project is one saved workspace.
type Project struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Path      string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fixture is one patched unit inside a project.
type Fixture struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	ProjectID    string `gorm:"type:uuid;index"`
	Universe     int
	Address      int
	Manufacturer string `gorm:"type:varchar(64)"`
	Model        string `gorm:"type:varchar(64)"`
	Name         string `gorm:"index"`
	GroupName    string `gorm:"index"`
	Mode         string `gorm:"type:varchar(64)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Show is one song timeline inside a project.
type Show struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ProjectID string `gorm:"type:uuid;index"`
	Name      string `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShowPart is one tempo section; Position orders parts within a show.
type ShowPart struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	ShowID     string `gorm:"type:uuid;index"`
	Position   int    `gorm:"index"`
	Name       string
	Signature  string `gorm:"type:varchar(8)"`
	BPM        float64
	Bars       int
	Transition string `gorm:"type:varchar(16)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Lane binds a fixture group to a row of envelopes.
type Lane struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ShowID    string `gorm:"type:uuid;index"`
	Name      string
	GroupName string `gorm:"index"`
	Muted     bool
	Solo      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Block is one timeline sub-block. Kind selects the sublane; Params
// holds the kind-specific fields as JSON so the schema stays stable
// while block types grow.
type Block struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	LaneID    string `gorm:"type:uuid;index"`
	Envelope  string `gorm:"index"`
	Kind      string `gorm:"type:varchar(16);index"`
	Start     float64
	End       float64
	Params    string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CompileRun records one offline compilation for diagnostics.
type CompileRun struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	ShowID      string `gorm:"type:uuid;index"`
	Tag         string `gorm:"index"`
	StartOffset time.Duration
	StepCount   int
	CreatedAt   time.Time
}

// PlaybackSession records one live run of a show.
type PlaybackSession struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ShowID    string `gorm:"type:uuid;index"`
	StartedAt time.Time
	StoppedAt *time.Time
	Position  float64
}

// BeforeCreate fills in UUID primary keys.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (f *Fixture) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

func (s *Show) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (p *ShowPart) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (l *Lane) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

func (b *Block) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (c *CompileRun) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (s *PlaybackSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
