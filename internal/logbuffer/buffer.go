/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps a bounded in-memory ring of recent log
// entries so the HTTP API can serve them without touching disk.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-capacity ring of log entries. It implements
// io.Writer so it can sit behind a zerolog MultiLevelWriter.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	head     int
	count    int
	capacity int
}

const defaultCapacity = 1000

// New creates a buffer holding up to capacity entries. A capacity of
// zero or less falls back to the default.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Write parses a zerolog JSON line and records it. Lines that are not
// JSON objects are stored as raw messages so nothing is lost.
func (b *Buffer) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}

	entry := Entry{Timestamp: time.Now(), Level: "info"}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		entry.Message = line
		b.add(entry)
		return len(p), nil
	}

	fields := make(map[string]any)
	for k, v := range raw {
		switch k {
		case "level":
			if s, ok := v.(string); ok {
				entry.Level = s
			}
		case "message":
			if s, ok := v.(string); ok {
				entry.Message = s
			}
		case "component":
			if s, ok := v.(string); ok {
				entry.Component = s
			}
		case "time":
			if ts, ok := v.(float64); ok {
				entry.Timestamp = time.Unix(int64(ts), 0)
			}
		default:
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}
	b.add(entry)
	return len(p), nil
}

func (b *Buffer) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = e
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Query selects entries oldest-first, optionally filtered by level and
// component, keeping at most limit entries from the newest end. A
// limit of zero means no limit.
func (b *Buffer) Query(level, component string, limit int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if b.count == b.capacity {
		start = b.head
	}

	out := make([]Entry, 0, b.count)
	for i := 0; i < b.count; i++ {
		e := b.entries[(start+i)%b.capacity]
		if level != "" && e.Level != level {
			continue
		}
		if component != "" && e.Component != component {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Components returns the distinct component names currently buffered.
func (b *Buffer) Components() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for i := 0; i < b.count; i++ {
		c := b.entries[i].Component
		if c != "" && !seen[c] {
			seen[c] = true
			names = append(names, c)
		}
	}
	return names
}
