/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package artnet sends DMX frames as Art-Net OpDmx packets over UDP.
// The sender owns its own cadence: per-universe output is limited to
// 44 Hz, callers may tick faster and let the limiter drop frames.
package artnet

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/telemetry"
)

const (
	headerID        = "Art-Net\x00"
	opDmx           = 0x5000
	protocolVersion = 14

	// MaxRateHz is the per-universe output ceiling.
	MaxRateHz = 44

	packetHeaderLen = 18
	frameLen        = 512
)

var minInterval = time.Second / MaxRateHz

// BuildPacket assembles one OpDmx packet. Data longer than 512 bytes is
// truncated, shorter data is zero-padded to a full frame.
func BuildPacket(sequence byte, universe int, data []byte) []byte {
	buf := make([]byte, packetHeaderLen+frameLen)
	copy(buf, headerID)
	// Opcode is little-endian, protocol version big-endian. Mixed by
	// the protocol, not by accident.
	buf[8] = byte(opDmx & 0xff)
	buf[9] = byte(opDmx >> 8)
	buf[10] = 0
	buf[11] = protocolVersion
	buf[12] = sequence
	buf[13] = 0 // physical port
	buf[14] = byte(universe & 0xff)
	buf[15] = byte((universe >> 8) & 0x7f)
	buf[16] = byte(frameLen >> 8)
	buf[17] = byte(frameLen & 0xff)
	copy(buf[packetHeaderLen:], data)
	return buf
}

// Sender writes OpDmx packets to one unicast or broadcast target.
type Sender struct {
	log  zerolog.Logger
	conn net.Conn

	mu       sync.Mutex
	sequence map[int]byte
	lastSend map[int]time.Time
}

// NewSender dials the target. Use a broadcast address (x.x.x.255) to
// reach every node on the segment.
func NewSender(log zerolog.Logger, target string, port int) (*Sender, error) {
	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", target, port))
	if err != nil {
		return nil, fmt.Errorf("dial artnet target %s:%d: %w", target, port, err)
	}
	return &Sender{
		log:      log.With().Str("component", "artnet").Logger(),
		conn:     conn,
		sequence: make(map[int]byte),
		lastSend: make(map[int]time.Time),
	}, nil
}

// Send transmits a frame for the universe, subject to the rate limit.
// A frame arriving before the universe's interval has elapsed is
// silently dropped; playback will deliver a fresher one shortly.
func (s *Sender) Send(universe int, data []byte) error {
	return s.send(universe, data, false)
}

// SendForce transmits regardless of the rate limit, for one-shot
// updates like a final blackout frame.
func (s *Sender) SendForce(universe int, data []byte) error {
	return s.send(universe, data, true)
}

func (s *Sender) send(universe int, data []byte, force bool) error {
	s.mu.Lock()
	if !force && !s.allowLocked(universe, time.Now()) {
		s.mu.Unlock()
		return nil
	}
	seq := s.nextSequenceLocked(universe)
	s.lastSend[universe] = time.Now()
	s.mu.Unlock()

	packet := BuildPacket(seq, universe, data)
	if _, err := s.conn.Write(packet); err != nil {
		s.log.Warn().Err(err).Int("universe", universe).Msg("artnet write failed")
		return fmt.Errorf("artnet send universe %d: %w", universe, err)
	}
	telemetry.PacketsSent.WithLabelValues(strconv.Itoa(universe)).Inc()
	return nil
}

// Blackout force-sends an all-zero frame to the universe.
func (s *Sender) Blackout(universe int) error {
	return s.SendForce(universe, make([]byte, frameLen))
}

// Close releases the socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}

func (s *Sender) allowLocked(universe int, now time.Time) bool {
	last, ok := s.lastSend[universe]
	if !ok {
		return true
	}
	return now.Sub(last) >= minInterval
}

// nextSequenceLocked cycles 1..255; zero means "sequence disabled" in
// the protocol and is skipped.
func (s *Sender) nextSequenceLocked(universe int) byte {
	seq := s.sequence[universe] + 1
	if seq == 0 {
		seq = 1
	}
	s.sequence[universe] = seq
	return seq
}
