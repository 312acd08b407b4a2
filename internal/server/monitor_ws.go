/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/varghele/QLCplusShowCreator/internal/events"
)

// monitorEvents is the set of event types forwarded to monitor clients.
var monitorEvents = []events.EventType{
	events.EventPlaybackStarted,
	events.EventPlaybackStopped,
	events.EventPlaybackHalted,
	events.EventPositionChanged,
	events.EventBlockStarted,
	events.EventBlockEnded,
	events.EventMappingMiss,
	events.EventExclusivityClash,
	events.EventCompileFinished,
}

type monitorMessage struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      events.Payload `json:"data,omitempty"`
}

// handleMonitorWS streams bus events to a websocket client. Slow
// clients drop events rather than stalling playback; the bus already
// skips full subscriber channels.
func (s *Server) handleMonitorWS(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event bus unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusNormalClosure, "bye")

	ctx := r.Context()

	subs := make(map[events.EventType]events.Subscriber, len(monitorEvents))
	for _, et := range monitorEvents {
		subs[et] = s.bus.Subscribe(et)
	}
	defer func() {
		for et, sub := range subs {
			s.bus.Unsubscribe(et, sub)
		}
	}()

	// Fan the subscriptions into one channel so a single writer owns
	// the connection.
	merged := make(chan monitorMessage, 32)
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for et, sub := range subs {
		go func(et events.EventType, sub events.Subscriber) {
			for {
				select {
				case <-fanCtx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- monitorMessage{Type: string(et), Timestamp: time.Now(), Data: payload}:
					default:
					}
				}
			}
		}(et, sub)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-merged:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, ws.MessageText, data)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}
