// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package xref

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/pyxref/services/xref/graph"
)

const (
	clientBuffer = 16
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventMessage is one frame sent to event stream clients.
type EventMessage struct {
	Type  string          `json:"type"`
	Event *graph.RunEvent `json:"event,omitempty"`
}

// EventHub fans analysis runs out to websocket clients.
//
// Description:
//
//	Each client gets a buffered queue drained by its own writer goroutine.
//	A client whose queue is full misses the event rather than stalling the
//	publisher. EventHub implements graph.RunSink so it can be attached to
//	a watch session as well as to the service.
//
// Thread Safety: Safe for concurrent use.
type EventHub struct {
	mu      sync.Mutex
	clients map[string]chan []byte
	logger  *slog.Logger
}

// NewEventHub creates an empty hub.
func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{clients: make(map[string]chan []byte), logger: logger}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// RecordRun broadcasts ev to every connected client.
func (h *EventHub) RecordRun(_ context.Context, ev graph.RunEvent) error {
	data, err := json.Marshal(EventMessage{Type: "run", Event: &ev})
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, queue := range h.clients {
		select {
		case queue <- data:
		default:
			h.logger.Warn("event client lagging, dropping event",
				slog.String("client_id", id),
				slog.String("run_id", ev.RunID))
		}
	}
	return nil
}

// Serve upgrades the request and streams events until the client leaves.
func (h *EventHub) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	id := uuid.NewString()
	queue := h.register(id)
	defer h.unregister(id)
	h.logger.Info("event client connected", slog.String("client_id", id))

	hello, _ := json.Marshal(EventMessage{Type: "connected"})
	if err := h.write(ws, hello); err != nil {
		return
	}

	// The reader only exists to notice the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			h.logger.Info("event client disconnected", slog.String("client_id", id))
			return
		case <-r.Context().Done():
			return
		case data := <-queue:
			if err := h.write(ws, data); err != nil {
				h.logger.Warn("event write failed",
					slog.String("client_id", id),
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (h *EventHub) write(ws *websocket.Conn, data []byte) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (h *EventHub) register(id string) chan []byte {
	queue := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[id] = queue
	h.mu.Unlock()
	return queue
}

func (h *EventHub) unregister(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}
