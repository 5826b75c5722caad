// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package service

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
)

// BuildEvent is one message on the watch stream.
type BuildEvent struct {
	Type    string              `json:"type"`
	Stats   pipeline.BuildStats `json:"stats"`
	AtMilli int64               `json:"at"`
}

// Hub fans build events out to websocket subscribers.
//
// Thread Safety: safe for concurrent use. A subscriber too slow to
// drain its buffer is disconnected rather than stalling broadcasts.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan BuildEvent
}

// The service binds to localhost by default; cross-origin browser
// clients are local tooling, so origin checks stay permissive.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan BuildEvent),
	}
}

// Broadcast queues an event for every connected client.
func (h *Hub) Broadcast(event BuildEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- event:
		default:
			h.logger.Warn("Dropping slow watch subscriber")
			close(ch)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// serve upgrades the connection and streams events until the client
// disconnects.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	ch := make(chan BuildEvent, 8)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	h.logger.Info("Watch subscriber connected", slog.String("remote", conn.RemoteAddr().String()))

	// Reader: only there to observe the close handshake.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			h.remove(conn)
			return
		}
	}
}

// remove drops a client; safe to call twice for the same connection.
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	conn.Close()
}
