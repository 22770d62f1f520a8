// Package websocket provides WebSocket transport for Cube Crash.
//
// The websocket package implements:
//   - Session-scoped WebSocket connections
//   - State broadcasting after REST operations
//   - Live board events, including those raised by deferred tasks
//   - Connection lifecycle management with ping/pong keepalive
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. The client registry belongs to the Run loop; clients,
// broadcasts and count queries reach it over channels. Each client connection
// has a read pump and a write pump goroutine.
//
// Message Protocol:
//
// Clients only listen. Outgoing messages are JSON objects:
//
//	{"session_id": "ab12", "type": "state_update", "state": {...}}
//	{"session_id": "ab12", "type": "event", "event": {"type": "combo_changed", "count": 0}}
//
// Several queued messages may share one frame, separated by newlines.
//
// Session Integration:
//
// Clients pass their session ID as a query parameter (/ws?session=ab12).
// Hub.BroadcastEvent has the session.EventListener signature, so the session
// manager can route every board event straight to the hub. Broadcasting never
// blocks; when the queue is full the message is dropped.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//
//	sessions := session.NewManager(session.WithListener(hub.BroadcastEvent))
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
package websocket
