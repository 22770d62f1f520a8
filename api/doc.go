// Package api provides HTTP REST API handlers for Cube Crash.
//
// The api package implements:
//   - Session management endpoints
//   - Merge proposals, level advance and restart
//   - Paginated merge history
//   - Rule set listing, lookup and creation
//   - The score leaderboard
//   - WebSocket upgrade handling
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create new session ({"config_id": "blitz"}, empty body for the default)
//   - GET /api/sessions - List sessions (?sort=accessed|created|score&order=asc|desc&limit=N)
//   - GET /api/sessions/unified - Multi-session view (?sessionIds=a,b or ?configName=classic)
//   - GET /api/sessions/{id} - Get specific session
//   - DELETE /api/sessions/{id} - Delete session
//
// Game Operations:
//   - GET /api/sessions/{id}/state - Current board state
//   - POST /api/sessions/{id}/merge - Propose a merge
//   - POST /api/sessions/{id}/next-level - Deal the next level after a clean board
//   - POST /api/sessions/{id}/restart - Start a new run
//   - GET /api/sessions/{id}/history - Merge history (?page=1&limit=20&order=desc)
//
// Configuration and Scores:
//   - GET /api/configs - List available rule sets
//   - POST /api/configs - Save a rule set
//   - GET /api/configs/{name} - Get a rule set
//   - GET /api/leaderboard - Top finished runs (?rules=classic&limit=10)
//
// A merge proposal names two cells:
//
//	{"src": {"x": 0, "y": 2}, "dst": {"x": 1, "y": 2}}
//
// A rejected proposal answers 422 with the usual merge result plus an
// "error" field, so clients still receive the board state.
//
// Error Handling:
//
// Errors are returned as JSON:
//
//	{"error": "session not found"}
//
// Status codes: 400 for malformed requests and invalid rule sets, 404 for
// unknown sessions or rule sets, 409 when the board is ending, busy, closed or
// not level complete, 422 for rejected proposals.
//
// Every state-changing call is followed by a state_update broadcast to the
// session's websocket clients.
//
// Usage:
//
//	server := api.NewServer(gameService, hub, logger)
//	http.ListenAndServe(":8080", server)
package api
