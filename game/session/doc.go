// Package session provides session management for Cube Crash.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - Routing of board events to a session-scoped listener
//   - Session persistence to JSON files or SQLite
//   - Recording of finished runs for the leaderboard
//
// Core Types:
//
// Manager is the main session manager that handles all session operations.
// Each service.Session owns one engine.Board. Deleting or expiring a session
// closes its board, which cancels the combo decay and wild retry timers.
//
// Session Identifiers:
//
// Sessions use 4-character hex IDs for easy reference, generated from
// cryptographic randomness. Lookups are case-insensitive.
//
// Persistence:
//
// Only the board snapshot and run bookkeeping are stored. When a stored
// snapshot fails validation the manager deals a fresh board and keeps the
// restore error on the session as RecoveredFrom.
//
// Usage:
//
//	store, err := session.NewSQLitePersistence("data/cubecrash.db", logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager := session.NewManagerWithPersistence(store, configs,
//		session.WithLogger(logger),
//		session.WithListener(hub.BroadcastEvent))
//
//	sess, err := manager.Create("", "classic", rules)
//	sess, err = manager.Get(sess.ID)
//
// Cleanup:
//
// CleanupExpiredSessions drops idle sessions from memory; their persisted
// copy stays and is read back on the next Get.
package session
