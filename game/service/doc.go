// Package service provides the business logic layer for Cube Crash.
//
// The service package implements:
//   - Multi-session game management
//   - Rule set loading through a ConfigManager
//   - Merge proposals, level progression and restarts
//   - Merge history tracking
//   - Recording of finished runs for the leaderboard
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level game operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager manages rule set loading and validation.
// ScoreRecorder stores the final score of runs that ended in game over.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the game engine. Each session owns one engine.Board; the service serializes
// operations, keeps the merge history of the current run and auto-saves the
// session after every state change.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs", logger)
//	gameService := service.NewGameService(sessionMgr, configMgr, nil, logger)
//
//	info, err := gameService.CreateSession(ctx, "classic")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := gameService.Merge(ctx, info.ID, engine.Coord{X: 0, Y: 0}, engine.Coord{X: 1, Y: 0})
//
// Runs:
//
// A run spans from a fresh deal at level one to game over or restart. Every
// run carries a UUID; the score recorder uses it to store each result once.
package service
