// Package mcp provides a Model Context Protocol server for Cube Crash.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Tool definitions for game operations
//   - Text rendering of boards, merge results, history and scores
//
// MCP Tools:
//
// The package exposes the following tools for AI agents:
//   - game_instructions: Rules, scoring and strategy
//   - create_session, get_session, list_sessions: Session management
//   - game_state: Board, HUD summary and the legal merges
//   - merge: Propose a merge between two cells
//   - next_level, restart: Level flow
//   - merge_history: Paginated merge history
//   - describe_cell: Details of a single cell
//   - list_configs: Available rule sets
//   - leaderboard: Best finished runs
//
// Architecture:
//
// The Client holds no game state. Every tool is a call to the REST API served
// by the api package, so an agent and a browser share the same sessions and
// websocket clients see the agent's merges live. Rejected merges are not tool
// errors: the result explains the rejection and shows the board.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
