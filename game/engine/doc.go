// Package engine provides the rules engine for Cube Crash, a tile-merging puzzle.
//
// The engine package implements the game mechanics including:
//   - The board grid of locked placeholders and active tiles
//   - Merge resolution into small merges and cracks
//   - The wild charge meter and its deferred spawn retries
//   - The idle-decaying combo tracker
//   - Cascading respawn of cells after a crack
//   - Clean and stuck board detection
//   - Snapshots for persistence and resume
//
// Core Types:
//
// The Engine interface defines the main contract for board operations,
// implemented by Board. Rules define the board size, budgets and tuning and are
// loaded from YAML or JSON files. State is a read-only view handed to clients,
// and Snapshot is the exact set of fields needed to resume a board.
//
// Usage:
//
//	rules, err := engine.LoadRulesByName("classic")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	board, err := engine.NewBoard(rules, engine.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer board.Close()
//
//	// Merge the tile at (0,0) into the tile at (1,0)
//	result, err := board.ProposeMerge(engine.Coord{X: 0, Y: 0}, engine.Coord{X: 1, Y: 0})
//
// Game Rules:
//
// Tiles hold values 1 to 5. Dragging one tile onto another merges them: a sum
// below six leaves the destination with the sum, a sum of exactly six cracks
// both tiles, scores by stack depth and combo, and reopens locked cells with
// fresh tiles. Wild tiles crack with any plain tile. Merges charge a meter
// which places a wild on the board for every full unit. A board with no tiles
// left is clean and the level is complete; a board with no legal merge is stuck
// and the run is over.
//
// Deferred tasks (combo decay, wild spawn retry) run through a Scheduler. Use
// ManualScheduler to drive them deterministically.
package engine
