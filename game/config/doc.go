// Package config provides rule set management for Cube Crash.
//
// The config package handles:
//   - Loading rule sets from YAML (or JSON) files
//   - Validation through engine.ValidateRules
//   - Default rule set selection with a built-in fallback
//   - Rule set discovery and listing
//   - Cache invalidation when rule files change on disk
//
// Rules Format:
//
// Rule sets live in the configs directory, one file per set:
//
//	name: classic
//	description: Classic 5x5 board
//	rows: 5
//	cols: 5
//	moves_per_board: 30
//	initial_tiles: 10
//	small_merge_charge: 0.10
//	crack_charge: 0.22
//	combo_decay_ms: 2000
//	wild_retry_ms: 600
//	reopen_table: [2, 2, 3, 4]
//
// Usage:
//
//	manager, err := config.NewManager("configs", logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rules, err := manager.LoadConfig("blitz")
//	defaultRules := manager.GetDefault()
//	configs, err := manager.ListConfigs()
//
//	// Reload rule sets edited while the server runs
//	go manager.Watch(ctx, nil)
package config
