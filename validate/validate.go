// Command validate provides a small CLI that validates Cube Crash rules files
// (YAML or JSON) in the ../configs directory, or the files and directories
// named on the command line. It checks:
//   - Syntax, with unknown keys reported as errors
//   - Required fields and value ranges (board size, meter charges, timers, caps)
//   - The reopen table length and bounds
//   - Playability: seeded deals must leave at least one legal merge
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
)

// playabilityDeals is how many seeded boards are dealt per rules file
const playabilityDeals = 20

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) info(format string, args ...any) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// decodeStrict parses rules and rejects keys the Rules type does not know
func decodeStrict(data []byte, ext string) (*engine.Rules, error) {
	var rules engine.Rules
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rules); err != nil {
			return nil, err
		}
		return &rules, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return nil, err
	}
	return &rules, nil
}

// validateConfig loads and validates a single rules file.
// It performs structural checks, range validation through the engine, and a
// playability check over seeded deals.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	ext := filepath.Ext(filePath)
	rules, err := decodeStrict(data, ext)
	if err != nil {
		result.fail("Invalid %s: %v", strings.ToUpper(strings.TrimPrefix(ext, ".")), err)
		return result
	}

	if err := engine.ValidateRules(rules); err != nil {
		result.fail("%v", err)
		return result
	}

	if base := strings.TrimSuffix(filepath.Base(filePath), ext); rules.Name != base {
		result.Errors = append(result.Errors, fmt.Sprintf("Note: name %q differs from file name %q", rules.Name, base))
	}

	playable := validatePlayability(rules)
	if !playable.Valid {
		result.Valid = false
	}
	result.Errors = append(result.Errors, playable.Errors...)

	if result.Valid {
		result.info("Name: %s", rules.Name)
		result.info("Board: %dx%d, %d initial tiles", rules.Rows, rules.Cols, rules.InitialTiles)
		result.info("Moves per board: %d", rules.MovesPerBoard)
		result.info("Wild meter: %.2f per merge, %.2f per crack", rules.SmallMergeCharge, rules.CrackCharge)
		result.info("Combo decay: %v, wild retry: %v", rules.ComboDecay(), rules.WildRetry())
		result.info("Reopen table: %v", rules.ReopenTable)
	}

	return result
}

// validatePlayability deals seeded boards and fails if any deal is stuck or
// offers no merge the resolver accepts.
func validatePlayability(rules *engine.Rules) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []string{}}

	stuck := 0
	for seed := range uint64(playabilityDeals) {
		board, err := engine.NewBoard(rules, engine.WithRand(engine.NewSeededRand(seed+1)))
		if err != nil {
			result.fail("Cannot deal a board: %v", err)
			return result
		}
		_, ok := board.Hint()
		if board.IsStuck() || !ok {
			stuck++
		}
		board.Close()
	}

	if stuck > 0 {
		result.fail("Playability failure: %d/%d deals have no legal merge", stuck, playabilityDeals)
	} else {
		result.info("Playability: all %d deals have a legal merge", playabilityDeals)
	}
	return result
}

// isRulesFile reports whether path has a rules file extension
func isRulesFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// collectFiles expands directories into the rules files they contain
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && isRulesFile(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	return files, nil
}

// main validates ../configs or the paths given as arguments, printing a
// concise report and exiting with non-zero status if any file is invalid.
func main() {
	paths := os.Args[1:]
	if len(paths) == 0 {
		paths = []string{"../configs"}
	}

	files, err := collectFiles(paths)
	if err != nil {
		fmt.Printf("Error finding rules files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("No rules files found")
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All rules files are valid!")
	} else {
		fmt.Println("❌ Some rules files have errors")
		os.Exit(1)
	}
}
