package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules is a rule set loaded from a YAML or JSON file
type Rules struct {
	Name             string  `json:"name" yaml:"name"`
	Description      string  `json:"description" yaml:"description"`
	Rows             int     `json:"rows" yaml:"rows"`
	Cols             int     `json:"cols" yaml:"cols"`
	MovesPerBoard    int     `json:"moves_per_board" yaml:"moves_per_board"`
	InitialTiles     int     `json:"initial_tiles" yaml:"initial_tiles"`
	DealAttempts     int     `json:"deal_attempts" yaml:"deal_attempts"`
	SmallMergeCharge float64 `json:"small_merge_charge" yaml:"small_merge_charge"`
	CrackCharge      float64 `json:"crack_charge" yaml:"crack_charge"`
	ComboDecayMs     int     `json:"combo_decay_ms" yaml:"combo_decay_ms"`
	WildRetryMs      int     `json:"wild_retry_ms" yaml:"wild_retry_ms"`
	ComboCap         int     `json:"combo_cap" yaml:"combo_cap"`
	ScoreCap         uint64  `json:"score_cap" yaml:"score_cap"`
	ReopenTable      []int   `json:"reopen_table" yaml:"reopen_table"`
	CleanBonus       int     `json:"clean_bonus" yaml:"clean_bonus"`
}

// DefaultRules returns the classic 5x5 rule set
func DefaultRules() *Rules {
	return &Rules{
		Name:             "classic",
		Description:      "Classic 5x5 board: merge to six to crack",
		Rows:             5,
		Cols:             5,
		MovesPerBoard:    DefaultMovesSize,
		InitialTiles:     10,
		DealAttempts:     8,
		SmallMergeCharge: 0.10,
		CrackCharge:      0.22,
		ComboDecayMs:     2000,
		WildRetryMs:      600,
		ComboCap:         DefaultComboCap,
		ScoreCap:         DefaultScoreCap,
		ReopenTable:      []int{2, 2, 3, 4},
		CleanBonus:       50,
	}
}

// ComboDecay returns the combo idle timeout
func (r *Rules) ComboDecay() time.Duration {
	return time.Duration(r.ComboDecayMs) * time.Millisecond
}

// WildRetry returns the interval between wild spawn retries
func (r *Rules) WildRetry() time.Duration {
	return time.Duration(r.WildRetryMs) * time.Millisecond
}

// ReopenCount returns how many cells a crack of the given depth reopens
func (r *Rules) ReopenCount(combinedDepth int) int {
	i := combinedDepth - 1
	if i < 0 || i >= len(r.ReopenTable) {
		return 2
	}
	return r.ReopenTable[i]
}

// CleanBonusFor returns the bonus for clearing the board of the given level
func (r *Rules) CleanBonusFor(level uint32) uint64 {
	return uint64(r.CleanBonus) * uint64(max(level, 1))
}

// Clone returns a deep copy of the rules
func (r *Rules) Clone() *Rules {
	c := *r
	c.ReopenTable = append([]int(nil), r.ReopenTable...)
	return &c
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("rules validation: %s: %w", fmt.Sprintf(format, args...), ErrInvalidRules)
}

// ValidateRules checks a rule set for correctness and playability
func ValidateRules(r *Rules) error {
	if r == nil {
		return invalid("rules are nil")
	}
	if r.Name == "" {
		return invalid("name is required")
	}
	if r.Description == "" {
		return invalid("description is required")
	}

	// Board size
	if r.Rows < MinGridSize || r.Rows > MaxGridSize {
		return invalid("rows must be between %d and %d, got %d", MinGridSize, MaxGridSize, r.Rows)
	}
	if r.Cols < MinGridSize || r.Cols > MaxGridSize {
		return invalid("cols must be between %d and %d, got %d", MinGridSize, MaxGridSize, r.Cols)
	}
	cells := r.Rows * r.Cols
	if r.InitialTiles < 2 || r.InitialTiles > cells {
		return invalid("initial_tiles must be between 2 and %d, got %d", cells, r.InitialTiles)
	}
	if r.MovesPerBoard < 1 {
		return invalid("moves_per_board must be positive, got %d", r.MovesPerBoard)
	}
	if r.DealAttempts < 1 {
		return invalid("deal_attempts must be positive, got %d", r.DealAttempts)
	}

	// Meter
	for name, v := range map[string]float64{"small_merge_charge": r.SmallMergeCharge, "crack_charge": r.CrackCharge} {
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return invalid("%s must be in (0, 1], got %v", name, v)
		}
	}

	// Timers
	if r.ComboDecayMs <= 0 {
		return invalid("combo_decay_ms must be positive, got %d", r.ComboDecayMs)
	}
	if r.WildRetryMs <= 0 {
		return invalid("wild_retry_ms must be positive, got %d", r.WildRetryMs)
	}

	if r.ComboCap < 1 {
		return invalid("combo_cap must be positive, got %d", r.ComboCap)
	}
	if r.ScoreCap == 0 {
		return invalid("score_cap must be positive")
	}

	if len(r.ReopenTable) != MaxStackDepth {
		return invalid("reopen_table must have %d entries, got %d", MaxStackDepth, len(r.ReopenTable))
	}
	for i, n := range r.ReopenTable {
		if n < 1 || n > cells {
			return invalid("reopen_table[%d] must be between 1 and %d, got %d", i, cells, n)
		}
	}

	if r.CleanBonus < 0 {
		return invalid("clean_bonus must not be negative, got %d", r.CleanBonus)
	}

	return nil
}

// ParseRules decodes rules from data; ext selects JSON when it is ".json"
func ParseRules(data []byte, ext string) (*Rules, error) {
	var r Rules
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &r)
	} else {
		err = yaml.Unmarshal(data, &r)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadRules loads and validates a rules file
func LoadRules(filename string) (*Rules, error) {
	// Support CONFIG_DIR environment variable for alternative config directory
	path := filename
	if configDir := os.Getenv("CONFIG_DIR"); configDir != "" {
		if strings.HasPrefix(filename, "configs/") {
			path = filepath.Join(configDir, strings.TrimPrefix(filename, "configs/"))
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}

	r, err := ParseRules(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("rules: unmarshal %s: %w", path, err)
	}

	if err := ValidateRules(r); err != nil {
		return nil, fmt.Errorf("rules: %s: %w", path, err)
	}

	return r, nil
}

// LoadRulesByName loads a rule set by name from the configs directory
func LoadRulesByName(name string) (*Rules, error) {
	dir := "configs"
	if configDir := os.Getenv("CONFIG_DIR"); configDir != "" {
		dir = configDir
	}
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadRules(path)
		}
	}
	return nil, fmt.Errorf("rules '%s' not found", name)
}
