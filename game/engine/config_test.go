package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRules(t *testing.T) {
	require.NoError(t, ValidateRules(DefaultRules()))

	tests := []struct {
		name   string
		mutate func(r *Rules)
	}{
		{"missing name", func(r *Rules) { r.Name = "" }},
		{"missing description", func(r *Rules) { r.Description = "" }},
		{"too few rows", func(r *Rules) { r.Rows = MinGridSize - 1 }},
		{"too many cols", func(r *Rules) { r.Cols = MaxGridSize + 1 }},
		{"one initial tile", func(r *Rules) { r.InitialTiles = 1 }},
		{"more tiles than cells", func(r *Rules) { r.InitialTiles = 26 }},
		{"no moves", func(r *Rules) { r.MovesPerBoard = 0 }},
		{"no deal attempts", func(r *Rules) { r.DealAttempts = 0 }},
		{"zero small charge", func(r *Rules) { r.SmallMergeCharge = 0 }},
		{"crack charge above one", func(r *Rules) { r.CrackCharge = 1.5 }},
		{"zero combo decay", func(r *Rules) { r.ComboDecayMs = 0 }},
		{"negative wild retry", func(r *Rules) { r.WildRetryMs = -1 }},
		{"zero combo cap", func(r *Rules) { r.ComboCap = 0 }},
		{"zero score cap", func(r *Rules) { r.ScoreCap = 0 }},
		{"short reopen table", func(r *Rules) { r.ReopenTable = []int{2, 2, 3} }},
		{"zero reopen entry", func(r *Rules) { r.ReopenTable = []int{2, 0, 3, 4} }},
		{"negative clean bonus", func(r *Rules) { r.CleanBonus = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRules()
			tt.mutate(r)
			err := ValidateRules(r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRules))
		})
	}
}

const classicYAML = `name: yaml-test
description: Rules loaded from YAML
rows: 4
cols: 6
moves_per_board: 12
initial_tiles: 8
deal_attempts: 4
small_merge_charge: 0.15
crack_charge: 0.25
combo_decay_ms: 1500
wild_retry_ms: 500
combo_cap: 50
score_cap: 10000
reopen_table: [2, 3, 3, 4]
clean_bonus: 25
`

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "yaml-test.yaml")
		require.NoError(t, os.WriteFile(path, []byte(classicYAML), 0644))

		r, err := LoadRules(path)
		require.NoError(t, err)
		assert.Equal(t, "yaml-test", r.Name)
		assert.Equal(t, 4, r.Rows)
		assert.Equal(t, 6, r.Cols)
		assert.Equal(t, []int{2, 3, 3, 4}, r.ReopenTable)
		assert.Equal(t, 1500, int(r.ComboDecay().Milliseconds()))
		assert.Equal(t, 500, int(r.WildRetry().Milliseconds()))
		assert.Equal(t, uint64(10000), r.ScoreCap)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "json-test.json")
		data := `{"name":"json-test","description":"JSON rules","rows":5,"cols":5,"moves_per_board":20,
"initial_tiles":10,"deal_attempts":3,"small_merge_charge":0.1,"crack_charge":0.22,"combo_decay_ms":2000,
"wild_retry_ms":600,"combo_cap":99,"score_cap":999999,"reopen_table":[2,2,3,4],"clean_bonus":50}`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		r, err := LoadRules(path)
		require.NoError(t, err)
		assert.Equal(t, "json-test", r.Name)
		assert.Equal(t, 20, r.MovesPerBoard)
	})

	t.Run("invalid rules", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: bad\ndescription: x\nrows: 1\n"), 0644))

		_, err := LoadRules(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidRules))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRules(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("by name from CONFIG_DIR", func(t *testing.T) {
		t.Setenv("CONFIG_DIR", dir)
		r, err := LoadRulesByName("yaml-test")
		require.NoError(t, err)
		assert.Equal(t, "yaml-test", r.Name)

		_, err = LoadRulesByName("unknown")
		assert.Error(t, err)
	})
}

func TestRulesClone(t *testing.T) {
	r := DefaultRules()
	c := r.Clone()
	c.ReopenTable[0] = 9
	assert.Equal(t, 2, r.ReopenTable[0])
}
