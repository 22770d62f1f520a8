// Command analyze plays simulated games for every rule set in the configs
// directory and prints quick, human-readable statistics: mean and best score,
// levels cleared, how often runs end in game over, cracks and wild spawns.
//
// Games are seeded and driven by a manual clock, so a given seed always
// produces the same report.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taptapdesign-jimi/cube-crash/game/config"
	"github.com/taptapdesign-jimi/cube-crash/game/engine"
)

// Simulation parameters
type Params struct {
	Games     int
	Seed      uint64
	MaxMerges int
	MaxLevels int
	// Explore is the chance of playing a random legal merge instead of the best one
	Explore float64
	Workers int
}

// GameResult is the outcome of one simulated game
type GameResult struct {
	Score        uint64
	LevelsClear  int
	Merges       int
	Cracks       int
	WildSpawns   int
	GameOver     bool
	MergesCapped bool
}

// Report summarizes the games played with one rule set
type Report struct {
	Name         string
	Games        int
	MeanScore    float64
	MaxScore     uint64
	MeanLevels   float64
	MeanMerges   float64
	MeanCracks   float64
	MeanWilds    float64
	GameOverRate float64
	Capped       int
}

func main() {
	cmd := &cli.Command{
		Name:  "analyze",
		Usage: "Simulate games for each rule set and report statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing rule sets", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.IntFlag{Name: "games", Value: 200, Usage: "Games per rule set"},
			&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "Base seed"},
			&cli.IntFlag{Name: "max-merges", Value: 2000, Usage: "Merge cap per game"},
			&cli.IntFlag{Name: "max-levels", Value: 50, Usage: "Level cap per game"},
			&cli.FloatFlag{Name: "explore", Value: 0.2, Usage: "Chance of a random legal merge"},
			&cli.IntFlag{Name: "workers", Value: runtime.NumCPU(), Usage: "Parallel games"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			params := Params{
				Games:     int(cmd.Int("games")),
				Seed:      cmd.Uint64("seed"),
				MaxMerges: int(cmd.Int("max-merges")),
				MaxLevels: int(cmd.Int("max-levels")),
				Explore:   cmd.Float("explore"),
				Workers:   int(cmd.Int("workers")),
			}
			return analyzeDir(ctx, os.Stdout, cmd.String("config-dir"), params)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

// analyzeDir reports on every rule set found in dir
func analyzeDir(ctx context.Context, w io.Writer, dir string, params Params) error {
	manager, err := config.NewManager(dir, zap.NewNop())
	if err != nil {
		return err
	}
	infos, err := manager.ListConfigs()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return fmt.Errorf("no rule sets in %s", dir)
	}

	var reports []*Report
	for _, info := range infos {
		fmt.Fprintf(w, "\n=== Analyzing %s ===\n", info.ConfigID)
		rules, err := manager.LoadConfig(info.ConfigID)
		if err != nil {
			fmt.Fprintf(w, "Error loading rules: %v\n", err)
			continue
		}
		report, err := Analyze(ctx, rules, params)
		if err != nil {
			return err
		}
		printReport(w, rules, report)
		reports = append(reports, report)
	}

	if len(reports) > 1 {
		fmt.Fprintf(w, "\n=== Ranking by mean score ===\n")
		for i, r := range sortedReports(reports) {
			fmt.Fprintf(w, "%d. %s %.1f\n", i+1, r.Name, r.MeanScore)
		}
	}
	return nil
}

// Analyze plays params.Games games with rules in parallel
func Analyze(ctx context.Context, rules *engine.Rules, params Params) (*Report, error) {
	if params.Games <= 0 {
		return nil, fmt.Errorf("games must be positive")
	}
	results := make([]GameResult, params.Games)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, params.Workers))
	for i := range params.Games {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Simulate(rules, params.Seed+uint64(i), params)
			if err != nil {
				return fmt.Errorf("game %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarize(rules.Name, results), nil
}

// Simulate plays one seeded game until game over or a cap is reached
func Simulate(rules *engine.Rules, seed uint64, params Params) (GameResult, error) {
	var res GameResult
	clock := engine.NewManualScheduler(time.Unix(0, 0))
	policy := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	board, err := engine.NewBoard(rules,
		engine.WithRand(engine.NewSeededRand(seed)),
		engine.WithScheduler(clock),
		engine.WithEventSink(func(ev engine.Event) {
			if ev.Type == engine.EventTileSpawned && ev.Wild {
				res.WildSpawns++
			}
		}),
	)
	if err != nil {
		return res, err
	}
	defer board.Close()

	for res.Merges < params.MaxMerges {
		if board.Phase() == engine.PhaseEnding {
			st := board.State()
			if st.End == engine.EndGameOver {
				res.GameOver = true
				break
			}
			res.LevelsClear++
			if params.MaxLevels > 0 && res.LevelsClear >= params.MaxLevels {
				break
			}
			if _, err := board.NextLevel(); err != nil {
				return res, err
			}
			continue
		}

		src, dst, ok := chooseMerge(board, policy, params.Explore)
		if !ok {
			break
		}
		out, err := board.ProposeMerge(src, dst)
		if err != nil {
			return res, fmt.Errorf("merge %s -> %s: %w", src, dst, err)
		}
		res.Merges++
		if out.Outcome.Kind == engine.OutcomeCrack {
			res.Cracks++
		}
		// let pending wild retries fire between merges
		clock.Advance(rules.WildRetry())
	}

	res.MergesCapped = res.Merges >= params.MaxMerges
	res.Score = board.State().Score
	return res, nil
}

// chooseMerge returns the best legal merge, or a random one with probability explore
func chooseMerge(board *engine.Board, policy *rand.Rand, explore float64) (engine.Coord, engine.Coord, bool) {
	if explore > 0 && policy.Float64() < explore {
		if moves := legalMerges(board); len(moves) > 0 {
			m := moves[policy.IntN(len(moves))]
			return m[0], m[1], true
		}
	}
	best, ok := board.Hint()
	return best[0], best[1], ok
}

// legalMerges lists every proposal the board would accept
func legalMerges(board *engine.Board) [][2]engine.Coord {
	st := board.State()
	var active []engine.Coord
	for y, row := range st.Grid {
		for x, t := range row {
			if t.Active() {
				active = append(active, engine.Coord{X: x, Y: y})
			}
		}
	}

	var moves [][2]engine.Coord
	for _, src := range active {
		for _, dst := range active {
			if src == dst {
				continue
			}
			if !board.Preview(src, dst).Rejected() {
				moves = append(moves, [2]engine.Coord{src, dst})
			}
		}
	}
	return moves
}

func summarize(name string, results []GameResult) *Report {
	r := &Report{Name: name, Games: len(results)}
	var score, levels, merges, cracks, wilds, over float64
	for _, res := range results {
		score += float64(res.Score)
		levels += float64(res.LevelsClear)
		merges += float64(res.Merges)
		cracks += float64(res.Cracks)
		wilds += float64(res.WildSpawns)
		if res.GameOver {
			over++
		}
		if res.MergesCapped {
			r.Capped++
		}
		r.MaxScore = max(r.MaxScore, res.Score)
	}
	n := float64(len(results))
	r.MeanScore = score / n
	r.MeanLevels = levels / n
	r.MeanMerges = merges / n
	r.MeanCracks = cracks / n
	r.MeanWilds = wilds / n
	r.GameOverRate = over / n
	return r
}

func printReport(w io.Writer, rules *engine.Rules, r *Report) {
	fmt.Fprintf(w, "Name: %s\n", rules.Name)
	fmt.Fprintf(w, "Board: %d x %d, %d moves, %d initial tiles\n", rules.Cols, rules.Rows, rules.MovesPerBoard, rules.InitialTiles)
	fmt.Fprintf(w, "Games: %d\n", r.Games)
	fmt.Fprintf(w, "Score: mean %.1f, best %d\n", r.MeanScore, r.MaxScore)
	fmt.Fprintf(w, "Levels cleared: mean %.2f\n", r.MeanLevels)
	fmt.Fprintf(w, "Merges: mean %.1f, cracks %.1f\n", r.MeanMerges, r.MeanCracks)
	fmt.Fprintf(w, "Wild spawns: mean %.2f\n", r.MeanWilds)
	fmt.Fprintf(w, "Game over rate: %.0f%%\n", r.GameOverRate*100)
	if r.Capped > 0 {
		fmt.Fprintf(w, "Games stopped at the merge cap: %d\n", r.Capped)
	}

	if r.GameOverRate == 1 && r.MeanLevels == 0 {
		fmt.Fprintf(w, "⚠️  No simulated game cleared a board\n")
	}
}

// sortedReports orders reports by mean score, best first
func sortedReports(reports []*Report) []*Report {
	out := slices.Clone(reports)
	slices.SortFunc(out, func(a, b *Report) int {
		switch {
		case a.MeanScore > b.MeanScore:
			return -1
		case a.MeanScore < b.MeanScore:
			return 1
		}
		return 0
	})
	return out
}
