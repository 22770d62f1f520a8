package engine

// Resolver computes and commits the outcome of one merge proposal
type Resolver struct {
	rules *Rules
	grid  *Grid
	run   *RunState
	combo *ComboTracker
	meter *WildMeter
}

// NewResolver wires a resolver to the board components it mutates
func NewResolver(rules *Rules, grid *Grid, run *RunState, combo *ComboTracker, meter *WildMeter) *Resolver {
	return &Resolver{rules: rules, grid: grid, run: run, combo: combo, meter: meter}
}

func reject(src, dst Coord, reason string) MergeOutcome {
	return MergeOutcome{Kind: OutcomeRejected, Src: src, Dst: dst, Reason: reason}
}

// Evaluate computes the outcome of merging src into dst without mutating anything
func (r *Resolver) Evaluate(src, dst Coord) MergeOutcome {
	if src == dst {
		return reject(src, dst, "source and destination are the same tile")
	}
	s, ok := r.grid.Get(src)
	if !ok {
		return reject(src, dst, "source is off the board")
	}
	d, ok := r.grid.Get(dst)
	if !ok {
		return reject(src, dst, "destination is off the board")
	}
	if s.Locked {
		return reject(src, dst, "source is locked")
	}
	if d.Locked {
		return reject(src, dst, "destination is locked")
	}
	if s.IsWild() && d.IsWild() {
		return reject(src, dst, "wild cannot merge with wild")
	}

	wildActive := s.IsWild() || d.IsWild()
	sum := s.Value + d.Value
	if wildActive {
		sum = CrackValue
	}

	switch {
	case sum < CrackValue:
		return MergeOutcome{
			Kind:       OutcomeSmallMerge,
			Src:        src,
			Dst:        dst,
			NewValue:   sum,
			NewDepth:   min(MaxStackDepth, s.StackDepth+d.StackDepth),
			ScoreDelta: uint64(sum),
		}
	case sum == CrackValue:
		depth := min(MaxStackDepth, s.StackDepth+d.StackDepth)
		multiplier := min(depth, 3)
		combo := max(1, r.combo.Current())
		return MergeOutcome{
			Kind:           OutcomeCrack,
			Src:            src,
			Dst:            dst,
			CombinedDepth:  depth,
			Multiplier:     multiplier,
			ReopenCount:    r.rules.ReopenCount(depth),
			GuaranteedWild: !r.run.WildGuaranteedOnce,
			ScoreDelta:     uint64(CrackValue) * uint64(multiplier) * uint64(combo),
		}
	default:
		return reject(src, dst, "sum exceeds six")
	}
}

// Resolve evaluates a proposal and, unless it is rejected, commits it in full
func (r *Resolver) Resolve(src, dst Coord) MergeOutcome {
	out := r.Evaluate(src, dst)
	if out.Rejected() {
		return out
	}
	r.commit(out)
	return out
}

func (r *Resolver) commit(out MergeOutcome) {
	switch out.Kind {
	case OutcomeSmallMerge:
		d, _ := r.grid.Get(out.Dst)
		d.Value = out.NewValue
		d.StackDepth = out.NewDepth
		_ = r.grid.Set(out.Dst, d)
		r.grid.Lock(out.Src)
		r.meter.Add(r.rules.SmallMergeCharge)
	case OutcomeCrack:
		r.grid.Lock(out.Src)
		r.grid.Lock(out.Dst)
		r.meter.Add(r.rules.CrackCharge)
	}
	r.run.AddScore(out.ScoreDelta, r.rules.ScoreCap)
	r.combo.OnMerge()
}
