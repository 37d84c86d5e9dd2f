package planner

import (
	"log"

	"arena-agent/internal/action"
	"arena-agent/internal/worldmap"
)

// planCoverage selects viewpoints by greedy maximum coverage: a viewpoint
// covers every viewpoint within the room's coverage radius, and we repeatedly
// take the uncovered viewpoint whose cover set gains the most still-uncovered
// vertices (ties by insertion order) until the room budget runs out or
// everything is covered.
func (p *Planner) planCoverage(req Request) ([]action.Action, error) {
	candidates := make([]worldmap.Viewpoint, 0, len(req.Viewpoints)+1)
	forced := -1

	switch {
	case req.Known != nil:
		// A remembered location supersedes the current position entirely.
		candidates = append(candidates, *req.Known)
		forced = 0
	case req.Current != nil:
		candidates = append(candidates, *req.Current)
		forced = 0
	}
	candidates = append(candidates, req.Viewpoints...)
	if len(candidates) == 0 {
		return nil, ErrNoViewpoints
	}

	radius := p.cfg.CoverageRadius(req.Room)
	covers := make([][]int, len(candidates))
	for i := range candidates {
		for j := range candidates {
			if worldmap.Distance(candidates[i], candidates[j]) <= radius {
				covers[i] = append(covers[i], j)
			}
		}
	}

	budget := p.cfg.Budget(req.Room)
	covered := make([]bool, len(candidates))
	var selected []int

	pick := func(i int) {
		selected = append(selected, i)
		for _, j := range covers[i] {
			covered[j] = true
		}
	}

	if forced >= 0 {
		pick(forced)
	}

	for len(selected) < budget {
		best, bestGain := -1, 0
		for i := range candidates {
			if covered[i] {
				continue
			}
			gain := 0
			for _, j := range covers[i] {
				if !covered[j] {
					gain++
				}
			}
			if gain > bestGain {
				best, bestGain = i, gain
			}
		}
		if best < 0 {
			break
		}
		pick(best)
	}

	log.Printf("[Planner] room %s: selected %d/%d viewpoints (budget %d, radius %.1f)",
		req.Room, len(selected), len(candidates), budget, radius)

	return p.emit(req, candidates, selected), nil
}

// emit turns the selected viewpoints into the action schedule: an optional
// goto, then a 3-turn rotation sweep per stop. The very last rotation carries
// the terminal marker so the executor knows the sweep is exhausted.
func (p *Planner) emit(req Request, candidates []worldmap.Viewpoint, selected []int) []action.Action {
	var out []action.Action
	id := 1
	for si, i := range selected {
		vp := candidates[i]
		// The agent is already standing at its own position; every named stop
		// gets a goto first.
		if !(req.Known == nil && req.Current != nil && i == 0) {
			out = append(out, action.MustNew(id, action.TypeGotoViewpoint, action.GotoPayload{Viewpoint: vp.Name}))
			id++
		}
		for r := 0; r < 3; r++ {
			m := action.MotionPayload{Direction: action.DirRight, Magnitude: action.DefaultRotateMagnitude}
			if si == len(selected)-1 && r == 2 {
				m.Final = true
			}
			out = append(out, action.MustNew(id, action.TypeRotate, m))
			id++
		}
	}
	return out
}
