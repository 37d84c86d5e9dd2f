package planner

import (
	"errors"

	"arena-agent/internal/action"
	"arena-agent/internal/config"
	"arena-agent/internal/worldmap"
)

// Request carries everything a strategy needs to schedule a search sweep.
// The planner only produces a schedule; it never looks at vision output.
type Request struct {
	Room       string
	Viewpoints []worldmap.Viewpoint
	// Current is the agent's position, used as the forced first pick when no
	// known location is supplied.
	Current *worldmap.Viewpoint
	// Known is a remembered or caller-supplied target location. When set it
	// is forced first and supersedes Current.
	Known *worldmap.Viewpoint
	// PartialMatch marks a search for an object that was previously partially
	// matched; the basic strategy degrades to a single look-around then.
	PartialMatch bool
}

// Planner turns a find-object goal into an ordered action schedule, executed
// one action per turn from the find queue.
type Planner struct {
	cfg config.PlannerConfig
}

func New(cfg config.PlannerConfig) *Planner {
	return &Planner{cfg: cfg}
}

var ErrNoViewpoints = errors.New("room has no viewpoints to cover")

// Plan dispatches to the configured strategy.
func (p *Planner) Plan(req Request) ([]action.Action, error) {
	switch p.cfg.Strategy {
	case "basic":
		return p.planBasic(req), nil
	default:
		return p.planCoverage(req)
	}
}

// planBasic is a fixed rotation sweep from the current pose: four 90° turns,
// or one full look-around when the target was previously partially matched.
func (p *Planner) planBasic(req Request) []action.Action {
	if req.PartialMatch {
		return []action.Action{
			action.MustNew(1, action.TypeLook, action.MotionPayload{Direction: action.DirAround, Magnitude: 360, Final: true}),
		}
	}
	var out []action.Action
	for i := 0; i < 4; i++ {
		m := action.MotionPayload{Direction: action.DirRight, Magnitude: action.DefaultRotateMagnitude}
		if i == 3 {
			m.Final = true
		}
		out = append(out, action.MustNew(i+1, action.TypeRotate, m))
	}
	return out
}
