package pipeline

import (
	"context"
	"log"

	"arena-agent/internal/action"
	"arena-agent/internal/intent"
	"arena-agent/internal/planner"
	"arena-agent/internal/worldmap"
)

// startSearch plans a sweep for entity and issues its first action. Memory is
// consulted first: a sighting in the current room becomes the forced first
// viewpoint, a sighting elsewhere becomes a room change followed by a direct
// revisit.
func (p *Pipeline) startSearch(ctx context.Context, env *Env, entity string) error {
	ib := &env.Turn.IntentBundle
	phys := intent.NewWithEntity(intent.KindSearch, entity)
	ib.AgentPhysical = &phys

	// The object may already be in view.
	if env.Frame != nil {
		g, err := p.grounder.Ground(ctx, entity, env.Frame)
		if err != nil {
			return err
		}
		if g.Found {
			foundObject(env, entity, g.ColorImageIndex, g.Mask)
			return nil
		}
	}

	env.State.SearchTarget = entity
	env.State.FindQueue.Reset()

	var known *worldmap.Viewpoint
	if s, ok := env.State.Memory.Read(env.Turn.Room, entity); ok {
		known = findViewpoint(env.Viewpoints, s.Viewpoint)
	} else if room, s, ok := env.State.Memory.ReadAnywhere(entity); ok {
		// Remembered in another room: go there, revisit the sighting, then a
		// sweep from that spot confirms or misses.
		log.Printf("[Pipeline] %q last seen in %s at %s", entity, room, s.Viewpoint)
		plan := []action.Action{
			action.MustNew(1, action.TypeGotoRoom, action.GotoPayload{Room: room}),
			action.MustNew(2, action.TypeGotoViewpoint, action.GotoPayload{Viewpoint: s.Viewpoint}),
			action.MustNew(3, action.TypeLook, action.MotionPayload{Direction: action.DirAround, Magnitude: 360, Final: true}),
		}
		return issueSearchStep(env, plan)
	}

	plan, err := p.planner.Plan(planner.Request{
		Room:       env.Turn.Room,
		Viewpoints: env.Viewpoints,
		Current:    env.CurrentPos,
		Known:      known,
	})
	if err != nil {
		log.Printf("[Pipeline] cannot plan search for %q: %v", entity, err)
		verbal := intent.NewWithEntity(intent.KindSearchFailure, entity)
		ib.AgentVerbal = &verbal
		env.State.AbandonSearch()
		ib.AgentPhysical = nil
		return nil
	}
	return issueSearchStep(env, plan)
}

// issueSearchStep loads the plan into the find queue and emits its head.
func issueSearchStep(env *Env, plan []action.Action) error {
	env.State.FindQueue.ExtendTail(plan...)
	step, _ := env.State.FindQueue.PopHead()
	step.ID = env.nextID()
	env.setInteraction(step)
	return nil
}

// continueSearch advances an in-progress sweep by one action, cutting the
// sweep short the moment grounding finds the target.
func (p *Pipeline) continueSearch(ctx context.Context, env *Env) error {
	ib := &env.Turn.IntentBundle
	entity := env.State.SearchTarget
	phys := intent.NewWithEntity(intent.KindSearch, entity)
	ib.AgentPhysical = &phys

	step, ok := env.State.FindQueue.PopHead()
	if !ok {
		env.State.AbandonSearch()
		return nil
	}

	// The goto-object/highlight tail means the object is already found; no
	// more grounding, just finish the approach.
	if step.Type == action.TypeHighlight || step.Type == action.TypeGotoObject {
		step.ID = env.nextID()
		env.setInteraction(step)
		if env.State.FindQueue.Empty() {
			env.State.AbandonSearch()
		}
		return nil
	}

	if env.Frame != nil {
		g, err := p.grounder.Ground(ctx, entity, env.Frame)
		if err != nil {
			return err
		}
		if g.Found {
			foundObject(env, entity, g.ColorImageIndex, g.Mask)
			return nil
		}
	}

	if m, ok := step.Payload.(action.MotionPayload); ok && m.Final && env.State.FindQueue.Empty() {
		// Last sweep step and still nothing: execute it, but admit defeat.
		verbal := intent.NewWithEntity(intent.KindSearchFailure, entity)
		ib.AgentVerbal = &verbal
		step.ID = env.nextID()
		env.setInteraction(step)
		env.State.AbandonSearch()
		return nil
	}

	step.ID = env.nextID()
	env.setInteraction(step)
	return nil
}

// foundObject cuts the sweep: the queue is cleared, the agent approaches the
// object this turn and highlights it next turn.
func foundObject(env *Env, entity string, imageIndex int, mask []int) {
	env.State.FindQueue.Reset()
	env.State.FindQueue.PushTail(action.MustNew(1, action.TypeHighlight, action.ObjectPayload{
		Name: entity, ColorImageIndex: imageIndex, Mask: mask,
	}))
	env.State.SearchTarget = entity

	verbal := intent.NewWithEntity(intent.KindFoundObject, entity)
	env.Turn.IntentBundle.AgentVerbal = &verbal
	approach := action.MustNew(env.nextID(), action.TypeGotoObject, action.GotoPayload{Object: entity})
	env.setInteraction(approach)
}

func findViewpoint(vps []worldmap.Viewpoint, name string) *worldmap.Viewpoint {
	for i := range vps {
		if vps[i].Name == name {
			return &vps[i]
		}
	}
	return nil
}
