package pipeline

import (
	"log"
	"strings"

	"arena-agent/internal/action"
	"arena-agent/internal/intent"
	"arena-agent/internal/rules"
)

// feedback selects the turn's dialog action. Routine acting turns stay
// silent; the engine speaks only when the pipeline produced a verbal intent,
// unless the object-QA handler already wrote the answer itself.
func (p *Pipeline) feedback(env *Env) error {
	if env.Turn.ActionBundle.Dialog != nil {
		return nil
	}
	verbal := env.Turn.IntentBundle.AgentVerbal
	if verbal == nil {
		return nil
	}

	snap := buildSnapshot(env)
	sel, err := p.rules.Select(snap)
	if err != nil {
		// A rule set whose default cannot render is a deployment defect; the
		// turn still completes, just mute.
		log.Printf("[Pipeline] feedback selection failed: %v", err)
		return nil
	}
	d := action.Dialog(env.nextID(), sel.Text, string(verbal.Kind))
	env.Turn.ActionBundle.Dialog = &d
	env.State.RememberRule(sel.RuleID, p.cfg.Rules.RecentWindow)
	return nil
}

// buildSnapshot flattens the turn and session state into the fields rule
// conditions and template slots read.
func buildSnapshot(env *Env) rules.Snapshot {
	ib := env.Turn.IntentBundle
	fields := map[string]any{
		"turn_count":            len(env.History) + 1,
		"room":                  env.Turn.Room,
		"viewpoint":             env.Turn.Viewpoint,
		"utterance_queue_empty": env.State.UtteranceQueue.Empty(),
		"find_queue_empty":      env.State.FindQueue.Empty(),
		"search_target":         env.State.SearchTarget,
		"holding":               "",
	}
	if env.State.Inventory != nil {
		fields["holding"] = env.State.Inventory.Entity
	}

	var entity string
	setIntent := func(key string, iv *intent.Intent) {
		if iv == nil {
			return
		}
		fields[key] = string(iv.Kind)
		if entity == "" {
			entity = iv.Entity
		}
	}
	setIntent("agent_verbal", ib.AgentVerbal)
	setIntent("agent_intent", ib.AgentPhysical)
	setIntent("environment_intent", ib.Environment)
	setIntent("user_intent", ib.User)
	fields["entity"] = entity

	if a := env.Turn.ActionBundle.Interaction; a != nil {
		fields["action"] = string(a.Type)
	}

	// Per-type interaction counters since session start.
	for _, t := range env.History {
		if a := t.ActionBundle.Interaction; a != nil {
			key := "count_" + strings.ToLower(string(a.Type))
			n, _ := fields[key].(int)
			fields[key] = n + 1
		}
	}

	return rules.Snapshot{
		Fields:             fields,
		UsedRuleIDs:        env.State.UsedRuleIDs,
		RequireLightweight: !trajectoryEnded(env.Turn.ActionBundle.Interaction),
	}
}

// trajectoryEnded reports whether this turn's physical action concludes a
// movement sequence. Mid-sweep turns demand lightweight responses so speech
// does not outlast the motion.
func trajectoryEnded(a *action.Action) bool {
	if a == nil {
		return true
	}
	if m, ok := a.Payload.(action.MotionPayload); ok {
		return m.Final
	}
	return !isMotionLike(a.Type)
}

func isMotionLike(t action.Type) bool {
	switch t {
	case action.TypeRotate, action.TypeLook, action.TypeMove,
		action.TypeGotoViewpoint, action.TypeGotoRoom, action.TypeGotoObject:
		return true
	}
	return false
}
