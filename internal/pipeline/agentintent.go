package pipeline

import (
	"context"
	"log"

	"arena-agent/internal/action"
	"arena-agent/internal/intent"
	"arena-agent/internal/services"
	"arena-agent/internal/session"
)

// agentIntent is stage 4. Priority: user intent wins; else an environment
// intent surfaces; else an in-progress search continues; else queued
// sub-instructions run; else the agent acts on one match from context.
func (p *Pipeline) agentIntent(ctx context.Context, env *Env) error {
	ib := &env.Turn.IntentBundle

	if ib.User != nil {
		switch {
		case ib.User.Kind == intent.KindClarifyAnswer:
			return p.handleClarification(ctx, env)
		case ib.User.Kind.ConfirmationResponse():
			return p.handleConfirmation(ctx, env)
		default:
			u := env.Turn.Utterance()
			if u == nil {
				// Recovery forced an act with no speech; consume the queue.
				if q, ok := env.State.UtteranceQueue.PopHead(); ok {
					u = &q
					adoptUtterance(env.Turn, q)
				}
			}
			if u != nil {
				return p.handleInstruction(ctx, env, *u)
			}
		}
	}

	if ev := ib.Environment; ev != nil && ev.Kind != intent.KindAlreadyHolding {
		// No repair was possible; tell the user instead of acting.
		verbal := intent.NewWithEntity(intent.KindGenericFailure, ev.Entity)
		verbal.Action = ev.Action
		ib.AgentVerbal = &verbal
		return nil
	}

	if !env.State.FindQueue.Empty() {
		return p.continueSearch(ctx, env)
	}

	if q, ok := env.State.UtteranceQueue.PopHead(); ok {
		adoptUtterance(env.Turn, q)
		act := intent.New(intent.KindAct)
		ib.User = &act
		return p.handleInstruction(ctx, env, q)
	}

	return p.actOneMatch(ctx, env, "")
}

// adoptUtterance records a queue-sourced instruction as this turn's utterance.
func adoptUtterance(t *session.Turn, u session.Utterance) {
	t.UtteranceOrig = u.Original
	t.UtteranceMod = u.Modified
	t.SpeakerRole = u.Role
	t.UtteranceSource = session.SourceQueue
}

// handleConfirmation resolves a pending yes/no question by re-queuing or
// discarding whatever was deferred.
func (p *Pipeline) handleConfirmation(ctx context.Context, env *Env) error {
	ib := &env.Turn.IntentBundle
	pending := env.State.Pending
	env.State.Pending = nil
	if pending == nil {
		// A stray yes/no with nothing pending; act on one match.
		return p.actOneMatch(ctx, env, "")
	}

	if ib.User.Kind == intent.KindConfirmNo {
		switch pending.Kind {
		case intent.KindConfirmBeforePlan:
			env.State.AbandonPlan()
		case intent.KindConfirmBeforeAct:
		default:
			env.State.AbandonSearch()
		}
		ok := intent.New(intent.KindConfirmNo)
		ib.AgentVerbal = &ok
		return nil
	}

	switch pending.Kind {
	case intent.KindConfirmBeforeAct:
		// Re-execute the deferred action without re-planning.
		prev := intent.NewWithEntity(intent.KindActPrevious, pending.Entity)
		ib.AgentPhysical = &prev
		if len(pending.DeferredPlan) > 0 {
			a := pending.DeferredPlan[0]
			a.ID = env.nextID()
			env.setInteraction(a)
			return nil
		}
		if pending.Deferred != nil {
			return p.handleInstruction(ctx, env, *pending.Deferred)
		}
		return nil
	case intent.KindConfirmBeforePlan:
		if pending.Deferred != nil {
			return p.handleInstruction(ctx, env, *pending.Deferred)
		}
		return nil
	default:
		// Confirmed search: plan the sweep now.
		return p.startSearch(ctx, env, pending.Entity)
	}
}

// handleClarification collapses a disambiguation answer to act-one-match.
func (p *Pipeline) handleClarification(ctx context.Context, env *Env) error {
	pending := env.State.Pending
	env.State.Pending = nil
	entity := env.Turn.IntentBundle.User.Entity
	if pending != nil && pending.Entity != "" {
		entity = pending.Entity
	}
	return p.actOneMatch(ctx, env, entity)
}

// actOneMatch asks the action generator for the single contextual action.
// Undecodable model output becomes a clarification question, never an error.
func (p *Pipeline) actOneMatch(ctx context.Context, env *Env, entity string) error {
	ib := &env.Turn.IntentBundle
	one := intent.NewWithEntity(intent.KindActOneMatch, entity)
	ib.AgentPhysical = &one

	utterance := entity
	if u := env.Turn.Utterance(); u != nil {
		utterance = u.Text()
	}
	raw, err := p.generator.Generate(ctx, utterance, historyEvents(env.History, p.cfg.History.Window), env.FeaturesRaw)
	if err != nil {
		return err
	}
	a, err := decodeOrNil(env, raw)
	if err != nil {
		log.Printf("[Pipeline] undecodable generator output %q: %v", raw, err)
		verbal := intent.New(intent.KindNoMatch)
		ib.AgentVerbal = &verbal
		ib.AgentPhysical = nil
		return nil
	}
	env.setInteraction(a)
	return nil
}

func decodeOrNil(env *Env, raw string) (action.Action, error) {
	return services.DecodeAction(env.nextID(), raw)
}
