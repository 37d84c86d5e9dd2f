package pipeline

import (
	"fmt"
	"log"

	"arena-agent/internal/intent"
	"arena-agent/internal/session"
)

// recover maps environment errors to repair-and-retry behavior. Repairs are
// queued as instructions ahead of the retried instruction, and the user
// intent is forced to act so the agent consumes them immediately. A repeated
// repair since the last original utterance downgrades to a generic failure to
// break retry cycles.
func (p *Pipeline) recover(env *Env) {
	ev := env.Turn.IntentBundle.Environment
	if ev == nil {
		return
	}

	switch ev.Kind {
	case intent.KindAlreadyHolding:
		// Holding the thing we were told to pick up is success in disguise.
		log.Printf("[Pipeline] swallowing already-holding error for %q", ev.Entity)
		return
	case intent.KindReceptacleClosed, intent.KindOutOfRange, intent.KindUnsupportedNavigate:
	default:
		// No repair mapping; the agent-intent stage surfaces the failure.
		return
	}

	if p.repairRepeated(env, ev) {
		log.Printf("[Pipeline] repair for %s(%s) already attempted, downgrading to generic failure", ev.Kind, ev.Entity)
		ge := intent.NewWithEntity(intent.KindGenericFailure, ev.Entity)
		ge.Action = ev.Action
		env.Turn.IntentBundle.Environment = &ge
		return
	}

	repairs := p.repairSequence(ev)
	if len(repairs) == 0 {
		return
	}

	// Retry the instruction whose action failed, after the repairs.
	if retry := retriedInstruction(env.History); retry != nil {
		repairs = append(repairs, *retry)
	}

	// ExtendHead reverses its input, so feeding the sequence backwards lands
	// it at the head in execution order.
	for i := len(repairs) - 1; i >= 0; i-- {
		env.State.UtteranceQueue.ExtendHead(repairs[i])
	}

	if env.Turn.IntentBundle.User == nil {
		act := intent.New(intent.KindAct)
		env.Turn.IntentBundle.User = &act
	}
	log.Printf("[Pipeline] queued %d repair step(s) for %s(%s)", len(repairs), ev.Kind, ev.Entity)
}

func (p *Pipeline) repairSequence(ev *intent.Intent) []session.Utterance {
	mk := func(text string) session.Utterance {
		return session.Utterance{Original: text, Role: session.RoleAgent, Source: session.SourceQueue}
	}
	switch ev.Kind {
	case intent.KindReceptacleClosed:
		return []session.Utterance{mk(fmt.Sprintf("open the %s", ev.Entity))}
	case intent.KindOutOfRange:
		return []session.Utterance{mk(fmt.Sprintf("go to the %s", ev.Entity))}
	case intent.KindUnsupportedNavigate:
		return []session.Utterance{mk("turn right"), mk("move forward"), mk("turn left")}
	}
	return nil
}

// repairRepeated scans environment intents recorded since the last original
// (non-queue-sourced) user utterance.
func (p *Pipeline) repairRepeated(env *Env, ev *intent.Intent) bool {
	for i := len(env.History) - 1; i >= 0; i-- {
		t := env.History[i]
		past := t.IntentBundle.Environment
		if past != nil && past.Kind == ev.Kind && past.Entity == ev.Entity {
			return true
		}
		if u := t.Utterance(); u != nil && u.Source == session.SourceUser {
			break
		}
	}
	return false
}

// retriedInstruction recovers the instruction whose action just failed: the
// most recent turn that carried one.
func retriedInstruction(history []session.Turn) *session.Utterance {
	for i := len(history) - 1; i >= 0; i-- {
		if u := history[i].Utterance(); u != nil {
			retry := *u
			retry.Source = session.SourceQueue
			return &retry
		}
	}
	return nil
}
