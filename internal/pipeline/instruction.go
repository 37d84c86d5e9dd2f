package pipeline

import (
	"context"
	"log"
	"strings"

	"arena-agent/internal/action"
	"arena-agent/internal/intent"
	"arena-agent/internal/session"
)

// handleInstruction resolves one instruction: literal templates first, then
// the room-redirect heuristic, then the compound splitter, then the NLU
// classifier as the fallback of last resort.
func (p *Pipeline) handleInstruction(ctx context.Context, env *Env, u session.Utterance) error {
	ib := &env.Turn.IntentBundle
	text := u.Text()

	if isObjectQuestion(text) {
		return p.handleObjectQuestion(ctx, env, text)
	}

	if typ, payload, ok := literalAction(text); ok {
		a, err := action.New(env.nextID(), typ, payload)
		if err != nil {
			return err
		}
		phys := intent.Intent{Kind: intent.KindActOneMatch, Action: string(typ)}
		ib.AgentPhysical = &phys
		env.setInteraction(a)
		return nil
	}

	// An instruction naming another room means "go there first": the original
	// instruction is deferred behind the room change.
	if room, ok := mentionedRoom(text, env.Turn.Room, env.Rooms); ok && !mentionsGoing(text) {
		env.State.UtteranceQueue.PushHead(session.Utterance{
			Original: u.Original, Modified: u.Modified, Role: u.Role, Source: session.SourceQueue,
		})
		a := action.MustNew(env.nextID(), action.TypeGotoRoom, action.GotoPayload{Room: room})
		phys := intent.NewWithEntity(intent.KindAct, room)
		phys.Action = string(action.TypeGotoRoom)
		ib.AgentPhysical = &phys
		env.setInteraction(a)
		return nil
	}

	// Compound instructions split once, on original speech only; queue-sourced
	// utterances were already split.
	if u.Source == session.SourceUser && looksCompound(text) {
		parts, err := p.splitter.Split(ctx, text)
		if err != nil {
			log.Printf("[Pipeline] instruction splitter failed, handling unsplit: %v", err)
		} else if len(parts) > 1 {
			for _, part := range parts[1:] {
				env.State.UtteranceQueue.PushTail(session.Utterance{
					Original: part, Role: u.Role, Source: session.SourceQueue,
				})
			}
			text = parts[0]
			env.Turn.UtteranceMod = parts[0]
		}
	}

	res, err := p.nlu.Interpret(ctx, text, historyEvents(env.History, p.cfg.History.Window))
	if err != nil {
		return err
	}

	verdict := intent.Kind(res.Kind)
	switch {
	case verdict == intent.KindSearch:
		if held := env.State.Inventory; held != nil && strings.EqualFold(held.Entity, res.Entity) {
			// Never search for what the hand already holds.
			verbal := intent.NewWithEntity(intent.KindAlreadyHolding, res.Entity)
			ib.AgentVerbal = &verbal
			return nil
		}
		return p.startSearch(ctx, env, res.Entity)

	case verdict.TriggersQuestion():
		// Ask instead of acting; the instruction waits on the answer.
		verbal := intent.NewWithEntity(verdict, res.Entity)
		ib.AgentVerbal = &verbal
		env.State.Pending = &session.PendingQuestion{Kind: verdict, Entity: res.Entity, Deferred: &u}
		return nil

	case res.Kind == "question":
		return p.handleObjectQuestion(ctx, env, text)

	default: // act
		phys := intent.NewWithEntity(intent.KindActOneMatch, res.Entity)
		phys.Action = res.ActionType
		ib.AgentPhysical = &phys
		raw, err := p.generator.Generate(ctx, text, historyEvents(env.History, p.cfg.History.Window), env.FeaturesRaw)
		if err != nil {
			return err
		}
		a, err := decodeOrNil(env, raw)
		if err != nil {
			log.Printf("[Pipeline] undecodable generator output %q: %v", raw, err)
			verbal := intent.NewWithEntity(intent.KindNoMatch, res.Entity)
			ib.AgentVerbal = &verbal
			ib.AgentPhysical = nil
			return nil
		}
		env.setInteraction(a)
		return nil
	}
}

// handleObjectQuestion routes a world-knowledge question to the QA classifier
// and answers directly, with no physical action this turn.
func (p *Pipeline) handleObjectQuestion(ctx context.Context, env *Env, text string) error {
	qa, err := p.nlu.AnswerObjectQuestion(ctx, text)
	if err != nil {
		return err
	}
	verbal := intent.NewWithEntity(intent.KindObjectKnowledge, qa.Entity)
	env.Turn.IntentBundle.AgentVerbal = &verbal
	if qa.Answer != "" {
		d := action.Dialog(env.nextID(), qa.Answer, string(intent.KindObjectKnowledge))
		env.Turn.ActionBundle.Dialog = &d
	}
	return nil
}

func looksCompound(text string) bool {
	t := " " + normalize(text) + " "
	return strings.Contains(t, " then ") || strings.Contains(t, " and ") || strings.Contains(t, " after that ")
}

// mentionsGoing recognizes explicit navigation verbs so "go to the kitchen"
// decodes as the goto itself instead of deferring itself behind itself.
func mentionsGoing(text string) bool {
	t := normalize(text)
	return strings.HasPrefix(t, "go to ") || strings.HasPrefix(t, "goto ") || strings.HasPrefix(t, "walk to ")
}
