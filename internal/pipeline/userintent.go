package pipeline

import (
	"context"

	"arena-agent/internal/intent"
	"arena-agent/internal/services"
)

// userIntent is stage 2: classify this turn's speech. A direct response to a
// pending question becomes a response intent; any other speech defaults to
// act. No speech leaves the user intent unset.
func (p *Pipeline) userIntent(ctx context.Context, env *Env) error {
	if !env.HasSpeech {
		return nil
	}
	text := env.Turn.Utterance().Text()

	if pending := env.State.Pending; pending != nil {
		switch {
		case pending.Kind.AsksDisambiguation():
			// The agent asked a disambiguation question; treat the reply as
			// the answer.
			iv := intent.NewWithEntity(intent.KindClarifyAnswer, text)
			env.Turn.IntentBundle.User = &iv
			return nil
		default:
			verdict, err := p.confirm.Classify(ctx, text)
			if err != nil {
				return err
			}
			switch verdict {
			case services.VerdictYes:
				iv := intent.New(intent.KindConfirmYes)
				env.Turn.IntentBundle.User = &iv
				return nil
			case services.VerdictNo:
				iv := intent.New(intent.KindConfirmNo)
				env.Turn.IntentBundle.User = &iv
				return nil
			}
			// Not an answer after all; the question stays pending and the
			// utterance is handled as a fresh instruction.
		}
	}

	iv := intent.New(intent.KindAct)
	env.Turn.IntentBundle.User = &iv
	return nil
}
