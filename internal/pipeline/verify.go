package pipeline

import (
	"context"
	"strings"

	"arena-agent/internal/intent"
)

// verify is stage 1: reject unusable speech before anything downstream runs.
// Returns nil when the utterance (or its absence) is acceptable.
func (p *Pipeline) verify(ctx context.Context, env *Env) (*intent.Intent, error) {
	if !env.HasSpeech {
		return nil, nil
	}
	text := strings.TrimSpace(env.Turn.UtteranceOrig)
	if text == "" {
		iv := intent.New(intent.KindEmptyUtterance)
		return &iv, nil
	}
	if p.onlyWakeWords(text) {
		iv := intent.New(intent.KindOnlyWakeWord)
		return &iv, nil
	}
	if env.ASRConfidence < p.cfg.Speech.MinASRConfidence {
		iv := intent.New(intent.KindLowASRConfidence)
		return &iv, nil
	}
	// The content filters degrade to a negative verdict on transport failure,
	// so an error here is a real refusal to classify and aborts the turn.
	if match, err := p.profanity.Check(ctx, text); err != nil {
		return nil, err
	} else if match {
		iv := intent.New(intent.KindProfanity)
		return &iv, nil
	}
	if match, err := p.ood.Check(ctx, text); err != nil {
		return nil, err
	} else if match {
		iv := intent.New(intent.KindOutOfDomain)
		return &iv, nil
	}
	return nil, nil
}

func (p *Pipeline) onlyWakeWords(text string) bool {
	if len(p.cfg.Speech.WakeWords) == 0 {
		return false
	}
	wakes := map[string]bool{}
	for _, w := range p.cfg.Speech.WakeWords {
		wakes[strings.ToLower(w)] = true
	}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if !wakes[strings.Trim(tok, ",.!?")] {
			return false
		}
	}
	return true
}
