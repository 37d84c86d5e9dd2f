package pipeline

import (
	"log"

	"arena-agent/internal/intent"
)

// errorKinds maps the arena's reported error kinds to environment intents.
// Unknown kinds fall through to a generic failure so new arena errors degrade
// gracefully instead of being dropped.
var errorKinds = map[string]intent.Kind{
	"AlreadyHolding":       intent.KindAlreadyHolding,
	"ReceptacleIsClosed":   intent.KindReceptacleClosed,
	"ReceptacleIsFull":     intent.KindReceptacleFull,
	"TargetOutOfRange":     intent.KindOutOfRange,
	"UnsupportedNavigate":  intent.KindUnsupportedNavigate,
	"ObjectUnpowered":      intent.KindObjectUnpowered,
	"NoFreeHand":           intent.KindNoFreeHand,
	"InvalidCommand":       intent.KindGenericFailure,
	"UnsupportedOperation": intent.KindGenericFailure,
}

// envIntent is stage 3: the previous turn's action execution status arrives
// one request late; a failure becomes this turn's environment intent with the
// offending entity and action attached.
func (p *Pipeline) envIntent(env *Env) {
	prev := lastInteraction(env.History)
	if prev == nil || prev.Status == nil || prev.Status.Success {
		return
	}
	kind, ok := errorKinds[prev.Status.ErrorKind]
	if !ok {
		log.Printf("[Pipeline] unknown error kind %q, treating as generic failure", prev.Status.ErrorKind)
		kind = intent.KindGenericFailure
	}
	entity := prev.Status.Entity
	if entity == "" {
		entity = prev.Entity()
	}
	ev := intent.Intent{Kind: kind, Entity: entity, Action: string(prev.Type)}
	env.Turn.IntentBundle.Environment = &ev
	log.Printf("[Pipeline] environment intent %s for %q", kind, entity)
}
