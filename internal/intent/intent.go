package intent

// Kind is the closed vocabulary of intents the pipeline can resolve. The
// predicate methods below are the single place that knows which group a kind
// belongs to; stages consult them instead of comparing strings.
type Kind string

const (
	// Actionable
	KindAct         Kind = "act"
	KindActOneMatch Kind = "act_one_match"
	KindSearch      Kind = "search"
	KindActPrevious Kind = "act_previous"

	// Invalid utterance
	KindLowASRConfidence Kind = "low_asr_confidence"
	KindProfanity        Kind = "profanity"
	KindOutOfDomain      Kind = "out_of_domain"
	KindEmptyUtterance   Kind = "empty_utterance"
	KindOnlyWakeWord     Kind = "only_wake_word"

	// Question triggers
	KindNoMatch           Kind = "no_match"
	KindTooManyMatches    Kind = "too_many_matches"
	KindConfirmBeforeAct  Kind = "confirm_before_act"
	KindConfirmBeforePlan Kind = "confirm_before_plan"
	KindConfirmGeneric    Kind = "confirm_generic"

	// Question responses
	KindClarifyAnswer Kind = "clarify_answer"
	KindConfirmYes    Kind = "confirm_yes"
	KindConfirmNo     Kind = "confirm_no"

	// Environment errors, mapped from the previous turn's action status
	KindAlreadyHolding      Kind = "already_holding"
	KindReceptacleClosed    Kind = "receptacle_closed"
	KindReceptacleFull      Kind = "receptacle_full"
	KindOutOfRange          Kind = "out_of_range"
	KindUnsupportedNavigate Kind = "unsupported_navigate"
	KindObjectUnpowered     Kind = "object_unpowered"
	KindNoFreeHand          Kind = "no_free_hand"
	KindGenericFailure      Kind = "generic_failure"

	// Search feedback
	KindFoundObject     Kind = "found_object"
	KindSearchFailure   Kind = "search_failure"
	KindObjectKnowledge Kind = "object_knowledge"
)

// Intent tags a kind with the entity and action type it refers to, when known.
type Intent struct {
	Kind   Kind   `json:"kind"`
	Entity string `json:"entity,omitempty"`
	Action string `json:"action,omitempty"`
}

func New(k Kind) Intent {
	return Intent{Kind: k}
}

func NewWithEntity(k Kind, entity string) Intent {
	return Intent{Kind: k, Entity: entity}
}

// Invalid reports whether the kind marks an unusable utterance (stage 1).
func (k Kind) Invalid() bool {
	switch k {
	case KindLowASRConfidence, KindProfanity, KindOutOfDomain, KindEmptyUtterance, KindOnlyWakeWord:
		return true
	}
	return false
}

// TriggersQuestion reports whether the kind makes the agent ask instead of act.
func (k Kind) TriggersQuestion() bool {
	switch k {
	case KindNoMatch, KindTooManyMatches, KindConfirmBeforeAct, KindConfirmBeforePlan, KindConfirmGeneric:
		return true
	}
	return false
}

// AsksDisambiguation reports whether a pending question of this kind expects
// an object choice rather than a yes/no answer.
func (k Kind) AsksDisambiguation() bool {
	switch k {
	case KindNoMatch, KindTooManyMatches:
		return true
	}
	return false
}

// ConfirmationResponse reports whether the kind answers a pending question.
func (k Kind) ConfirmationResponse() bool {
	switch k {
	case KindConfirmYes, KindConfirmNo, KindClarifyAnswer:
		return true
	}
	return false
}

// EnvironmentError reports whether the kind was mapped from an action status.
func (k Kind) EnvironmentError() bool {
	switch k {
	case KindAlreadyHolding, KindReceptacleClosed, KindReceptacleFull, KindOutOfRange,
		KindUnsupportedNavigate, KindObjectUnpowered, KindNoFreeHand, KindGenericFailure:
		return true
	}
	return false
}

// Actionable reports whether the kind drives a physical action this turn.
func (k Kind) Actionable() bool {
	switch k {
	case KindAct, KindActOneMatch, KindSearch, KindActPrevious:
		return true
	}
	return false
}

// SearchFeedback reports whether the kind narrates search progress.
func (k Kind) SearchFeedback() bool {
	switch k {
	case KindFoundObject, KindSearchFailure:
		return true
	}
	return false
}
