package intent

import "testing"

func TestKindPredicatesAreDisjoint(t *testing.T) {
	kinds := []Kind{
		KindAct, KindActOneMatch, KindSearch, KindActPrevious,
		KindLowASRConfidence, KindProfanity, KindOutOfDomain, KindEmptyUtterance, KindOnlyWakeWord,
		KindNoMatch, KindTooManyMatches, KindConfirmBeforeAct, KindConfirmBeforePlan, KindConfirmGeneric,
		KindClarifyAnswer, KindConfirmYes, KindConfirmNo,
		KindAlreadyHolding, KindReceptacleClosed, KindReceptacleFull, KindOutOfRange,
		KindUnsupportedNavigate, KindObjectUnpowered, KindNoFreeHand, KindGenericFailure,
		KindFoundObject, KindSearchFailure,
	}
	for _, k := range kinds {
		n := 0
		for _, p := range []bool{k.Invalid(), k.TriggersQuestion(), k.ConfirmationResponse(), k.EnvironmentError(), k.Actionable(), k.SearchFeedback()} {
			if p {
				n++
			}
		}
		if n != 1 {
			t.Errorf("kind %q matched %d predicate groups, expected exactly 1", k, n)
		}
	}
}

func TestInvalidKinds(t *testing.T) {
	if !KindProfanity.Invalid() {
		t.Errorf("profanity should be invalid")
	}
	if KindAct.Invalid() {
		t.Errorf("act should not be invalid")
	}
}

func TestAsksDisambiguationKinds(t *testing.T) {
	for _, k := range []Kind{KindNoMatch, KindTooManyMatches} {
		if !k.AsksDisambiguation() {
			t.Errorf("%q should ask for disambiguation", k)
		}
	}
	if KindConfirmBeforeAct.AsksDisambiguation() {
		t.Errorf("confirmation questions expect yes/no, not a choice")
	}
}

func TestConfirmationResponseKinds(t *testing.T) {
	for _, k := range []Kind{KindConfirmYes, KindConfirmNo, KindClarifyAnswer} {
		if !k.ConfirmationResponse() {
			t.Errorf("%q should be a confirmation response", k)
		}
	}
}
