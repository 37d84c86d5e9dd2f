package pipeline

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"arena-agent/internal/action"
	"arena-agent/internal/config"
	"arena-agent/internal/intent"
	"arena-agent/internal/planner"
	"arena-agent/internal/rules"
	"arena-agent/internal/services"
	"arena-agent/internal/session"
	"arena-agent/internal/worldmap"
)

type fakeChecker struct{ words []string }

func (f fakeChecker) Check(ctx context.Context, text string) (bool, error) {
	for _, w := range f.words {
		if strings.Contains(strings.ToLower(text), w) {
			return true, nil
		}
	}
	return false, nil
}

type fakeNLU struct {
	results map[string]*services.InterpretResult
	qa      *services.QAResult
}

func (f *fakeNLU) Interpret(ctx context.Context, utterance string, history []services.DialogueEvent) (*services.InterpretResult, error) {
	if r, ok := f.results[utterance]; ok {
		return r, nil
	}
	return &services.InterpretResult{Kind: "act"}, nil
}

func (f *fakeNLU) AnswerObjectQuestion(ctx context.Context, question string) (*services.QAResult, error) {
	if f.qa != nil {
		return f.qa, nil
	}
	return &services.QAResult{}, nil
}

type fakeGenerator struct{ raw string }

func (f fakeGenerator) Generate(ctx context.Context, utterance string, history []services.DialogueEvent, features []byte) (string, error) {
	return f.raw, nil
}

type fakeGrounder struct{ result services.GroundingResult }

func (f fakeGrounder) Ground(ctx context.Context, object string, frame *services.Frame) (*services.GroundingResult, error) {
	r := f.result
	return &r, nil
}

type fakeConfirm struct{}

func (fakeConfirm) Classify(ctx context.Context, text string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "yeah", "sure":
		return services.VerdictYes, nil
	case "no", "nope":
		return services.VerdictNo, nil
	}
	return services.VerdictOther, nil
}

type fakeSplitter struct{}

func (fakeSplitter) Split(ctx context.Context, text string) ([]string, error) {
	parts := strings.Split(text, " then ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Speech.MinASRConfidence = 0.5
	cfg.History.Window = 4
	cfg.Rules.RecentWindow = 8
	cfg.Planner.Strategy = "coverage"
	cfg.Planner.DefaultBudget = 4
	cfg.Planner.DefaultCoverageRadius = 3.0
	cfg.Speech.WakeWords = []string{"robot"}
	return cfg
}

func testRules(t *testing.T) *rules.Engine {
	t.Helper()
	set := &rules.RuleSet{
		Rules: []rules.Rule{
			{ID: 1, Template: "Sorry, I did not get that."},
			{ID: 2, Conditions: []rules.Condition{
				{Field: "agent_verbal", Op: "eq", Value: "profanity"},
			}, Template: "Please keep it polite.", Lightweight: true},
			{ID: 3, Conditions: []rules.Condition{
				{Field: "agent_verbal", Op: "eq", Value: "found_object"},
			}, Template: "Found the {entity}.", Lightweight: true},
			{ID: 4, Conditions: []rules.Condition{
				{Field: "agent_verbal", Op: "eq", Value: "search_failure"},
			}, Template: "I could not find the {entity}.", Lightweight: true},
		},
		Synonyms: map[string]string{},
	}
	eng, err := rules.NewEngine(set, 1, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng
}

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	cfg := testConfig()
	return &Pipeline{
		cfg:       cfg,
		profanity: fakeChecker{words: []string{"damn"}},
		ood:       fakeChecker{},
		nlu:       &fakeNLU{results: map[string]*services.InterpretResult{}},
		generator: fakeGenerator{raw: "rotate left"},
		grounder:  fakeGrounder{},
		confirm:   fakeConfirm{},
		splitter:  fakeSplitter{},
		planner:   planner.New(cfg.Planner),
		rules:     testRules(t),
	}
}

func speechEnv(text string) *Env {
	turn := &session.Turn{
		SessionID: "s1", Idx: 0, Room: "kitchen",
		UtteranceOrig: text, SpeakerRole: session.RoleUser, UtteranceSource: session.SourceUser,
	}
	if text != "" {
		turn.UtteranceMod = text
	}
	return &Env{
		Turn:          turn,
		State:         session.NewState(),
		HasSpeech:     text != "",
		ASRConfidence: 0.9,
		Rooms:         []string{"kitchen", "bedroom"},
		Viewpoints: []worldmap.Viewpoint{
			{Name: "vp1", X: 0, Z: 0},
			{Name: "vp2", X: 10, Z: 0},
		},
		CurrentPos: &worldmap.Viewpoint{Name: "vp1", X: 0, Z: 0},
	}
}

func TestRun_TurnLeftBecomesRotate(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("turn left")

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	ib := env.Turn.IntentBundle
	if ib.User == nil || ib.User.Kind != intent.KindAct {
		t.Fatalf("user intent = %+v, want act", ib.User)
	}
	if ib.AgentPhysical == nil || ib.AgentPhysical.Kind != intent.KindActOneMatch {
		t.Fatalf("agent intent = %+v, want act_one_match", ib.AgentPhysical)
	}
	if ib.AgentPhysical.Action != string(action.TypeRotate) {
		t.Fatalf("agent intent action = %q, want Rotate", ib.AgentPhysical.Action)
	}
	a := env.Turn.ActionBundle.Interaction
	if a == nil || a.Type != action.TypeRotate {
		t.Fatalf("interaction = %+v, want Rotate", a)
	}
	m := a.Payload.(action.MotionPayload)
	if m.Direction != action.DirLeft || m.Magnitude != action.DefaultRotateMagnitude {
		t.Fatalf("payload = %+v, want Left %d", m, action.DefaultRotateMagnitude)
	}
	if env.Turn.ActionBundle.Dialog != nil {
		t.Fatalf("unexpected dialog action %+v", env.Turn.ActionBundle.Dialog)
	}
}

func TestRun_ProfanityShortCircuits(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("damn robot")

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	ib := env.Turn.IntentBundle
	if ib.User == nil || ib.User.Kind != intent.KindProfanity {
		t.Fatalf("user intent = %+v, want profanity", ib.User)
	}
	if env.Turn.ActionBundle.Interaction != nil {
		t.Fatalf("interaction should be nil, got %+v", env.Turn.ActionBundle.Interaction)
	}
	d := env.Turn.ActionBundle.Dialog
	if d == nil {
		t.Fatal("expected a dialog action")
	}
	if d.Payload.(action.DialogPayload).Value != "Please keep it polite." {
		t.Fatalf("dialog = %+v, want the canned profanity response", d.Payload)
	}
}

func TestRun_ReceptacleClosedQueuesRepair(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("")

	prev := action.MustNew(1, action.TypeOpen, action.ObjectPayload{Name: "fridge"})
	prev.Status = &action.Status{Success: false, ErrorKind: "ReceptacleIsClosed", Entity: "fridge"}
	env.History = []session.Turn{{
		SessionID: "s1", Idx: 0, Room: "kitchen",
		UtteranceOrig: "put the mug in the fridge", SpeakerRole: session.RoleUser, UtteranceSource: session.SourceUser,
		ActionBundle: session.ActionBundle{Interaction: &prev},
	}}
	env.Turn.Idx = 1

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	ib := env.Turn.IntentBundle
	if ib.Environment == nil || ib.Environment.Kind != intent.KindReceptacleClosed {
		t.Fatalf("environment intent = %+v, want receptacle_closed", ib.Environment)
	}
	if ib.Environment.Entity != "fridge" {
		t.Fatalf("entity = %q, want fridge", ib.Environment.Entity)
	}
	if ib.User == nil || ib.User.Kind != intent.KindAct {
		t.Fatalf("user intent = %+v, want forced act", ib.User)
	}
	// The repair "open the fridge" was consumed this turn; the retried
	// instruction must still be queued behind it.
	if u := env.Turn.Utterance(); u == nil || u.Text() != "open the fridge" {
		t.Fatalf("acted utterance = %+v, want the repair", u)
	}
	retry, ok := env.State.UtteranceQueue.PopHead()
	if !ok || retry.Original != "put the mug in the fridge" {
		t.Fatalf("queued retry = %+v", retry)
	}
	if retry.Source != session.SourceQueue {
		t.Fatalf("retry source = %q, want queue", retry.Source)
	}
}

func TestRun_UnknownObjectTriggersCoveragePlan(t *testing.T) {
	p := testPipeline(t)
	p.nlu.(*fakeNLU).results["find the mug"] = &services.InterpretResult{Kind: "search", Entity: "mug"}
	env := speechEnv("find the mug")

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	ib := env.Turn.IntentBundle
	if ib.AgentPhysical == nil || ib.AgentPhysical.Kind != intent.KindSearch {
		t.Fatalf("agent intent = %+v, want search", ib.AgentPhysical)
	}
	if env.State.SearchTarget != "mug" {
		t.Fatalf("search target = %q, want mug", env.State.SearchTarget)
	}
	// Two far-apart viewpoints, budget 4: both selected. First action of the
	// sweep comes from the current position, so it is a rotation, and the
	// rest stays queued.
	a := env.Turn.ActionBundle.Interaction
	if a == nil || a.Type != action.TypeRotate {
		t.Fatalf("first sweep action = %+v, want Rotate", a)
	}
	if env.State.FindQueue.Empty() {
		t.Fatal("find queue should hold the remaining sweep")
	}
}

func TestRun_ConfirmYesReExecutesDeferred(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("yes")
	deferred := action.MustNew(9, action.TypePickup, action.ObjectPayload{Name: "knife"})
	env.State.Pending = &session.PendingQuestion{
		Kind:         intent.KindConfirmBeforeAct,
		Entity:       "knife",
		DeferredPlan: []action.Action{deferred},
	}

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	ib := env.Turn.IntentBundle
	if ib.User == nil || ib.User.Kind != intent.KindConfirmYes {
		t.Fatalf("user intent = %+v, want confirm_yes", ib.User)
	}
	if ib.AgentPhysical == nil || ib.AgentPhysical.Kind != intent.KindActPrevious {
		t.Fatalf("agent intent = %+v, want act_previous", ib.AgentPhysical)
	}
	a := env.Turn.ActionBundle.Interaction
	if a == nil || a.Type != action.TypePickup {
		t.Fatalf("interaction = %+v, want the deferred Pickup", a)
	}
	if env.State.Pending != nil {
		t.Fatal("pending question should be cleared")
	}
}

func TestRun_ConfirmNoAbandonsSearch(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("no")
	env.State.SearchTarget = "mug"
	env.State.FindQueue.PushTail(action.Rotate(1, action.DirRight, 90))
	env.State.Pending = &session.PendingQuestion{Kind: intent.KindConfirmGeneric, Entity: "mug"}

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if env.Turn.IntentBundle.User.Kind != intent.KindConfirmNo {
		t.Fatalf("user intent = %+v, want confirm_no", env.Turn.IntentBundle.User)
	}
	if !env.State.FindQueue.Empty() || env.State.SearchTarget != "" {
		t.Fatal("search should be abandoned on a declined confirmation")
	}
}

func TestRun_KnownObjectForcesRememberedViewpoint(t *testing.T) {
	p := testPipeline(t)
	p.nlu.(*fakeNLU).results["find the mug"] = &services.InterpretResult{Kind: "search", Entity: "mug"}
	env := speechEnv("find the mug")
	env.State.Memory.Write("kitchen", "vp2", "mug", 400)

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	a := env.Turn.ActionBundle.Interaction
	if a == nil || a.Type != action.TypeGotoViewpoint {
		t.Fatalf("first action = %+v, want GotoViewpoint to the remembered spot", a)
	}
	if a.Payload.(action.GotoPayload).Viewpoint != "vp2" {
		t.Fatalf("goto = %+v, want vp2", a.Payload)
	}
}

func TestRun_GroundingHitCutsSweep(t *testing.T) {
	p := testPipeline(t)
	p.grounder = fakeGrounder{result: services.GroundingResult{Found: true, Label: "mug", ColorImageIndex: 1, Mask: []int{4, 5}}}
	env := speechEnv("")
	env.State.SearchTarget = "mug"
	env.State.FindQueue.ExtendTail(
		action.Rotate(1, action.DirRight, 90),
		action.Rotate(2, action.DirRight, 90),
	)
	env.Frame = &services.Frame{}

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	a := env.Turn.ActionBundle.Interaction
	if a == nil || a.Type != action.TypeGotoObject {
		t.Fatalf("interaction = %+v, want GotoObject", a)
	}
	if env.Turn.IntentBundle.AgentVerbal == nil || env.Turn.IntentBundle.AgentVerbal.Kind != intent.KindFoundObject {
		t.Fatalf("verbal intent = %+v, want found_object", env.Turn.IntentBundle.AgentVerbal)
	}
	// The sweep is gone; only the highlight remains.
	next, ok := env.State.FindQueue.PopHead()
	if !ok || next.Type != action.TypeHighlight {
		t.Fatalf("queued next = %+v, want Highlight", next)
	}
	if d := env.Turn.ActionBundle.Dialog; d == nil || !strings.Contains(d.Payload.(action.DialogPayload).Value, "mug") {
		t.Fatalf("dialog = %+v, want found announcement naming the mug", env.Turn.ActionBundle.Dialog)
	}
}

func TestRun_ExhaustedSweepReportsFailure(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("")
	env.State.SearchTarget = "mug"
	last := action.MustNew(1, action.TypeRotate, action.MotionPayload{Direction: action.DirRight, Magnitude: 90, Final: true})
	env.State.FindQueue.PushTail(last)

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if env.Turn.IntentBundle.AgentVerbal == nil || env.Turn.IntentBundle.AgentVerbal.Kind != intent.KindSearchFailure {
		t.Fatalf("verbal intent = %+v, want search_failure", env.Turn.IntentBundle.AgentVerbal)
	}
	if env.State.SearchTarget != "" || !env.State.FindQueue.Empty() {
		t.Fatal("search state should be cleared after a failed sweep")
	}
	a := env.Turn.ActionBundle.Interaction
	if a == nil || !a.Payload.(action.MotionPayload).Final {
		t.Fatalf("interaction = %+v, want the final sweep rotation", a)
	}
}

func TestRun_SearchForHeldObjectIsRefused(t *testing.T) {
	p := testPipeline(t)
	p.nlu.(*fakeNLU).results["find the mug"] = &services.InterpretResult{Kind: "search", Entity: "mug"}
	env := speechEnv("find the mug")
	env.State.Inventory = &session.InventorySlot{Entity: "mug", TurnIdx: 0}

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if env.Turn.IntentBundle.AgentVerbal == nil || env.Turn.IntentBundle.AgentVerbal.Kind != intent.KindAlreadyHolding {
		t.Fatalf("verbal intent = %+v, want already_holding", env.Turn.IntentBundle.AgentVerbal)
	}
	if !env.State.FindQueue.Empty() {
		t.Fatal("no sweep should be planned for a held object")
	}
}

func TestRun_CompoundInstructionQueuesRemainder(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("turn left then pick up the mug")

	// The literal matcher refuses the compound, so the splitter divides it:
	// the first part acts this turn, the second part queues.
	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	rest, ok := env.State.UtteranceQueue.PopHead()
	if !ok || rest.Original != "pick up the mug" {
		t.Fatalf("queued remainder = %+v", rest)
	}
	if rest.Source != session.SourceQueue {
		t.Fatalf("remainder source = %q, want queue", rest.Source)
	}
}

func TestRun_WakeWordOnlyRejected(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("robot")

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if env.Turn.IntentBundle.User == nil || env.Turn.IntentBundle.User.Kind != intent.KindOnlyWakeWord {
		t.Fatalf("user intent = %+v, want only_wake_word", env.Turn.IntentBundle.User)
	}
}

func TestRun_LowConfidenceRejected(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("turn left")
	env.ASRConfidence = 0.2

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if env.Turn.IntentBundle.User.Kind != intent.KindLowASRConfidence {
		t.Fatalf("user intent = %+v, want low_asr_confidence", env.Turn.IntentBundle.User)
	}
	if env.Turn.ActionBundle.Interaction != nil {
		t.Fatal("no interaction on a rejected utterance")
	}
}

func TestRun_RepeatedRepairDowngrades(t *testing.T) {
	p := testPipeline(t)
	env := speechEnv("")

	failed := action.MustNew(1, action.TypeOpen, action.ObjectPayload{Name: "fridge"})
	failed.Status = &action.Status{Success: false, ErrorKind: "ReceptacleIsClosed", Entity: "fridge"}
	envIntent := intent.NewWithEntity(intent.KindReceptacleClosed, "fridge")
	env.History = []session.Turn{
		{
			SessionID: "s1", Idx: 0,
			UtteranceOrig: "put the mug in the fridge", SpeakerRole: session.RoleUser, UtteranceSource: session.SourceUser,
		},
		{
			SessionID: "s1", Idx: 1,
			UtteranceOrig: "open the fridge", SpeakerRole: session.RoleAgent, UtteranceSource: session.SourceQueue,
			IntentBundle: session.IntentBundle{Environment: &envIntent},
			ActionBundle: session.ActionBundle{Interaction: &failed},
		},
	}
	env.Turn.Idx = 2

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if env.Turn.IntentBundle.Environment.Kind != intent.KindGenericFailure {
		t.Fatalf("environment intent = %+v, want downgraded generic_failure", env.Turn.IntentBundle.Environment)
	}
	if !env.State.UtteranceQueue.Empty() {
		t.Fatal("no second repair may be queued")
	}
}

func TestRun_ObjectQuestionAnswersDirectly(t *testing.T) {
	p := testPipeline(t)
	p.nlu.(*fakeNLU).qa = &services.QAResult{Entity: "fridge", Answer: "The fridge is in the kitchen."}
	env := speechEnv("where is the fridge")

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if env.Turn.IntentBundle.AgentVerbal == nil || env.Turn.IntentBundle.AgentVerbal.Kind != intent.KindObjectKnowledge {
		t.Fatalf("verbal intent = %+v, want object_knowledge", env.Turn.IntentBundle.AgentVerbal)
	}
	d := env.Turn.ActionBundle.Dialog
	if d == nil || d.Payload.(action.DialogPayload).Value != "The fridge is in the kitchen." {
		t.Fatalf("dialog = %+v, want the QA answer", d)
	}
	if env.Turn.ActionBundle.Interaction != nil {
		t.Fatal("questions produce no physical action")
	}
}

func TestRun_PlanConfirmationDefersUntilYes(t *testing.T) {
	p := testPipeline(t)
	p.nlu.(*fakeNLU).results["tidy the counter"] = &services.InterpretResult{Kind: "confirm_before_plan", Entity: "counter"}
	env := speechEnv("tidy the counter")

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	pending := env.State.Pending
	if pending == nil || pending.Kind != intent.KindConfirmBeforePlan {
		t.Fatalf("pending = %+v, want confirm_before_plan", pending)
	}
	if pending.Deferred == nil || pending.Deferred.Original != "tidy the counter" {
		t.Fatalf("deferred = %+v, want the original instruction", pending.Deferred)
	}
	if env.Turn.IntentBundle.AgentVerbal == nil || env.Turn.IntentBundle.AgentVerbal.Kind != intent.KindConfirmBeforePlan {
		t.Fatalf("verbal intent = %+v, want confirm_before_plan", env.Turn.IntentBundle.AgentVerbal)
	}
	if env.Turn.ActionBundle.Interaction != nil {
		t.Fatal("nothing may execute before the plan is confirmed")
	}

	// The user agrees; a fresh interpretation of the deferred text acts.
	p.nlu.(*fakeNLU).results["tidy the counter"] = &services.InterpretResult{Kind: "act", Entity: "counter"}
	next := speechEnv("yes")
	next.State = env.State
	if err := p.Run(context.Background(), next); err != nil {
		t.Fatalf("confirm run: %v", err)
	}
	if next.State.Pending != nil {
		t.Fatal("pending question should be cleared")
	}
	ib := next.Turn.IntentBundle
	if ib.AgentPhysical == nil || ib.AgentPhysical.Kind != intent.KindActOneMatch {
		t.Fatalf("agent intent = %+v, want act_one_match", ib.AgentPhysical)
	}
	if a := next.Turn.ActionBundle.Interaction; a == nil || a.Type != action.TypeRotate {
		t.Fatalf("interaction = %+v, want the generated Rotate", a)
	}
}

func TestRun_SearchConfirmationStartsSweepOnYes(t *testing.T) {
	p := testPipeline(t)
	p.nlu.(*fakeNLU).results["go look for the mug"] = &services.InterpretResult{Kind: "confirm_generic", Entity: "mug"}
	env := speechEnv("go look for the mug")

	if err := p.Run(context.Background(), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	pending := env.State.Pending
	if pending == nil || pending.Kind != intent.KindConfirmGeneric || pending.Entity != "mug" {
		t.Fatalf("pending = %+v, want generic mug confirmation", pending)
	}
	if env.State.SearchTarget != "" || !env.State.FindQueue.Empty() {
		t.Fatal("no sweep may be planned before the confirmation")
	}

	next := speechEnv("yes")
	next.State = env.State
	if err := p.Run(context.Background(), next); err != nil {
		t.Fatalf("confirm run: %v", err)
	}
	ib := next.Turn.IntentBundle
	if ib.AgentPhysical == nil || ib.AgentPhysical.Kind != intent.KindSearch {
		t.Fatalf("agent intent = %+v, want search", ib.AgentPhysical)
	}
	if next.State.SearchTarget != "mug" {
		t.Fatalf("search target = %q, want mug", next.State.SearchTarget)
	}
	if a := next.Turn.ActionBundle.Interaction; a == nil || a.Type != action.TypeRotate {
		t.Fatalf("first sweep action = %+v, want Rotate", a)
	}
	if next.State.FindQueue.Empty() {
		t.Fatal("find queue should hold the remaining sweep")
	}
}
