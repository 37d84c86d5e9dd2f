package pipeline

import (
	"context"
	"log"

	"arena-agent/internal/action"
	"arena-agent/internal/config"
	"arena-agent/internal/planner"
	"arena-agent/internal/rules"
	"arena-agent/internal/services"
	"arena-agent/internal/session"
	"arena-agent/internal/worldmap"
)

// Collaborator interfaces consumed by the pipeline. The services package
// satisfies them; tests substitute fakes.
type TextChecker interface {
	Check(ctx context.Context, text string) (bool, error)
}

type Interpreter interface {
	Interpret(ctx context.Context, utterance string, history []services.DialogueEvent) (*services.InterpretResult, error)
	AnswerObjectQuestion(ctx context.Context, question string) (*services.QAResult, error)
}

type Generator interface {
	Generate(ctx context.Context, utterance string, history []services.DialogueEvent, features []byte) (string, error)
}

type Grounder interface {
	Ground(ctx context.Context, object string, frame *services.Frame) (*services.GroundingResult, error)
}

type ConfirmationClassifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

type Splitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// Pipeline resolves one turn: utterance verification, user and environment
// intent extraction, agent intent selection, error recovery, and the feedback
// response. Stages run strictly in order; each may short-circuit the rest.
type Pipeline struct {
	cfg       *config.Config
	profanity TextChecker
	ood       TextChecker
	nlu       Interpreter
	generator Generator
	grounder  Grounder
	confirm   ConfirmationClassifier
	splitter  Splitter
	planner   *planner.Planner
	rules     *rules.Engine
}

func New(cfg *config.Config, reg *services.Registry, pl *planner.Planner, eng *rules.Engine) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		profanity: reg.Profanity,
		ood:       reg.OutOfDomain,
		nlu:       reg.NLU,
		generator: reg.ActionGenerator,
		grounder:  reg.VisualGrounding,
		confirm:   reg.ConfirmationClassifier,
		splitter:  reg.InstructionSplitter,
		planner:   pl,
		rules:     eng,
	}
}

// Env is everything one turn's resolution reads and writes: the turn under
// construction, the session's cross-turn state, decoded history, and the
// sensor-derived context the orchestrator prepared.
type Env struct {
	Turn    *session.Turn
	State   *session.State
	History []session.Turn

	// Speech, when the request carried a recognition sensor.
	HasSpeech     bool
	ASRConfidence float64

	// Room geometry from the game-metadata sensor.
	Rooms      []string
	Viewpoints []worldmap.Viewpoint
	CurrentPos *worldmap.Viewpoint

	// This turn's extracted visual features, when available.
	Frame       *services.Frame
	FeaturesRaw []byte

	nextActionID int
}

func (e *Env) nextID() int {
	e.nextActionID++
	return e.nextActionID
}

func (e *Env) setInteraction(a action.Action) {
	e.Turn.ActionBundle.Interaction = &a
}

// Run executes the stage machine for one turn. The turn's bundles and the
// session state are mutated in place; persistence is the orchestrator's job.
func (p *Pipeline) Run(ctx context.Context, env *Env) error {
	// Stage 1: utterance verification short-circuits everything else.
	if inv, err := p.verify(ctx, env); err != nil {
		return err
	} else if inv != nil {
		env.Turn.IntentBundle.User = inv
		env.Turn.IntentBundle.AgentVerbal = inv
		log.Printf("[Pipeline] utterance rejected: %s", inv.Kind)
		return p.feedback(env)
	}

	// Stage 2: user intent from this turn's speech.
	if err := p.userIntent(ctx, env); err != nil {
		return err
	}

	// Stage 3: environment intent from the previous turn's execution status.
	p.envIntent(env)

	// Recovery runs as soon as an environment intent is known; it may queue
	// repair instructions and force the user intent to act.
	p.recover(env)

	// Stage 4: agent intent selection.
	if err := p.agentIntent(ctx, env); err != nil {
		return err
	}

	// Feedback: the dialog action, selected by the rule engine.
	return p.feedback(env)
}

// historyEvents flattens decoded turns into the dialogue history the language
// services consume.
func historyEvents(turns []session.Turn, window int) []services.DialogueEvent {
	if window > 0 && len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	var out []services.DialogueEvent
	for _, t := range turns {
		if u := t.Utterance(); u != nil {
			out = append(out, services.DialogueEvent{Role: u.Role, Utterance: u.Text()})
		}
		if t.ActionBundle.Interaction != nil {
			out = append(out, services.DialogueEvent{Role: session.RoleAgent, Action: string(t.ActionBundle.Interaction.Type)})
		}
	}
	return out
}

// lastInteraction returns the previous turn's interaction action, if any.
func lastInteraction(history []session.Turn) *action.Action {
	if len(history) == 0 {
		return nil
	}
	return history[len(history)-1].ActionBundle.Interaction
}
