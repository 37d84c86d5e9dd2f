package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"arena-agent/internal/action"
	"arena-agent/internal/config"
)

// DialogueEvent is one history entry handed to the language services.
type DialogueEvent struct {
	Role      string `json:"role"`
	Utterance string `json:"utterance,omitempty"`
	Action    string `json:"action,omitempty"`
}

// InterpretResult is the NLU classifier's structured verdict. Kind follows
// the service contract: act, search, no_match, too_many_matches,
// confirm_before_act, question.
type InterpretResult struct {
	Kind       string `json:"kind"`
	Entity     string `json:"entity,omitempty"`
	ActionType string `json:"action_type,omitempty"`
	MatchCount int    `json:"match_count,omitempty"`
}

// NLU calls the intent classifier service.
type NLU struct {
	httpService
}

func NewNLU(cfg config.ServiceConfig) *NLU {
	return &NLU{newHTTPService("nlu", cfg)}
}

func (n *NLU) Interpret(ctx context.Context, utterance string, history []DialogueEvent) (*InterpretResult, error) {
	var out InterpretResult
	payload := map[string]any{"utterance": utterance, "history": history}
	if err := n.post(ctx, "/v1/interpret", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QAResult is the world-knowledge classifier's answer for object questions.
type QAResult struct {
	Entity string `json:"entity"`
	Answer string `json:"answer"`
}

// AnswerObjectQuestion routes world-knowledge questions about objects.
func (n *NLU) AnswerObjectQuestion(ctx context.Context, question string) (*QAResult, error) {
	var out QAResult
	if err := n.post(ctx, "/v1/object-qa", map[string]any{"question": question}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActionGenerator calls the action-sequence decoder service. The service
// returns a raw decodable action string; decoding stays on our side of the
// boundary so unparseable output is caught here, not deep in the pipeline.
type ActionGenerator struct {
	httpService
}

func NewActionGenerator(cfg config.ServiceConfig) *ActionGenerator {
	return &ActionGenerator{newHTTPService("action-generator", cfg)}
}

// Generate produces the raw action string for an utterance given dialogue
// history and the current frame's features.
func (g *ActionGenerator) Generate(ctx context.Context, utterance string, history []DialogueEvent, features []byte) (string, error) {
	var out struct {
		Action string `json:"action"`
	}
	payload := map[string]any{
		"utterance": utterance,
		"history":   history,
		"features":  string(features),
	}
	if err := g.post(ctx, "/v1/generate", payload, &out); err != nil {
		return "", err
	}
	return out.Action, nil
}

// DecodeAction parses the generator's raw string into a typed action, e.g.
// "rotate right 90", "goto viewpoint vp3", "pickup mug 1". A decode failure
// is an expected outcome and callers convert it to a clarification, never an
// internal error.
func DecodeAction(id int, raw string) (action.Action, error) {
	fields := strings.Fields(strings.TrimSpace(strings.ToLower(raw)))
	if len(fields) == 0 {
		return action.Action{}, fmt.Errorf("empty action string")
	}
	verb, args := fields[0], fields[1:]

	switch verb {
	case "rotate", "look", "move":
		if len(args) == 0 {
			return action.Action{}, fmt.Errorf("%s needs a direction", verb)
		}
		dir, ok := map[string]string{
			"left": action.DirLeft, "right": action.DirRight, "around": action.DirAround,
			"forward": action.DirForward, "backward": action.DirBackward,
			"up": action.DirUp, "down": action.DirDown,
		}[args[0]]
		if !ok {
			return action.Action{}, fmt.Errorf("unknown direction %q", args[0])
		}
		mag := float64(action.DefaultRotateMagnitude)
		if verb == "move" {
			mag = 1
		}
		if len(args) > 1 {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return action.Action{}, fmt.Errorf("bad magnitude %q", args[1])
			}
			mag = v
		}
		typ := map[string]action.Type{"rotate": action.TypeRotate, "look": action.TypeLook, "move": action.TypeMove}[verb]
		return action.New(id, typ, action.MotionPayload{Direction: dir, Magnitude: mag})

	case "goto":
		if len(args) < 2 {
			return action.Action{}, fmt.Errorf("goto needs a destination kind and name")
		}
		name := strings.Join(args[1:], " ")
		switch args[0] {
		case "viewpoint":
			return action.New(id, action.TypeGotoViewpoint, action.GotoPayload{Viewpoint: name})
		case "room":
			return action.New(id, action.TypeGotoRoom, action.GotoPayload{Room: name})
		case "object":
			return action.New(id, action.TypeGotoObject, action.GotoPayload{Object: name})
		}
		return action.Action{}, fmt.Errorf("unknown goto destination %q", args[0])

	case "pickup", "place", "open", "close", "toggle", "highlight":
		if len(args) == 0 {
			return action.Action{}, fmt.Errorf("%s needs an object", verb)
		}
		idx := 0
		name := args
		if len(args) > 1 {
			if v, err := strconv.Atoi(args[len(args)-1]); err == nil {
				idx = v
				name = args[:len(args)-1]
			}
		}
		typ := map[string]action.Type{
			"pickup": action.TypePickup, "place": action.TypePlace,
			"open": action.TypeOpen, "close": action.TypeClose,
			"toggle": action.TypeToggle, "highlight": action.TypeHighlight,
		}[verb]
		return action.New(id, typ, action.ObjectPayload{Name: strings.Join(name, " "), ColorImageIndex: idx})
	}
	return action.Action{}, fmt.Errorf("unknown action verb %q", verb)
}
