package action

import (
	"encoding/json"
	"fmt"
)

// Type tags an action with its category. The set is closed; payloads maps
// every tag to the payload shape it carries and constructors refuse any pair
// outside that mapping.
type Type string

const (
	TypeRotate        Type = "Rotate"
	TypeLook          Type = "Look"
	TypeMove          Type = "Move"
	TypeGotoViewpoint Type = "GotoViewpoint"
	TypeGotoRoom      Type = "GotoRoom"
	TypeGotoObject    Type = "GotoObject"
	TypePickup        Type = "Pickup"
	TypePlace         Type = "Place"
	TypeOpen          Type = "Open"
	TypeClose         Type = "Close"
	TypeToggle        Type = "Toggle"
	TypeHighlight     Type = "Highlight"
	TypeDialog        Type = "Dialog"
)

// Direction values for motion payloads.
const (
	DirLeft     = "Left"
	DirRight    = "Right"
	DirAround   = "Around"
	DirForward  = "Forward"
	DirBackward = "Backward"
	DirUp       = "Up"
	DirDown     = "Down"
)

// DefaultRotateMagnitude is the degrees applied when an instruction does not
// name an angle.
const DefaultRotateMagnitude = 90

type Payload interface {
	payloadKind() string
}

// MotionPayload drives Rotate, Look and Move.
type MotionPayload struct {
	Direction string  `json:"direction"`
	Magnitude float64 `json:"magnitude"`
	// Final marks the last rotation of a search sweep so the executor can
	// report sweep completion instead of a plain turn.
	Final bool `json:"final,omitempty"`
}

// GotoPayload drives the three goto variants; exactly one destination field
// is set, matching the type tag.
type GotoPayload struct {
	Viewpoint string `json:"viewpoint,omitempty"`
	Room      string `json:"room,omitempty"`
	Object    string `json:"object,omitempty"`
}

// ObjectPayload drives object interactions (pickup, place, open, ...).
type ObjectPayload struct {
	Name            string `json:"name"`
	ColorImageIndex int    `json:"colorImageIndex"`
	Mask            []int  `json:"mask,omitempty"`
}

// DialogPayload carries the agent's spoken response.
type DialogPayload struct {
	Value  string `json:"value"`
	Intent string `json:"intent,omitempty"`
}

func (MotionPayload) payloadKind() string { return "motion" }
func (GotoPayload) payloadKind() string   { return "goto" }
func (ObjectPayload) payloadKind() string { return "object" }
func (DialogPayload) payloadKind() string { return "dialog" }

// payloads is the total tag-to-shape mapping. Adding a Type without an entry
// here makes every constructor reject it, which is the failure mode we want.
var payloads = map[Type]string{
	TypeRotate:        "motion",
	TypeLook:          "motion",
	TypeMove:          "motion",
	TypeGotoViewpoint: "goto",
	TypeGotoRoom:      "goto",
	TypeGotoObject:    "goto",
	TypePickup:        "object",
	TypePlace:         "object",
	TypeOpen:          "object",
	TypeClose:         "object",
	TypeToggle:        "object",
	TypeHighlight:     "object",
	TypeDialog:        "dialog",
}

// Status is the execution outcome reported by the arena one turn later.
type Status struct {
	Success   bool   `json:"success"`
	ErrorKind string `json:"errorKind,omitempty"`
	Entity    string `json:"entity,omitempty"`
}

// Action is one instruction to the arena. ID is stable within a turn; Status
// stays nil until the next request reports it. Status survives persistence
// but is stripped from the outbound arena response by the orchestrator.
type Action struct {
	ID      int     `json:"id"`
	Type    Type    `json:"type"`
	Payload Payload `json:"payload"`
	Status  *Status `json:"status,omitempty"`
}

// New builds an action, rejecting any type/payload pair outside the closed
// mapping above.
func New(id int, t Type, p Payload) (Action, error) {
	want, ok := payloads[t]
	if !ok {
		return Action{}, fmt.Errorf("unknown action type %q", t)
	}
	if p == nil {
		return Action{}, fmt.Errorf("action type %q requires a %s payload, got nil", t, want)
	}
	if got := p.payloadKind(); got != want {
		return Action{}, fmt.Errorf("action type %q requires a %s payload, got %s", t, want, got)
	}
	return Action{ID: id, Type: t, Payload: p}, nil
}

// MustNew is for call sites that pass compile-time-constant pairs; a mismatch
// there is a programming error.
func MustNew(id int, t Type, p Payload) Action {
	a, err := New(id, t, p)
	if err != nil {
		panic(err)
	}
	return a
}

// Rotate is shorthand for the most common planned action.
func Rotate(id int, direction string, magnitude float64) Action {
	return MustNew(id, TypeRotate, MotionPayload{Direction: direction, Magnitude: magnitude})
}

// Dialog is shorthand for the spoken response action.
func Dialog(id int, value, intentName string) Action {
	return MustNew(id, TypeDialog, DialogPayload{Value: value, Intent: intentName})
}

// MarshalJSON inlines the payload under a key named after its kind, keeping
// the union decodable without a payload wrapper.
func (a Action) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"id":   a.ID,
		"type": string(a.Type),
	}
	if a.Payload != nil {
		m[a.Payload.payloadKind()] = a.Payload
	}
	if a.Status != nil {
		m["status"] = a.Status
	}
	return json.Marshal(m)
}

// UnmarshalJSON restores an action persisted by this service. The tag decides
// which payload shape to decode, keeping the union closed on the way in too.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     int             `json:"id"`
		Type   Type            `json:"type"`
		Motion json.RawMessage `json:"motion"`
		Goto   json.RawMessage `json:"goto"`
		Object json.RawMessage `json:"object"`
		Dialog json.RawMessage `json:"dialog"`
		Status *Status         `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.ID = raw.ID
	a.Type = raw.Type
	a.Status = raw.Status
	want, ok := payloads[raw.Type]
	if !ok {
		return fmt.Errorf("unknown action type %q", raw.Type)
	}
	switch want {
	case "motion":
		var p MotionPayload
		if err := json.Unmarshal(raw.Motion, &p); err != nil {
			return fmt.Errorf("decode motion payload: %w", err)
		}
		a.Payload = p
	case "goto":
		var p GotoPayload
		if err := json.Unmarshal(raw.Goto, &p); err != nil {
			return fmt.Errorf("decode goto payload: %w", err)
		}
		a.Payload = p
	case "object":
		var p ObjectPayload
		if err := json.Unmarshal(raw.Object, &p); err != nil {
			return fmt.Errorf("decode object payload: %w", err)
		}
		a.Payload = p
	case "dialog":
		var p DialogPayload
		if err := json.Unmarshal(raw.Dialog, &p); err != nil {
			return fmt.Errorf("decode dialog payload: %w", err)
		}
		a.Payload = p
	}
	return nil
}

// Entity returns the object an action targets, if it targets one.
func (a Action) Entity() string {
	switch p := a.Payload.(type) {
	case ObjectPayload:
		return p.Name
	case GotoPayload:
		if p.Object != "" {
			return p.Object
		}
		return p.Room
	}
	return ""
}
