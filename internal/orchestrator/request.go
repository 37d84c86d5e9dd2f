package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"arena-agent/internal/action"
	"arena-agent/internal/worldmap"
)

// Request is the arena's prediction request envelope.
type Request struct {
	Header struct {
		SessionID           string `json:"sessionId"`
		PredictionRequestID string `json:"predictionRequestId"`
	} `json:"header"`
	Request struct {
		Sensors         []Sensor         `json:"sensors"`
		PreviousActions []PreviousAction `json:"previousActions"`
	} `json:"request"`
}

// Sensor is one entry of the request's sensor list. The type tag decides
// which of the optional blocks is populated.
type Sensor struct {
	Type     string        `json:"type"` // "GameMetaData" or "SpeechRecognition"
	Metadata *GameMetadata `json:"metaData,omitempty"`
	Tokens   []SpeechToken `json:"tokens,omitempty"`
}

const (
	sensorGameMetadata = "GameMetaData"
	sensorSpeech       = "SpeechRecognition"
)

// GameMetadata is the mandatory environment snapshot: where the agent stands
// and what it can reach.
type GameMetadata struct {
	Room       string          `json:"room"`
	Viewpoint  string          `json:"viewpoint"`
	Position   *Position       `json:"position,omitempty"`
	Rooms      []string        `json:"rooms"`
	Viewpoints []ViewpointMeta `json:"viewpoints"`
	Images     []string        `json:"colorImages"`
}

type Position struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type ViewpointMeta struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

// SpeechToken is one recognized word with its confidence.
type SpeechToken struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// PreviousAction reports the execution outcome of an action issued in the
// immediately preceding turn.
type PreviousAction struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	ErrorKind string `json:"errorKind,omitempty"`
	Entity    string `json:"entity,omitempty"`
}

var (
	ErrMissingHeader   = errors.New("request header must carry sessionId and predictionRequestId")
	ErrMissingMetadata = errors.New("request carries no game-metadata sensor")
)

// validate checks the envelope and returns the parsed metadata and optional
// speech sensor.
func (r *Request) validate() (*GameMetadata, []SpeechToken, error) {
	if r.Header.SessionID == "" || r.Header.PredictionRequestID == "" {
		return nil, nil, ErrMissingHeader
	}
	var meta *GameMetadata
	var tokens []SpeechToken
	for _, s := range r.Request.Sensors {
		switch s.Type {
		case sensorGameMetadata:
			meta = s.Metadata
		case sensorSpeech:
			tokens = s.Tokens
		}
	}
	if meta == nil {
		return nil, nil, ErrMissingMetadata
	}
	return meta, tokens, nil
}

// speech joins the token list into the utterance and returns the lowest
// per-token confidence, the conservative measure for the ASR gate.
func speech(tokens []SpeechToken) (string, float64) {
	if len(tokens) == 0 {
		return "", 0
	}
	words := make([]string, 0, len(tokens))
	minConf := tokens[0].Confidence
	for _, tok := range tokens {
		words = append(words, tok.Value)
		if tok.Confidence < minConf {
			minConf = tok.Confidence
		}
	}
	return strings.Join(words, " "), minConf
}

func (m *GameMetadata) viewpoints() []worldmap.Viewpoint {
	out := make([]worldmap.Viewpoint, 0, len(m.Viewpoints))
	for _, v := range m.Viewpoints {
		out = append(out, worldmap.Viewpoint{Name: v.Name, X: v.X, Z: v.Z})
	}
	return out
}

func (m *GameMetadata) current() *worldmap.Viewpoint {
	if m.Viewpoint != "" {
		for _, v := range m.Viewpoints {
			if v.Name == m.Viewpoint {
				return &worldmap.Viewpoint{Name: v.Name, X: v.X, Z: v.Z}
			}
		}
	}
	if m.Position != nil {
		return &worldmap.Viewpoint{Name: "current", X: m.Position.X, Z: m.Position.Z}
	}
	return nil
}

// Response is the arena's prediction response envelope.
type Response struct {
	SessionID           string           `json:"sessionId"`
	PredictionRequestID string           `json:"predictionRequestId"`
	ObjectOutputType    string           `json:"objectOutputType"`
	Actions             []map[string]any `json:"actions"`
}

const (
	objectOutputType = "OBJECT_MASK"
	maxActions       = 5
)

// wireAction serializes an action for the arena, stripping the status and
// intent metadata that only the session record keeps.
func wireAction(a action.Action) (map[string]any, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode action %d: %w", a.ID, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("re-decode action %d: %w", a.ID, err)
	}
	delete(m, "status")
	return m, nil
}
