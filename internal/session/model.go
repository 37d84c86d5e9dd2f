package session

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"arena-agent/internal/action"
	"arena-agent/internal/intent"
)

// Speaker roles and utterance sources.
const (
	RoleUser  = "user"
	RoleAgent = "agent"

	SourceUser  = "user"  // spoken this turn
	SourceQueue = "queue" // replayed from the utterance queue
)

// Utterance is one pending or current instruction with its provenance.
type Utterance struct {
	Original string `json:"original"`
	Modified string `json:"modified"`
	Role     string `json:"role"`
	Source   string `json:"source"`
}

// Text returns the variant the pipeline should act on.
func (u Utterance) Text() string {
	if u.Modified != "" {
		return u.Modified
	}
	return u.Original
}

// IntentBundle is the fully resolved intent state of one turn.
type IntentBundle struct {
	User          *intent.Intent `json:"user,omitempty"`
	Environment   *intent.Intent `json:"environment,omitempty"`
	AgentPhysical *intent.Intent `json:"agent_physical,omitempty"`
	AgentVerbal   *intent.Intent `json:"agent_verbal,omitempty"`
}

// ActionBundle is at most one interaction action and one dialog action.
type ActionBundle struct {
	Interaction *action.Action `json:"interaction,omitempty"`
	Dialog      *action.Action `json:"dialog,omitempty"`
}

// Turn is one request/response cycle, persisted once after the pipeline
// finishes. The only later mutation allowed is the status patch applied when
// the next request reports execution results.
type Turn struct {
	ID                  uint   `gorm:"primaryKey" json:"id"`
	SessionID           string `gorm:"index;uniqueIndex:uniq_session_idx" json:"session_id"`
	PredictionRequestID string `json:"prediction_request_id"`
	Idx                 int    `gorm:"uniqueIndex:uniq_session_idx" json:"idx"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Room            string `json:"room"`
	Viewpoint       string `json:"viewpoint"`
	UtteranceOrig   string `json:"utterance_original"`
	UtteranceMod    string `json:"utterance_modified"`
	SpeakerRole     string `json:"speaker_role"`
	UtteranceSource string `json:"utterance_source"`

	// AuxURI points at the heavy sensor payload in the blob cache.
	AuxURI string `json:"aux_uri"`

	Intents datatypes.JSON `gorm:"type:jsonb" json:"intents"`
	Actions datatypes.JSON `gorm:"type:jsonb" json:"actions"`

	// Decoded bundles; encoded into the JSON columns on save.
	IntentBundle IntentBundle `gorm:"-" json:"-"`
	ActionBundle ActionBundle `gorm:"-" json:"-"`
}

func (Turn) TableName() string {
	return "arena_turns"
}

// Encode serializes the decoded bundles into the persisted columns.
func (t *Turn) Encode() error {
	ib, err := json.Marshal(t.IntentBundle)
	if err != nil {
		return fmt.Errorf("encode intent bundle: %w", err)
	}
	ab, err := json.Marshal(t.ActionBundle)
	if err != nil {
		return fmt.Errorf("encode action bundle: %w", err)
	}
	t.Intents = datatypes.JSON(ib)
	t.Actions = datatypes.JSON(ab)
	return nil
}

// Decode restores the bundles from the persisted columns.
func (t *Turn) Decode() error {
	if len(t.Intents) > 0 {
		if err := json.Unmarshal(t.Intents, &t.IntentBundle); err != nil {
			return fmt.Errorf("decode intent bundle for turn %d: %w", t.Idx, err)
		}
	}
	if len(t.Actions) > 0 {
		if err := json.Unmarshal(t.Actions, &t.ActionBundle); err != nil {
			return fmt.Errorf("decode action bundle for turn %d: %w", t.Idx, err)
		}
	}
	return nil
}

// Utterance assembles the turn's incoming utterance, if any.
func (t *Turn) Utterance() *Utterance {
	if t.UtteranceOrig == "" {
		return nil
	}
	return &Utterance{
		Original: t.UtteranceOrig,
		Modified: t.UtteranceMod,
		Role:     t.SpeakerRole,
		Source:   t.UtteranceSource,
	}
}
