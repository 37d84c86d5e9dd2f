package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"arena-agent/internal/action"
	"arena-agent/internal/intent"
	"arena-agent/internal/queue"
	"arena-agent/internal/worldmap"
)

// InventorySlot is the single held entity and when it last changed.
type InventorySlot struct {
	Entity  string `json:"entity"`
	TurnIdx int    `json:"turn_idx"`
}

// PendingQuestion records a question the agent asked last turn, with whatever
// was deferred until the answer arrives.
type PendingQuestion struct {
	Kind         intent.Kind     `json:"kind"`
	Entity       string          `json:"entity,omitempty"`
	Deferred     *Utterance      `json:"deferred,omitempty"`
	DeferredPlan []action.Action `json:"deferred_plan,omitempty"`
}

// State is the cross-turn mutable session state: queues, object memory,
// inventory and rule bookkeeping. It is loaded before the pipeline runs and
// saved exactly once after.
type State struct {
	UtteranceQueue *queue.Queue[Utterance]     `json:"utterance_queue"`
	FindQueue      *queue.Queue[action.Action] `json:"find_queue"`
	Memory         *worldmap.Memory            `json:"memory"`
	Inventory      *InventorySlot              `json:"inventory,omitempty"`
	UsedRuleIDs    []int                       `json:"used_rule_ids"`
	Pending        *PendingQuestion            `json:"pending,omitempty"`
	// SearchTarget is the object an in-progress find queue is looking for.
	SearchTarget string `json:"search_target,omitempty"`
}

func NewState() *State {
	return &State{
		UtteranceQueue: queue.New[Utterance](),
		FindQueue:      queue.New[action.Action](),
		Memory:         worldmap.NewMemory(),
	}
}

// RememberRule appends a used rule id, keeping at most window entries.
func (s *State) RememberRule(id, window int) {
	s.UsedRuleIDs = append(s.UsedRuleIDs, id)
	if window > 0 && len(s.UsedRuleIDs) > window {
		s.UsedRuleIDs = s.UsedRuleIDs[len(s.UsedRuleIDs)-window:]
	}
}

// AbandonSearch clears an in-progress sweep.
func (s *State) AbandonSearch() {
	s.FindQueue.Reset()
	s.SearchTarget = ""
}

// AbandonPlan clears queued sub-instructions.
func (s *State) AbandonPlan() {
	s.UtteranceQueue.Reset()
}

// stateRow is the persisted form: one row per session with the whole state
// as one JSON column.
type stateRow struct {
	ID        uint           `gorm:"primaryKey"`
	SessionID string         `gorm:"uniqueIndex"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (stateRow) TableName() string {
	return "arena_session_state"
}

// LoadState retrieves the session's cross-turn state, creating a fresh one if
// the session is new.
func (s *Store) LoadState(ctx context.Context, sessionID string) (*State, error) {
	var row stateRow
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	st := NewState()
	if err := json.Unmarshal(row.Payload, st); err != nil {
		return nil, fmt.Errorf("corrupt session state for %s: %w", sessionID, err)
	}
	if st.UtteranceQueue == nil {
		st.UtteranceQueue = queue.New[Utterance]()
	}
	if st.FindQueue == nil {
		st.FindQueue = queue.New[action.Action]()
	}
	if st.Memory == nil {
		st.Memory = worldmap.NewMemory()
	}
	return st, nil
}

// SaveState upserts the session's cross-turn state row.
func (s *Store) SaveState(ctx context.Context, sessionID string, st *State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	var row stateRow
	tx := s.db.WithContext(ctx)
	err = tx.Where(stateRow{SessionID: sessionID}).
		Assign(map[string]any{"payload": datatypes.JSON(payload)}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	// FirstOrCreate with Assign updates on create only in some dialects; make
	// the update explicit so repeated saves stick.
	return tx.Model(&stateRow{}).Where("session_id = ?", sessionID).
		Update("payload", datatypes.JSON(payload)).Error
}
