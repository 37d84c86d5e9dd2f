package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrCorruptSession flags a session whose timestamp order disagrees with
	// its index order.
	ErrCorruptSession = errors.New("session turn order is corrupt")
	ErrTurnNotFound   = errors.New("turn not found")
)

// Store persists turns and session state. Sessions are single-writer: one
// in-flight request per session id is assumed, and the conditional create
// below turns a lost race into a visible duplicate rather than corruption.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the turn and state tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Turn{}, &stateRow{})
}

// Turns returns every turn of a session ordered by index, with bundles
// decoded, after verifying that index order and timestamp order agree.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	var turns []Turn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("idx asc").
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load turns for %s: %w", sessionID, err)
	}

	byTime := make([]Turn, len(turns))
	copy(byTime, turns)
	sort.SliceStable(byTime, func(i, j int) bool {
		return byTime[i].StartedAt.Before(byTime[j].StartedAt)
	})
	for i := range turns {
		if turns[i].Idx != byTime[i].Idx {
			return nil, fmt.Errorf("%w: session %s, idx %d out of timestamp order",
				ErrCorruptSession, sessionID, turns[i].Idx)
		}
	}

	for i := range turns {
		if err := turns[i].Decode(); err != nil {
			return nil, err
		}
	}
	return turns, nil
}

// AppendTurn persists a turn exactly once. A second append with the same
// (session, idx) is a no-op, which makes retries idempotent.
func (s *Store) AppendTurn(ctx context.Context, t *Turn) error {
	if err := t.Encode(); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "idx"}},
			DoNothing: true,
		}).
		Create(t)
	if res.Error != nil {
		return fmt.Errorf("failed to append turn %d for %s: %w", t.Idx, t.SessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("[Store] turn %d for session %s already persisted, skipping", t.Idx, t.SessionID)
	}
	return nil
}

// PatchActions applies the one allowed post-persist update: writing the
// delayed execution status into the most recently persisted turn's actions.
func (s *Store) PatchActions(ctx context.Context, sessionID string, idx int, bundle ActionBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode action bundle: %w", err)
	}
	res := s.db.WithContext(ctx).
		Model(&Turn{}).
		Where("session_id = ? AND idx = ?", sessionID, idx).
		Update("actions", datatypes.JSON(raw))
	if res.Error != nil {
		return fmt.Errorf("failed to patch turn %d for %s: %w", idx, sessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: session %s idx %d", ErrTurnNotFound, sessionID, idx)
	}
	return nil
}
