package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"arena-agent/internal/action"
	"arena-agent/internal/blobcache"
	"arena-agent/internal/config"
	"arena-agent/internal/pipeline"
	"arena-agent/internal/planner"
	"arena-agent/internal/rules"
	"arena-agent/internal/services"
	"arena-agent/internal/session"
)

// Blobs is the cache surface the runtime needs; blobcache.Cache satisfies it.
type Blobs interface {
	Exists(ctx context.Context, kind blobcache.Kind, sessionID, requestID string) (bool, error)
	Save(ctx context.Context, kind blobcache.Kind, sessionID, requestID string, payload []byte) error
	Load(ctx context.Context, kind blobcache.Kind, sessionID, requestID string) ([]byte, error)
}

// Runtime owns every collaborator handle a turn needs. It is constructed once
// at startup and passed to the API layer; there is no package-level state.
type Runtime struct {
	cfg   *config.Config
	store *session.Store
	blobs Blobs
	reg   *services.Registry
	pipe  *pipeline.Pipeline
}

func NewRuntime(cfg *config.Config, store *session.Store, blobs Blobs, reg *services.Registry, pl *planner.Planner, eng *rules.Engine) *Runtime {
	return &Runtime{
		cfg:   cfg,
		store: store,
		blobs: blobs,
		reg:   reg,
		pipe:  pipeline.New(cfg, reg, pl, eng),
	}
}

// Predict runs one full turn: parse, load, patch, resolve, persist, respond.
// The turn is persisted exactly once, after every stage has finished.
func (r *Runtime) Predict(ctx context.Context, req *Request) (*Response, error) {
	meta, tokens, err := req.validate()
	if err != nil {
		return nil, err
	}
	sessionID := req.Header.SessionID
	requestID := req.Header.PredictionRequestID

	turns, err := r.store.Turns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state, err := r.store.LoadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if len(req.Request.PreviousActions) > 0 && len(turns) > 0 {
		if err := r.patchPrevious(ctx, sessionID, turns, state, meta, req.Request.PreviousActions); err != nil {
			return nil, err
		}
	}

	r.cacheAux(ctx, sessionID, requestID, req)

	turn := &session.Turn{
		SessionID:           sessionID,
		PredictionRequestID: requestID,
		Idx:                 len(turns),
		StartedAt:           time.Now().UTC(),
		Room:                meta.Room,
		Viewpoint:           meta.Viewpoint,
		AuxURI:              blobcache.Key(blobcache.KindAux, sessionID, requestID),
	}
	utterance, confidence := speech(tokens)
	if len(tokens) > 0 {
		turn.UtteranceOrig = utterance
		turn.SpeakerRole = session.RoleUser
		turn.UtteranceSource = session.SourceUser
	}

	env := &pipeline.Env{
		Turn:          turn,
		State:         state,
		History:       turns,
		HasSpeech:     len(tokens) > 0,
		ASRConfidence: confidence,
		Rooms:         meta.Rooms,
		Viewpoints:    meta.viewpoints(),
		CurrentPos:    meta.current(),
	}
	r.loadVision(ctx, env, meta, sessionID, requestID)
	env.FeaturesRaw = r.historyFeatures(ctx, sessionID, requestID, turns, env.FeaturesRaw)

	if err := r.pipe.Run(ctx, env); err != nil {
		return nil, err
	}

	turn.EndedAt = time.Now().UTC()
	if err := r.store.AppendTurn(ctx, turn); err != nil {
		return nil, err
	}
	if err := r.store.SaveState(ctx, sessionID, state); err != nil {
		return nil, err
	}

	return r.respond(sessionID, requestID, turn)
}

// patchPrevious writes the reported execution statuses into the most recently
// persisted turn and applies their side effects to session state: a confirmed
// pickup fills the inventory slot, a confirmed place empties it and records
// the drop location in object memory.
func (r *Runtime) patchPrevious(ctx context.Context, sessionID string, turns []session.Turn, state *session.State, meta *GameMetadata, reported []PreviousAction) error {
	last := &turns[len(turns)-1]
	byID := map[int]*action.Action{}
	if a := last.ActionBundle.Interaction; a != nil {
		byID[a.ID] = a
	}
	if a := last.ActionBundle.Dialog; a != nil {
		byID[a.ID] = a
	}

	patched := false
	for _, p := range reported {
		a, ok := byID[p.ID]
		if !ok {
			log.Printf("[Orchestrator] status for unknown action id %d in session %s", p.ID, sessionID)
			continue
		}
		a.Status = &action.Status{Success: p.Success, ErrorKind: p.ErrorKind, Entity: p.Entity}
		patched = true

		if !p.Success {
			continue
		}
		switch a.Type {
		case action.TypePickup:
			state.Inventory = &session.InventorySlot{Entity: entityOf(a, p), TurnIdx: last.Idx}
		case action.TypePlace:
			if held := state.Inventory; held != nil {
				state.Memory.WriteDrop(meta.Room, meta.Viewpoint, held.Entity, maskArea(a))
				state.Inventory = nil
			}
		}
	}
	if !patched {
		return nil
	}
	return r.store.PatchActions(ctx, sessionID, last.Idx, last.ActionBundle)
}

func entityOf(a *action.Action, p PreviousAction) string {
	if p.Entity != "" {
		return p.Entity
	}
	return a.Entity()
}

func maskArea(a *action.Action) float64 {
	if p, ok := a.Payload.(action.ObjectPayload); ok {
		return float64(len(p.Mask))
	}
	return 0
}

// cacheAux stores the raw sensor snapshot. The cache is best-effort; losing
// it degrades later inspection, not the turn.
func (r *Runtime) cacheAux(ctx context.Context, sessionID, requestID string, req *Request) {
	raw, err := json.Marshal(req.Request.Sensors)
	if err != nil {
		log.Printf("[Orchestrator] cannot encode aux payload: %v", err)
		return
	}
	if err := r.blobs.Save(ctx, blobcache.KindAux, sessionID, requestID, raw); err != nil {
		log.Printf("[Orchestrator] aux cache save failed: %v", err)
	}
}

// loadVision extracts features for this turn's images, feeds the detections
// into object memory and caches the raw features for future history windows.
func (r *Runtime) loadVision(ctx context.Context, env *pipeline.Env, meta *GameMetadata, sessionID, requestID string) {
	if len(meta.Images) == 0 {
		return
	}
	// A retried request already paid for extraction; reuse the cached frame.
	if ok, err := r.blobs.Exists(ctx, blobcache.KindFeatures, sessionID, requestID); err == nil && ok {
		if raw, err := r.blobs.Load(ctx, blobcache.KindFeatures, sessionID, requestID); err == nil {
			var frame services.Frame
			if uerr := json.Unmarshal(raw, &frame); uerr != nil {
				log.Printf("[Orchestrator] cached features undecodable, re-extracting: %v", uerr)
			} else {
				env.Frame = &frame
				env.State.Memory.WriteFrame(meta.Room, meta.Viewpoint, frame.Detections())
				env.FeaturesRaw = raw
				return
			}
		}
	}
	frame, err := r.reg.FeatureExtractor.Extract(ctx, meta.Images)
	if err != nil {
		// Vision is advisory for most turns; searching degrades gracefully.
		log.Printf("[Orchestrator] feature extraction failed: %v", err)
		return
	}
	env.Frame = frame
	env.State.Memory.WriteFrame(meta.Room, meta.Viewpoint, frame.Detections())

	raw, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[Orchestrator] cannot encode features: %v", err)
		return
	}
	env.FeaturesRaw = raw
	if err := r.blobs.Save(ctx, blobcache.KindFeatures, sessionID, requestID, raw); err != nil {
		log.Printf("[Orchestrator] feature cache save failed: %v", err)
	}
}

// historyFeatures loads the cached features of the history window
// concurrently, then reassembles them in turn order so downstream consumers
// see a deterministic sequence. The current turn's features close the list.
func (r *Runtime) historyFeatures(ctx context.Context, sessionID, requestID string, turns []session.Turn, current []byte) []byte {
	window := r.cfg.History.Window
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}

	type item struct {
		idx int
		raw json.RawMessage
	}
	items := make([]item, len(turns))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range turns {
		i, t := i, t
		g.Go(func() error {
			raw, err := r.blobs.Load(gctx, blobcache.KindFeatures, sessionID, t.PredictionRequestID)
			if errors.Is(err, blobcache.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			items[i] = item{idx: t.Idx, raw: raw}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("[Orchestrator] history feature load failed: %v", err)
		return current
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].idx < items[j].idx })
	var frames []json.RawMessage
	for _, it := range items {
		if len(it.raw) > 0 {
			frames = append(frames, it.raw)
		}
	}
	if len(current) > 0 {
		frames = append(frames, json.RawMessage(current))
	}
	if len(frames) == 0 {
		return nil
	}
	raw, err := json.Marshal(frames)
	if err != nil {
		log.Printf("[Orchestrator] cannot encode feature window: %v", err)
		return current
	}
	return raw
}

// respond assembles the outbound envelope: at most maxActions actions with
// status and intent metadata stripped.
func (r *Runtime) respond(sessionID, requestID string, turn *session.Turn) (*Response, error) {
	resp := &Response{
		SessionID:           sessionID,
		PredictionRequestID: requestID,
		ObjectOutputType:    objectOutputType,
	}
	emit := func(a *action.Action) error {
		if a == nil || len(resp.Actions) >= maxActions {
			return nil
		}
		m, err := wireAction(*a)
		if err != nil {
			return err
		}
		resp.Actions = append(resp.Actions, m)
		return nil
	}
	if err := emit(turn.ActionBundle.Interaction); err != nil {
		return nil, err
	}
	if err := emit(turn.ActionBundle.Dialog); err != nil {
		return nil, err
	}
	return resp, nil
}
