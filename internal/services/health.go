package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"arena-agent/internal/config"
)

// Registry owns one client per collaborator service. It is built once at
// startup and handed to the orchestrator; nothing here is lazily initialized.
type Registry struct {
	FeatureExtractor       *FeatureExtractor
	NLU                    *NLU
	ActionGenerator        *ActionGenerator
	VisualGrounding        *VisualGrounding
	Profanity              *TextFilter
	OutOfDomain            *TextFilter
	ConfirmationClassifier *ConfirmationClassifier
	InstructionSplitter    *InstructionSplitter
}

func NewRegistry(cfg *config.Config) *Registry {
	s := cfg.Services
	return &Registry{
		FeatureExtractor:       NewFeatureExtractor(s.FeatureExtractor),
		NLU:                    NewNLU(s.NLU),
		ActionGenerator:        NewActionGenerator(s.ActionGenerator),
		VisualGrounding:        NewVisualGrounding(s.VisualGrounding),
		Profanity:              NewProfanityFilter(s.Profanity),
		OutOfDomain:            NewOutOfDomainFilter(s.OutOfDomain),
		ConfirmationClassifier: NewConfirmationClassifier(s.ConfirmationClassifier),
		InstructionSplitter:    NewInstructionSplitter(s.InstructionSplitter),
	}
}

// checkable pairs a service name with its probe for status reporting.
type checkable struct {
	Name  string
	Probe func(context.Context) error
}

func (r *Registry) checkables() []checkable {
	return []checkable{
		{"feature-extractor", r.FeatureExtractor.Healthy},
		{"nlu", r.NLU.Healthy},
		{"action-generator", r.ActionGenerator.Healthy},
		{"visual-grounding", r.VisualGrounding.Healthy},
		{"profanity-filter", r.Profanity.Healthy},
		{"out-of-domain-filter", r.OutOfDomain.Healthy},
		{"confirmation-classifier", r.ConfirmationClassifier.Healthy},
		{"instruction-splitter", r.InstructionSplitter.Healthy},
	}
}

// CheckAll probes every collaborator concurrently; the registry is usable
// only when all succeed.
func (r *Registry) CheckAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range r.checkables() {
		probe := c.Probe
		g.Go(func() error {
			return probe(ctx)
		})
	}
	return g.Wait()
}

// Status reports per-collaborator health, probed concurrently.
func (r *Registry) Status(ctx context.Context) map[string]string {
	cs := r.checkables()
	results := make([]string, len(cs))
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range cs {
		i, probe := i, c.Probe
		g.Go(func() error {
			if err := probe(ctx); err != nil {
				results[i] = err.Error()
			} else {
				results[i] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()
	out := make(map[string]string, len(cs))
	for i, c := range cs {
		out[c.Name] = results[i]
	}
	return out
}

// WaitHealthy blocks until every collaborator answers its health probe,
// retrying with backoff. The context is the shutdown signal: cancellation
// aborts only this loop, never an in-flight turn.
func (r *Registry) WaitHealthy(ctx context.Context, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	backoff := time.Second
	for {
		err := r.CheckAll(ctx)
		if err == nil {
			log.Printf("[Health] all collaborator services healthy")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("collaborators never became healthy: %w", err)
		}
		log.Printf("[Health] waiting for collaborators: %v (retry in %s)", err, backoff)
		select {
		case <-ctx.Done():
			return fmt.Errorf("health wait interrupted: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
