package services

import (
	"context"
	"log"

	"arena-agent/internal/config"
)

// TextFilter is a boolean text classifier (profanity, out-of-domain). These
// are non-essential: when degrade is set, a failed call logs and reports
// false instead of aborting the turn.
type TextFilter struct {
	httpService
	degrade bool
}

func NewProfanityFilter(cfg config.ServiceConfig) *TextFilter {
	return &TextFilter{httpService: newHTTPService("profanity-filter", cfg), degrade: true}
}

func NewOutOfDomainFilter(cfg config.ServiceConfig) *TextFilter {
	return &TextFilter{httpService: newHTTPService("out-of-domain-filter", cfg), degrade: true}
}

// Check classifies the text. With degradation enabled a transport failure is
// treated as a negative verdict.
func (f *TextFilter) Check(ctx context.Context, text string) (bool, error) {
	var out struct {
		Match bool `json:"match"`
	}
	err := f.post(ctx, "/v1/check", map[string]any{"text": text}, &out)
	if err != nil {
		if f.degrade {
			log.Printf("[Services] %s degraded to negative verdict: %v", f.name, err)
			return false, nil
		}
		return false, err
	}
	return out.Match, nil
}

// Confirmation verdicts.
const (
	VerdictYes   = "yes"
	VerdictNo    = "no"
	VerdictOther = "other"
)

// ConfirmationClassifier decides whether an utterance answers a pending
// yes/no question.
type ConfirmationClassifier struct {
	httpService
}

func NewConfirmationClassifier(cfg config.ServiceConfig) *ConfirmationClassifier {
	return &ConfirmationClassifier{newHTTPService("confirmation-classifier", cfg)}
}

func (c *ConfirmationClassifier) Classify(ctx context.Context, text string) (string, error) {
	var out struct {
		Verdict string `json:"verdict"`
	}
	if err := c.post(ctx, "/v1/classify", map[string]any{"text": text}, &out); err != nil {
		return "", err
	}
	switch out.Verdict {
	case VerdictYes, VerdictNo:
		return out.Verdict, nil
	}
	return VerdictOther, nil
}

// InstructionSplitter breaks a compound instruction into ordered
// sub-instructions.
type InstructionSplitter struct {
	httpService
}

func NewInstructionSplitter(cfg config.ServiceConfig) *InstructionSplitter {
	return &InstructionSplitter{newHTTPService("instruction-splitter", cfg)}
}

func (s *InstructionSplitter) Split(ctx context.Context, text string) ([]string, error) {
	var out struct {
		Instructions []string `json:"instructions"`
	}
	if err := s.post(ctx, "/v1/split", map[string]any{"text": text}, &out); err != nil {
		return nil, err
	}
	return out.Instructions, nil
}
