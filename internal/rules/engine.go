package rules

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Snapshot is the immutable, flattened view of session state a selection runs
// against. Fields is what conditions and template slots read; UsedRuleIDs and
// RequireLightweight steer the selection itself.
type Snapshot struct {
	Fields             map[string]any
	UsedRuleIDs        []int
	RequireLightweight bool
}

// Selection is the engine's result: the winning rule and its rendered text.
type Selection struct {
	RuleID int
	Text   string
}

// Engine selects and renders feedback rules. The random source only breaks
// ties inside the top specificity group; injecting a fixed seed makes
// selection fully deterministic for tests.
type Engine struct {
	set       *RuleSet
	defaultID int

	mu  sync.Mutex
	rng *rand.Rand
}

var ErrNoDefaultRule = errors.New("default feedback rule not present in rule set")

func NewEngine(set *RuleSet, defaultRuleID int, rng *rand.Rand) (*Engine, error) {
	if _, ok := findRule(set.Rules, defaultRuleID); !ok {
		return nil, ErrNoDefaultRule
	}
	return &Engine{set: set, defaultID: defaultRuleID, rng: rng}, nil
}

func findRule(rules []Rule, id int) (Rule, bool) {
	for _, r := range rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Select runs the selection algorithm: lightweight filter, parallel predicate
// evaluation, unused-id preference, max-specificity grouping, random pick,
// default fallback. Render failures reject the rule and fall through to the
// default.
func (e *Engine) Select(snap Snapshot) (Selection, error) {
	candidates := e.set.Rules
	if snap.RequireLightweight {
		var light []Rule
		for _, r := range candidates {
			if r.Lightweight {
				light = append(light, r)
			}
		}
		candidates = light
	}

	// Predicate evaluation is independent per rule; fan out and join before
	// anything reads the results.
	matched := make([]bool, len(candidates))
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok := true
			for _, c := range candidates[i].Conditions {
				if !c.eval(snap.Fields) {
					ok = false
					break
				}
			}
			matched[i] = ok
		}(i)
	}
	wg.Wait()

	var satisfied []Rule
	for i, r := range candidates {
		if matched[i] {
			satisfied = append(satisfied, r)
		}
	}
	if len(satisfied) == 0 {
		return e.renderDefault(snap)
	}

	used := map[int]bool{}
	for _, id := range snap.UsedRuleIDs {
		used[id] = true
	}
	var fresh []Rule
	for _, r := range satisfied {
		if !used[r.ID] {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) > 0 {
		satisfied = fresh
	}

	// Highest specificity group wins; within it the pick is uniform.
	sort.SliceStable(satisfied, func(i, j int) bool {
		return satisfied[i].Specificity() > satisfied[j].Specificity()
	})
	top := satisfied[0].Specificity()
	group := satisfied
	for i, r := range satisfied {
		if r.Specificity() < top {
			group = satisfied[:i]
			break
		}
	}

	e.mu.Lock()
	pick := group[e.rng.Intn(len(group))]
	e.mu.Unlock()

	text, err := e.render(pick, snap)
	if err != nil {
		log.Printf("[Rules] rule %d rejected: %v", pick.ID, err)
		return e.renderDefault(snap)
	}
	return Selection{RuleID: pick.ID, Text: text}, nil
}

func (e *Engine) renderDefault(snap Snapshot) (Selection, error) {
	def, _ := findRule(e.set.Rules, e.defaultID)
	text, err := e.render(def, snap)
	if err != nil {
		return Selection{}, fmt.Errorf("default rule %d failed to render: %w", def.ID, err)
	}
	return Selection{RuleID: def.ID, Text: text}, nil
}

var slotPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// render substitutes {slot} placeholders from the snapshot fields, rewriting
// each value through the synonym table. An absent slot is a hard failure.
func (e *Engine) render(r Rule, snap Snapshot) (string, error) {
	var missing string
	out := slotPattern.ReplaceAllStringFunc(r.Template, func(m string) string {
		slot := strings.Trim(m, "{}")
		v, ok := snap.Fields[slot]
		if !ok || v == nil || v == "" {
			if missing == "" {
				missing = slot
			}
			return m
		}
		s := fmt.Sprintf("%v", v)
		if syn, ok := e.set.Synonyms[s]; ok {
			return syn
		}
		return s
	})
	if missing != "" {
		return "", fmt.Errorf("slot %q absent from snapshot", missing)
	}
	return out, nil
}
