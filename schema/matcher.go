package schema

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/discos/statuskit/errors"
)

// Matcher evaluates schema combinators against concrete message shapes.
// It owns a cache of compiled patternProperties expressions so each
// distinct pattern is compiled once and reused across merges.
type Matcher struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewMatcher returns an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{patterns: make(map[string]*regexp.Regexp)}
}

// precompile walks a resolved document and compiles every pattern it
// declares. Called once per document at load time.
func (m *Matcher) precompile(frag Fragment) {
	stack := []any{map[string]any(frag)}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch v := cur.(type) {
		case map[string]any:
			if pp, ok := v["patternProperties"].(map[string]any); ok {
				for pat := range pp {
					m.pattern(pat)
				}
			}
			for _, val := range v {
				switch val.(type) {
				case map[string]any, []any:
					stack = append(stack, val)
				}
			}
		case []any:
			for _, item := range v {
				switch item.(type) {
				case map[string]any, []any:
					stack = append(stack, item)
				}
			}
		}
	}
}

// pattern returns the compiled, fully anchored regexp for a pattern,
// compiling and caching it on first use. Invalid patterns compile to nil
// and never match.
func (m *Matcher) pattern(pat string) *regexp.Regexp {
	m.mu.RLock()
	rx, ok := m.patterns[pat]
	m.mu.RUnlock()
	if ok {
		return rx
	}

	compiled, err := regexp.Compile("^(?:" + pat + ")$")
	if err != nil {
		compiled = nil
	}

	m.mu.Lock()
	m.patterns[pat] = compiled
	m.mu.Unlock()
	return compiled
}

// matchesPattern reports whether key fully matches the pattern.
func (m *Matcher) matchesPattern(pat, key string) bool {
	rx := m.pattern(pat)
	return rx != nil && rx.MatchString(key)
}

// MatchKey returns the property schema selected by the first (in sorted
// pattern order) patternProperties entry whose pattern fully matches key.
func (m *Matcher) MatchKey(frag Fragment, key string) (Fragment, bool) {
	pp := frag.PatternProperties()
	if len(pp) == 0 {
		return nil, false
	}
	for _, pat := range frag.PatternKeys() {
		if m.matchesPattern(pat, key) {
			return pp[pat], true
		}
	}
	return nil, false
}

// SelectAnyOf picks the best matching anyOf branch for a data shape. The
// winning branch is merged with the fragment's sibling keys (siblings
// override branch keys). Returns false when the fragment has no anyOf or
// no branch survives elimination.
func (m *Matcher) SelectAnyOf(frag Fragment, data map[string]any) (Fragment, bool) {
	candidates := frag.AnyOf()
	if len(candidates) == 0 {
		return nil, false
	}

	bestScore := -1
	var best Fragment
	for _, candidate := range candidates {
		score, ok := m.score(candidate, data)
		if ok && score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	if best == nil {
		return nil, false
	}
	return mergeBranch(best, frag, "anyOf"), true
}

// SelectOneOf validates that exactly one oneOf branch survives
// elimination for the data shape and returns it merged with the
// fragment's sibling keys. Zero or multiple surviving branches are
// reported as errors.
func (m *Matcher) SelectOneOf(frag Fragment, data map[string]any) (Fragment, error) {
	candidates := frag.OneOf()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: fragment has no oneOf", errors.ErrOneOfUnsatisfied)
	}

	var selected Fragment
	matches := 0
	for _, candidate := range candidates {
		if _, ok := m.score(candidate, data); ok {
			matches++
			if selected == nil {
				selected = candidate
			}
		}
	}
	switch matches {
	case 0:
		return nil, errors.ErrOneOfUnsatisfied
	case 1:
		return mergeBranch(selected, frag, "oneOf"), nil
	default:
		return nil, fmt.Errorf("%w: %d branches match", errors.ErrOneOfAmbiguous, matches)
	}
}

// score rates how well a candidate branch fits the data shape. The second
// return value is false when the candidate is eliminated: key count
// outside [minProperties, maxProperties], a key that is neither an
// explicit property nor a pattern match while additionalProperties is
// false, or a missing required key. Surviving candidates score one point
// per data key matching an explicit property plus one per data key
// matching a pattern.
func (m *Matcher) score(candidate Fragment, data map[string]any) (int, bool) {
	if len(data) < candidate.MinProperties() {
		return 0, false
	}
	if maxP, ok := candidate.MaxProperties(); ok && len(data) > maxP {
		return 0, false
	}

	props := candidate.Properties()
	patterns := candidate.PatternKeys()

	if !candidate.AdditionalProperties() {
		for key := range data {
			if _, ok := props[key]; ok {
				continue
			}
			matched := false
			for _, pat := range patterns {
				if m.matchesPattern(pat, key) {
					matched = true
					break
				}
			}
			if !matched {
				return 0, false
			}
		}
	}

	for _, req := range candidate.Required() {
		if _, ok := data[req]; !ok {
			return 0, false
		}
	}

	score := 0
	for key := range data {
		if _, ok := props[key]; ok {
			score++
		}
		for _, pat := range patterns {
			if m.matchesPattern(pat, key) {
				score++
			}
		}
	}
	return score, true
}

// mergeBranch overlays the parent's sibling keys (everything except the
// combinator itself) on top of the selected branch.
func mergeBranch(branch, parent Fragment, combinator string) Fragment {
	siblings := parent.WithoutCombinator(combinator)
	out := make(Fragment, len(branch)+len(siblings))
	for k, v := range branch {
		out[k] = v
	}
	for k, v := range siblings {
		out[k] = v
	}
	return out
}
