package schema

import "sort"

// MetaKeys lists the schema keywords copied onto namespace nodes as
// metadata at construction time.
var MetaKeys = []string{"type", "title", "description", "format", "unit", "enum"}

// Fragment is a resolved schema fragment: a JSON object with all $ref
// occurrences inlined and all allOf blocks flattened. Fragments are
// read-only after Load; accessors tolerate missing or mistyped keys and
// report absence rather than panicking.
type Fragment map[string]any

func (f Fragment) str(key string) string {
	s, _ := f[key].(string)
	return s
}

// Node returns the logical topic name declared by a top-level document.
func (f Fragment) Node() string { return f.str("node") }

// Type returns the declared JSON type ("object", "array", "number", ...).
func (f Fragment) Type() string { return f.str("type") }

// Title returns the title metadata field.
func (f Fragment) Title() string { return f.str("title") }

// Description returns the description metadata field.
func (f Fragment) Description() string { return f.str("description") }

// Format returns the format metadata field.
func (f Fragment) Format() string { return f.str("format") }

// Unit returns the unit metadata field.
func (f Fragment) Unit() string { return f.str("unit") }

// Enum returns the enum values, or nil when absent.
func (f Fragment) Enum() []any {
	e, _ := f["enum"].([]any)
	return e
}

// Meta returns the subset of f under MetaKeys.
func (f Fragment) Meta() map[string]any {
	m := make(map[string]any)
	for _, k := range MetaKeys {
		if v, ok := f[k]; ok {
			m[k] = v
		}
	}
	return m
}

func (f Fragment) fragmentMap(key string) map[string]Fragment {
	raw, ok := f[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]Fragment, len(raw))
	for k, v := range raw {
		if sub, ok := v.(map[string]any); ok {
			out[k] = Fragment(sub)
		}
	}
	return out
}

// Properties returns the explicit property schemas.
func (f Fragment) Properties() map[string]Fragment {
	return f.fragmentMap("properties")
}

// Property returns the schema for one explicitly declared property.
func (f Fragment) Property(name string) (Fragment, bool) {
	raw, ok := f["properties"].(map[string]any)
	if !ok {
		return nil, false
	}
	sub, ok := raw[name].(map[string]any)
	if !ok {
		return nil, false
	}
	return Fragment(sub), true
}

// PatternProperties returns the pattern-keyed property schemas.
func (f Fragment) PatternProperties() map[string]Fragment {
	return f.fragmentMap("patternProperties")
}

// PatternKeys returns the patternProperties keys in sorted order, so that
// pattern resolution is deterministic across runs.
func (f Fragment) PatternKeys() []string {
	pp, ok := f["patternProperties"].(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(pp))
	for k := range pp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f Fragment) stringList(key string) []string {
	raw, ok := f[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Required returns the required property names.
func (f Fragment) Required() []string { return f.stringList("required") }

// Initialize returns the property names to pre-populate at subscription
// time even when optional.
func (f Fragment) Initialize() []string { return f.stringList("initialize") }

// Items returns the element schema of an array fragment.
func (f Fragment) Items() (Fragment, bool) {
	sub, ok := f["items"].(map[string]any)
	if !ok {
		return nil, false
	}
	return Fragment(sub), true
}

func (f Fragment) fragmentList(key string) []Fragment {
	raw, ok := f[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Fragment, 0, len(raw))
	for _, v := range raw {
		if sub, ok := v.(map[string]any); ok {
			out = append(out, Fragment(sub))
		}
	}
	return out
}

// AnyOf returns the anyOf candidate branches in document order.
func (f Fragment) AnyOf() []Fragment { return f.fragmentList("anyOf") }

// OneOf returns the oneOf candidate branches in document order.
func (f Fragment) OneOf() []Fragment { return f.fragmentList("oneOf") }

// MinProperties returns the minProperties constraint, defaulting to 0.
func (f Fragment) MinProperties() int {
	if n, ok := f["minProperties"].(float64); ok {
		return int(n)
	}
	return 0
}

// MaxProperties returns the maxProperties constraint and whether it is set.
func (f Fragment) MaxProperties() (int, bool) {
	if n, ok := f["maxProperties"].(float64); ok {
		return int(n), true
	}
	return 0, false
}

// AdditionalProperties reports whether keys outside properties and
// patternProperties are allowed. Defaults to true when unset.
func (f Fragment) AdditionalProperties() bool {
	if b, ok := f["additionalProperties"].(bool); ok {
		return b
	}
	return true
}

// WithoutCombinator returns a copy of f without the given key. Used when a
// combinator branch has been selected and merged with its siblings.
func (f Fragment) WithoutCombinator(key string) Fragment {
	out := make(Fragment, len(f))
	for k, v := range f {
		if k != key {
			out[k] = v
		}
	}
	return out
}
