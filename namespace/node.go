package namespace

import (
	"math"
	"sort"
	"sync"

	"github.com/discos/statuskit/errors"
	"github.com/discos/statuskit/schema"
)

// Kind identifies the shape of a Node. It is fixed at construction and
// never changes across merges.
type Kind int

const (
	// KindLeaf holds a primitive value (string, number, bool or null).
	KindLeaf Kind = iota
	// KindComposite maps field names to child nodes.
	KindComposite
	// KindArray holds an ordered sequence of child nodes.
	KindArray
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindComposite:
		return "composite"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Metadata carries the schema annotations copied onto a node at
// construction time.
type Metadata struct {
	Type        string
	Title       string
	Description string
	Format      string
	Unit        string
	Enum        []any
}

// Node is one element of the live cache tree. Its public surface is
// read-only: all accessors take the node's own lock and return copies or
// child handles. Mutation happens only through (*Tree).Apply on the
// owning tree.
type Node struct {
	mu sync.Mutex

	kind    Kind
	meta    Metadata
	schema  schema.Fragment
	matcher *schema.Matcher

	hasValue bool
	value    any
	children map[string]*Node
	elems    []*Node

	observers []*Subscription
	waiters   []*waiter
}

func kindFor(typ string) Kind {
	switch typ {
	case "object":
		return KindComposite
	case "array":
		return KindArray
	default:
		return KindLeaf
	}
}

func kindForValue(v any) Kind {
	switch v.(type) {
	case map[string]any:
		return KindComposite
	case []any:
		return KindArray
	default:
		return KindLeaf
	}
}

func metaFrom(frag schema.Fragment) Metadata {
	if frag == nil {
		return Metadata{}
	}
	return Metadata{
		Type:        frag.Type(),
		Title:       frag.Title(),
		Description: frag.Description(),
		Format:      frag.Format(),
		Unit:        frag.Unit(),
		Enum:        frag.Enum(),
	}
}

// buildNode constructs a node for a schema fragment. When eager is true,
// composite nodes pre-populate every field named in required or
// initialize, recursively, with absent values.
func buildNode(frag schema.Fragment, matcher *schema.Matcher, eager bool) *Node {
	kind := KindLeaf
	if frag != nil {
		kind = kindFor(frag.Type())
	}
	n := &Node{
		kind:    kind,
		meta:    metaFrom(frag),
		schema:  frag,
		matcher: matcher,
	}
	switch kind {
	case KindComposite:
		n.children = make(map[string]*Node)
		if eager && frag != nil {
			for _, key := range eagerFields(frag) {
				sub := findPropertySchema(frag, key)
				n.children[key] = buildNode(sub, matcher, true)
			}
		}
	case KindArray:
		n.elems = []*Node{}
	}
	return n
}

// buildNodeForValue constructs a node for an update value that carries no
// schema fragment. The kind is taken from the value's shape.
func buildNodeForValue(v any, matcher *schema.Matcher) *Node {
	n := &Node{kind: kindForValue(v), matcher: matcher}
	switch n.kind {
	case KindComposite:
		n.children = make(map[string]*Node)
	case KindArray:
		n.elems = []*Node{}
	}
	return n
}

// eagerFields returns the union of required and initialize, sorted.
func eagerFields(frag schema.Fragment) []string {
	set := make(map[string]bool)
	for _, k := range frag.Required() {
		set[k] = true
	}
	for _, k := range frag.Initialize() {
		set[k] = true
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// findPropertySchema locates the fragment for a named property, looking
// first in properties, then inside each anyOf branch.
func findPropertySchema(frag schema.Fragment, key string) schema.Fragment {
	if frag == nil {
		return nil
	}
	if sub, ok := frag.Property(key); ok {
		return sub
	}
	for _, candidate := range frag.AnyOf() {
		if sub, ok := candidate.Property(key); ok {
			return sub
		}
	}
	return nil
}

// Kind returns the node's shape.
func (n *Node) Kind() Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.kind
}

// Meta returns a copy of the node's schema metadata.
func (n *Node) Meta() Metadata {
	n.mu.Lock()
	defer n.mu.Unlock()
	meta := n.meta
	if meta.Enum != nil {
		meta.Enum = append([]any(nil), meta.Enum...)
	}
	return meta
}

// HasValue reports whether a leaf node has received a value. An explicit
// JSON null counts as a value; a field created eagerly from the schema
// before any message does not.
func (n *Node) HasValue() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hasValue
}

// Value returns the leaf's primitive value, which is nil when the value
// is absent or an explicit null. Use HasValue to distinguish the two.
func (n *Node) Value() any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value
}

// AsString returns the leaf's value as a string.
func (n *Node) AsString() (string, error) {
	v, err := n.primitive()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.ErrWrongType
	}
	return s, nil
}

// AsFloat returns the leaf's value as a float64.
func (n *Node) AsFloat() (float64, error) {
	v, err := n.primitive()
	if err != nil {
		return 0, err
	}
	switch num := v.(type) {
	case float64:
		return num, nil
	case int:
		return float64(num), nil
	case int64:
		return float64(num), nil
	default:
		return 0, errors.ErrWrongType
	}
}

// AsInt returns the leaf's value as an int64. Non-integral numbers are
// rejected with ErrWrongType.
func (n *Node) AsInt() (int64, error) {
	v, err := n.primitive()
	if err != nil {
		return 0, err
	}
	switch num := v.(type) {
	case float64:
		if num != math.Trunc(num) {
			return 0, errors.ErrWrongType
		}
		return int64(num), nil
	case int:
		return int64(num), nil
	case int64:
		return num, nil
	default:
		return 0, errors.ErrWrongType
	}
}

// AsBool returns the leaf's value as a bool.
func (n *Node) AsBool() (bool, error) {
	v, err := n.primitive()
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.ErrWrongType
	}
	return b, nil
}

func (n *Node) primitive() (any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.kind != KindLeaf {
		return nil, errors.ErrNotPrimitive
	}
	if !n.hasValue {
		return nil, errors.ErrNoValue
	}
	return n.value, nil
}

// Child returns the named child of a composite node.
func (n *Node) Child(name string) (*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	child, ok := n.children[name]
	return child, ok
}

// Fields returns a composite node's field names, sorted.
func (n *Node) Fields() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.children))
	for name := range n.children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the element count of an array node, zero otherwise.
func (n *Node) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.elems)
}

// At returns the i-th element of an array node.
func (n *Node) At(i int) (*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if i < 0 || i >= len(n.elems) {
		return nil, false
	}
	return n.elems[i], true
}

// Copy returns a deep, detached copy of the node: fresh locks, no
// observers. The copy is a consistent snapshot of the subtree, taken
// root-to-leaf under each node's own lock.
func (n *Node) Copy() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.copyLocked()
}

func (n *Node) copyLocked() *Node {
	out := &Node{
		kind:     n.kind,
		meta:     n.meta,
		schema:   n.schema,
		matcher:  n.matcher,
		hasValue: n.hasValue,
		value:    n.value,
	}
	if n.meta.Enum != nil {
		out.meta.Enum = append([]any(nil), n.meta.Enum...)
	}
	if n.children != nil {
		out.children = make(map[string]*Node, len(n.children))
		for name, child := range n.children {
			out.children[name] = child.Copy()
		}
	}
	if n.elems != nil {
		out.elems = make([]*Node, len(n.elems))
		for i, child := range n.elems {
			out.elems[i] = child.Copy()
		}
	}
	return out
}
