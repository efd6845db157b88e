package namespace

import (
	"fmt"
	"sort"

	"github.com/discos/statuskit/errors"
	"github.com/discos/statuskit/schema"
)

// Tree is the live cache for one topic. It owns the topic's merge lock:
// Apply serializes concurrent message arrivals for the topic while
// different topics merge independently. The merge lock is strictly outer
// to every node lock, so lock acquisition order is always "merge lock,
// then root-to-leaf along the touched path".
type Tree struct {
	topic   string
	root    *Node
	mergeMu chan struct{} // capacity-1 semaphore; held across Apply including deferred callbacks
}

// NewTree builds the eager tree for a topic from its resolved schema:
// every field named in required or initialize exists before any message
// arrives, with metadata copied from the schema and values absent.
func NewTree(topic string, frag schema.Fragment, matcher *schema.Matcher) *Tree {
	t := &Tree{
		topic:   topic,
		root:    buildNode(frag, matcher, true),
		mergeMu: make(chan struct{}, 1),
	}
	return t
}

// Topic returns the topic this tree caches.
func (t *Tree) Topic() string { return t.topic }

// Root returns the live root node.
func (t *Tree) Root() *Node { return t.root }

// Apply folds an incoming update into the tree in place and reports
// whether anything changed. Observer callbacks for every changed node
// fire on the calling goroutine after all node locks are released, while
// the merge lock is still held; waiters are signalled as each node
// changes.
func (t *Tree) Apply(update map[string]any) (bool, error) {
	t.mergeMu <- struct{}{}
	defer func() { <-t.mergeMu }()

	nt := &notifier{}
	changed, err := t.root.merge(update, nt)
	nt.fire()
	return changed, err
}

// notifier accumulates callback invocations during a merge so they run
// after every node lock has been released.
type notifier struct {
	pending []func()
}

func (nt *notifier) add(fn func()) { nt.pending = append(nt.pending, fn) }

func (nt *notifier) fire() {
	for _, fn := range nt.pending {
		fn()
	}
	nt.pending = nil
}

// merge folds update into the node. The node's kind never changes: a
// composite consumes mapping updates, an array consumes sequences, a
// leaf consumes scalars. An update deeply equal to current content
// returns changed=false without firing observers.
func (n *Node) merge(update any, nt *notifier) (bool, error) {
	n.mu.Lock()

	if n.equalsLocked(update) {
		n.mu.Unlock()
		return false, nil
	}

	var changed bool
	var err error
	switch n.kind {
	case KindComposite:
		changed, err = n.mergeCompositeLocked(update, nt)
	case KindArray:
		changed, err = n.mergeArrayLocked(update, nt)
	default:
		changed, err = n.mergeLeafLocked(update)
	}

	if changed {
		n.notifyLocked(nt)
	}
	n.mu.Unlock()
	return changed, err
}

func (n *Node) mergeCompositeLocked(update any, nt *notifier) (bool, error) {
	m, ok := update.(map[string]any)
	if !ok {
		return false, fmt.Errorf("%w: composite node got %T", errors.ErrShapeMismatch, update)
	}

	frag, err := n.effectiveSchemaLocked(m)
	if err != nil {
		return false, err
	}

	changed := false
	var firstErr error
	for _, key := range sortedKeys(m) {
		child, exists := n.children[key]
		if !exists {
			child = n.newChildLocked(frag, key, m[key])
			n.children[key] = child
			changed = true
		}
		childChanged, childErr := child.merge(m[key], nt)
		if childErr != nil && firstErr == nil {
			firstErr = childErr
		}
		changed = changed || childChanged
	}
	return changed, firstErr
}

func (n *Node) mergeArrayLocked(update any, nt *notifier) (bool, error) {
	s, ok := update.([]any)
	if !ok {
		return false, fmt.Errorf("%w: array node got %T", errors.ErrShapeMismatch, update)
	}

	if len(s) != len(n.elems) {
		// Full replacement: element node identities are not preserved
		// across a length change.
		var itemsFrag schema.Fragment
		if n.schema != nil {
			itemsFrag, _ = n.schema.Items()
		}
		elems := make([]*Node, len(s))
		var firstErr error
		for i, v := range s {
			var child *Node
			if itemsFrag != nil {
				child = buildNode(itemsFrag, n.matcher, true)
			} else {
				child = buildNodeForValue(v, n.matcher)
			}
			if _, err := child.merge(v, nt); err != nil && firstErr == nil {
				firstErr = err
			}
			elems[i] = child
		}
		n.elems = elems
		return true, firstErr
	}

	changed := false
	var firstErr error
	for i, v := range s {
		childChanged, err := n.elems[i].merge(v, nt)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		changed = changed || childChanged
	}
	return changed, firstErr
}

func (n *Node) mergeLeafLocked(update any) (bool, error) {
	switch update.(type) {
	case map[string]any, []any:
		return false, fmt.Errorf("%w: leaf node got %T", errors.ErrShapeMismatch, update)
	}
	if n.hasValue && n.value == update {
		return false, nil
	}
	n.value = update
	n.hasValue = true
	return true, nil
}

// effectiveSchemaLocked resolves the node's combinators against the
// update shape: anyOf selects the best scoring branch, oneOf demands
// exactly one survivor and surfaces ambiguity to the caller.
func (n *Node) effectiveSchemaLocked(update map[string]any) (schema.Fragment, error) {
	frag := n.schema
	if frag == nil || n.matcher == nil {
		return frag, nil
	}
	if len(frag.OneOf()) > 0 {
		selected, err := n.matcher.SelectOneOf(frag, update)
		if err != nil {
			return nil, err
		}
		return selected, nil
	}
	if len(frag.AnyOf()) > 0 {
		if selected, ok := n.matcher.SelectAnyOf(frag, update); ok {
			return selected, nil
		}
	}
	return frag, nil
}

// newChildLocked creates the node for a key first seen in an update. The
// child's fragment is resolved from the effective schema via explicit
// properties, then patternProperties, then each anyOf branch; with no
// match the child is untyped and takes its kind from the update value.
func (n *Node) newChildLocked(frag schema.Fragment, key string, value any) *Node {
	var sub schema.Fragment
	if frag != nil {
		if s, ok := frag.Property(key); ok {
			sub = s
		} else if n.matcher != nil {
			if s, ok := n.matcher.MatchKey(frag, key); ok {
				sub = s
			}
		}
		if sub == nil {
			sub = findPropertySchema(frag, key)
		}
	}
	if sub == nil {
		return buildNodeForValue(value, n.matcher)
	}
	return buildNode(sub, n.matcher, true)
}

// equalsLocked reports whether the update is deeply equal to current
// content, meaning a merge would change nothing.
func (n *Node) equalsLocked(update any) bool {
	switch n.kind {
	case KindComposite:
		m, ok := update.(map[string]any)
		if !ok {
			return false
		}
		for key, v := range m {
			child, exists := n.children[key]
			if !exists || !child.equals(v) {
				return false
			}
		}
		return true
	case KindArray:
		s, ok := update.([]any)
		if !ok || len(s) != len(n.elems) {
			return false
		}
		for i, v := range s {
			if !n.elems[i].equals(v) {
				return false
			}
		}
		return true
	default:
		switch update.(type) {
		case map[string]any, []any:
			return false
		}
		return n.hasValue && n.value == update
	}
}

func (n *Node) equals(update any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.equalsLocked(update)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic merge order keeps observer firing order stable.
	sort.Strings(keys)
	return keys
}
