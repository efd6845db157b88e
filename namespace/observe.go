package namespace

import "context"

// Subscription is the handle returned by Bind. Keep it to Unbind the
// callback later; handles are compared by identity, so the same function
// can be bound more than once.
type Subscription struct {
	fn   func(*Node)
	pred func(*Node) bool
}

// waiter is a one-shot condition registered by Wait. Its predicate runs
// against a detached snapshot while the node lock is held, and its
// channel closes at most once.
type waiter struct {
	pred func(*Node) bool
	ch   chan struct{}
}

// Bind registers fn to run after every change to this node. An optional
// predicate gates the callback: it is evaluated against a detached
// snapshot of the changed node and fn runs only when it holds. Like
// Wait predicates it runs under the node lock, so it must not block and
// must not touch the live tree. With no predicate, every change fires.
// Callbacks fire on the goroutine
// applying the update, after all node locks have been released, so they
// may freely read the tree.
func (n *Node) Bind(fn func(*Node), pred ...func(*Node) bool) *Subscription {
	sub := &Subscription{fn: fn}
	if len(pred) > 0 {
		sub.pred = pred[0]
	}
	n.mu.Lock()
	n.observers = append(n.observers, sub)
	n.mu.Unlock()
	return sub
}

// Unbind removes a previously bound callback. Unbinding an unknown or
// already removed handle is a no-op.
func (n *Node) Unbind(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.observers {
		if s == sub {
			n.observers = append(n.observers[:i], n.observers[i+1:]...)
			return
		}
	}
}

// UnbindAll removes every callback bound to this node.
func (n *Node) UnbindAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = nil
}

// Wait blocks until pred holds for this node or ctx is done. The
// predicate is evaluated against detached snapshots, first immediately
// and then after each change, so it must not block and must not touch
// the live tree. Returns nil when the predicate was satisfied and
// ctx.Err() otherwise.
func (n *Node) Wait(ctx context.Context, pred func(*Node) bool) error {
	n.mu.Lock()
	if pred(n.copyLocked()) {
		n.mu.Unlock()
		return nil
	}
	w := &waiter{pred: pred, ch: make(chan struct{})}
	n.waiters = append(n.waiters, w)
	n.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		n.mu.Lock()
		for i, cand := range n.waiters {
			if cand == w {
				n.waiters = append(n.waiters[:i], n.waiters[i+1:]...)
				break
			}
		}
		n.mu.Unlock()
		// The waiter may have been satisfied while we raced the
		// deadline; a signalled wait still reports success.
		select {
		case <-w.ch:
			return nil
		default:
			return ctx.Err()
		}
	}
}

// notifyLocked is called with n.mu held after a merge changed this node.
// Waiter and observer predicates run now against a snapshot: satisfied
// waiters are signalled immediately, while passing observer callbacks
// are queued on the notifier to run once every lock is released.
func (n *Node) notifyLocked(nt *notifier) {
	var snapshot *Node
	snap := func() *Node {
		if snapshot == nil {
			snapshot = n.copyLocked()
		}
		return snapshot
	}

	if len(n.waiters) > 0 {
		remaining := n.waiters[:0]
		for _, w := range n.waiters {
			if w.pred(snap()) {
				close(w.ch)
				continue
			}
			remaining = append(remaining, w)
		}
		n.waiters = remaining
	}
	for _, sub := range n.observers {
		if sub.pred != nil && !sub.pred(snap()) {
			continue
		}
		fn := sub.fn
		nt.add(func() { fn(n) })
	}
}
