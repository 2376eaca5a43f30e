package schedcore

import "time"

// timeoutQueue is a sorted singly-linked list of timeout tasks, ordered
// ascending by deadline. Insertion and removal of an arbitrary node are
// O(n) from head; removing the head and the earliest-deadline lookup are
// both O(1).
type timeoutQueue struct {
	head *task
}

// insert links slot into the queue in sorted-deadline order.
func (q *timeoutQueue) insert(slot *task) {
	if q.head == nil || slot.deadline.Before(q.head.deadline) {
		slot.next = q.head
		q.head = slot
		return
	}
	cur := q.head
	for cur.next != nil && !slot.deadline.Before(cur.next.deadline) {
		cur = cur.next
	}
	slot.next = cur.next
	cur.next = slot
}

// remove unlinks slot from the queue. It is a no-op if slot is not
// present (already fired/removed).
func (q *timeoutQueue) remove(slot *task) {
	if q.head == slot {
		q.head = slot.next
		slot.next = nil
		return
	}
	cur := q.head
	for cur != nil && cur.next != slot {
		cur = cur.next
	}
	if cur != nil {
		cur.next = slot.next
		slot.next = nil
	}
}

// nextDeadline reports the earliest deadline in the queue, or the zero
// Time and false if the queue is empty.
func (q *timeoutQueue) nextDeadline() (time.Time, bool) {
	if q.head == nil {
		return time.Time{}, false
	}
	return q.head.deadline, true
}

// dispatchTimeouts fires every expired task's callback in deadline
// order, stopping after maxTimeoutDispatchPerPass dispatches unless all
// is true (used only once Stop has been called, for the shutdown drain).
// It returns the number of callbacks dispatched.
//
// Each expired task is popped and fired one at a time: the lock is
// re-acquired fresh for every iteration, re-peeking the queue head
// rather than working from a snapshot taken before any callback ran.
// This way a callback that invalidates a sibling task already past its
// deadline simply finds that sibling gone from the queue (removed via
// its own Invalidate) on the next peek, instead of it firing anyway
// from a stale snapshot.
func (s *Scheduler) dispatchTimeouts(now time.Time, all bool) int {
	dispatched := 0
	for all || dispatched < s.maxTimeoutDispatchPerPass {
		s.mu.Lock()
		cur := s.timeouts.head
		if cur == nil || cur.deadline.After(now) {
			s.mu.Unlock()
			break
		}
		handle, cb, userCtx := cur.self, cur.callback, cur.userCtx
		s.timeouts.remove(cur)
		s.registry.free(s.registry.slotFor(cur))
		s.mu.Unlock()

		dispatched++
		if s.notify != nil {
			s.notify(handle, KindTimeout)
		}
		if cb != nil {
			cb(IOExpire, userCtx)
		}
	}
	return dispatched
}
