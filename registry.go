package schedcore

// taskSlot is one entry in the registry's slab. The slot's position is
// its implicit index; generation increments every time the slot is
// freed and reused, which is what lets a stale TaskHandle be detected
// in O(1) without a second lookup.
//
// registry has no lock of its own: every method below assumes the
// caller already holds the owning Scheduler's single mutex. Callbacks
// are never invoked from here; loop.go and eventbus.go collect
// callbacks while the lock is held and invoke them only after releasing
// it.
type taskSlot struct {
	t          task
	generation uint32
	free       bool
}

// registry owns every task slot for one scheduler. eventIndex is filled
// only in the event bus's registry, which the root scheduler owns and
// child schedulers reach through their parent link (see
// Scheduler.eventRoot in eventbus.go).
type registry struct {
	slots    []taskSlot
	freeList []uint32

	fdIndex    map[uint64]uint32 // fd key -> slot index, this scheduler only
	eventIndex map[string]uint32 // event name -> slot index, root scheduler only

	live     int
	maxTasks int // 0 means unlimited

	freelistFloor int

	// timeouts is the owning scheduler's timeout list, or nil for a
	// registry that never holds KindTimeout tasks (the event bus's
	// registry). free uses it to unlink a freed timeout task so a stale
	// pointer never lingers in the list past the slot's lifetime.
	timeouts *timeoutQueue
}

func newRegistry(maxTasks int, freelistFloor int, timeouts *timeoutQueue) *registry {
	if freelistFloor < 0 {
		freelistFloor = defaultFreelistFloor
	}
	return &registry{
		fdIndex:       make(map[uint64]uint32),
		eventIndex:    make(map[string]uint32),
		maxTasks:      maxTasks,
		freelistFloor: freelistFloor,
		timeouts:      timeouts,
	}
}

// alloc reserves a slot, reusing one from the freelist when available.
func (r *registry) alloc() (*taskSlot, error) {
	if r.maxTasks > 0 && r.live >= r.maxTasks {
		return nil, ErrLimit
	}
	var idx uint32
	if n := len(r.freeList); n > 0 {
		idx = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
	} else {
		idx = uint32(len(r.slots))
		if int(idx) < cap(r.slots) {
			// Reuse a slot that sweep trimmed, keeping its generation so
			// a handle issued before the trim stays stale.
			r.slots = r.slots[:idx+1]
		} else {
			r.slots = append(r.slots, taskSlot{})
		}
	}
	slot := &r.slots[idx]
	slot.free = false
	slot.generation++
	slot.t = task{}
	slot.t.self = TaskHandle{index: idx + 1, generation: slot.generation}
	r.live++
	return slot, nil
}

// lookup resolves a handle to its slot, validating the generation.
func (r *registry) lookup(h TaskHandle) (*taskSlot, error) {
	if h.index == 0 || int(h.index) > len(r.slots) {
		return nil, ErrNotFound
	}
	slot := &r.slots[h.index-1]
	if slot.free || slot.generation != h.generation {
		return nil, ErrNotValid
	}
	return slot, nil
}

// slotFor returns the slot backing t. t must belong to this registry.
func (r *registry) slotFor(t *task) *taskSlot {
	return &r.slots[t.self.index-1]
}

// free releases slot back to the freelist, clearing any index entries
// it held. The notify observer, if any, must be invoked by the caller
// after the scheduler's lock is released.
func (r *registry) free(slot *taskSlot) {
	switch slot.t.kind {
	case KindFd:
		delete(r.fdIndex, slot.t.fdKey)
	case KindEvent:
		delete(r.eventIndex, slot.t.eventName)
	case KindTimeout:
		if r.timeouts != nil {
			r.timeouts.remove(&slot.t)
		}
	}
	idx := slot.t.self.index - 1
	slot.t = task{}
	slot.free = true
	r.freeList = append(r.freeList, idx)
	r.live--
}

// addFd registers a new fd task. Returns ErrAlreadyExists if key is
// already registered on this scheduler.
func (r *registry) addFd(s *Scheduler, key uint64, fd int, mask IOMask, cb Callback, userCtx any) (*taskSlot, error) {
	if _, exists := r.fdIndex[key]; exists {
		return nil, ErrAlreadyExists
	}
	slot, err := r.alloc()
	if err != nil {
		return nil, err
	}
	slot.t.kind = KindFd
	slot.t.valid = true
	slot.t.callback = cb
	slot.t.userCtx = userCtx
	slot.t.scheduler = s
	slot.t.fdKey = key
	slot.t.fd = fd
	slot.t.requestedMask = mask
	r.fdIndex[key] = slot.t.self.index - 1
	return slot, nil
}

// addTimeout registers a new timeout task. The caller is responsible
// for setting slot.t.deadline and linking it into the timeout queue.
func (r *registry) addTimeout(s *Scheduler, cb Callback, userCtx any) (*taskSlot, error) {
	slot, err := r.alloc()
	if err != nil {
		return nil, err
	}
	slot.t.kind = KindTimeout
	slot.t.valid = true
	slot.t.callback = cb
	slot.t.userCtx = userCtx
	slot.t.scheduler = s
	return slot, nil
}

// addEvent declares a new named event task. name must not already be
// declared on this registry.
func (r *registry) addEvent(s *Scheduler, name string) (*taskSlot, error) {
	if _, exists := r.eventIndex[name]; exists {
		return nil, ErrAlreadyExists
	}
	slot, err := r.alloc()
	if err != nil {
		return nil, err
	}
	slot.t.kind = KindEvent
	slot.t.valid = true
	slot.t.scheduler = s
	slot.t.eventName = name
	r.eventIndex[name] = slot.t.self.index - 1
	return slot, nil
}

// findEvent looks up the slot for a declared event name.
func (r *registry) findEvent(name string) (*taskSlot, bool) {
	idx, ok := r.eventIndex[name]
	if !ok {
		return nil, false
	}
	return &r.slots[idx], true
}

// findFd looks up the slot registered for an fd key.
func (r *registry) findFd(key uint64) (*taskSlot, bool) {
	idx, ok := r.fdIndex[key]
	if !ok {
		return nil, false
	}
	return &r.slots[idx], true
}

// invalidate clears and frees the slot for h. It reports a snapshot of
// the task (kind, and fdKey/fd if it was a KindFd task, so the caller
// can disarm the platform adapter after releasing the scheduler's
// lock) and true if h was valid at entry; the zero removedTask and
// false otherwise.
func (r *registry) invalidate(h TaskHandle) (removedTask, bool) {
	slot, err := r.lookup(h)
	if err != nil {
		return removedTask{}, false
	}
	rt := removedTask{handle: h, kind: slot.t.kind, fdKey: slot.t.fdKey, fd: slot.t.fd}
	r.free(slot)
	return rt, true
}

// removedTask snapshots the fields a caller needs after a task has
// been freed from the registry: its handle and kind for notification,
// and its fd-specific fields so a freed KindFd task can be disarmed
// from the platform adapter outside the scheduler's lock.
type removedTask struct {
	handle TaskHandle
	kind   Kind
	fdKey  uint64
	fd     int
}

// invalidateMatch removes every live task for which pred returns true
// and returns a snapshot of each, in slot order, for the caller to
// notify, disarm (if KindFd), and fire removal callbacks for once the
// lock is released. This backs
// InvalidateByFd/ByCallback/ByContext/RemoveAll.
func (r *registry) invalidateMatch(pred func(*task) bool) []removedTask {
	var removed []removedTask
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.free || !pred(&slot.t) {
			continue
		}
		removed = append(removed, removedTask{handle: slot.t.self, kind: slot.t.kind, fdKey: slot.t.fdKey, fd: slot.t.fd})
		r.free(slot)
	}
	return removed
}

// sweep trims the slab when the freelist exceeds the number of live
// tasks by more than floor. It then reclaims every trailing free slot,
// even if that leaves fewer than floor free entries. It only reclaims trailing free
// slots (those at the end of the backing array with no live slot
// after them); it never relocates a live slot, since a TaskHandle's
// index must remain a stable array position for the lifetime of the
// task. This means sweep does not defragment interior holes left by
// frees in the middle of the array, but those holes are already
// reused by future allocs via freeList, so they cost capacity, not
// correctness.
func (r *registry) sweep() {
	excess := len(r.freeList) - r.live
	if excess <= r.freelistFloor {
		return
	}
	trimmed := 0
	for len(r.slots) > 0 && r.slots[len(r.slots)-1].free {
		r.slots = r.slots[:len(r.slots)-1]
		trimmed++
	}
	if trimmed == 0 {
		return
	}
	newFreeList := r.freeList[:0]
	limit := uint32(len(r.slots))
	for _, idx := range r.freeList {
		if idx < limit {
			newFreeList = append(newFreeList, idx)
		}
	}
	r.freeList = newFreeList
}

// count returns the number of live tasks.
func (r *registry) count() int {
	return r.live
}
