package schedcore

// eventBus holds every declared event name for a scheduler tree. Only a
// root scheduler owns one; every child forwards Declare/Connect/
// Disconnect/Signal/Delete to its root via Scheduler.eventRoot, so event
// storage lives in exactly one place regardless of how deep the
// scheduler hierarchy is. Disconnect identifies a subscription by an
// opaque SubscriptionID; Connect's duplicate check compares callbacks
// through callbackIdentity, since Go doesn't support == on func values.
type eventBus struct {
	reg       *registry
	nextSubID uint64
}

func newEventBus(maxTasks, freelistFloor int) *eventBus {
	return &eventBus{reg: newRegistry(maxTasks, freelistFloor, nil)}
}

// SubscriptionID identifies one Connect call, for use with Disconnect.
type SubscriptionID uint64

// eventRoot returns the scheduler that owns the shared event bus: s
// itself if s has no parent, otherwise its parent's eventRoot.
func (s *Scheduler) eventRoot() *Scheduler {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Declare registers a new named event on the scheduler tree's root. It
// returns ErrAlreadyExists if name is already declared anywhere in the
// tree (declarations are global to the tree, not per-scheduler).
func (s *Scheduler) Declare(name string) (TaskHandle, error) {
	if name == "" {
		return TaskHandle{}, ErrInvalidArgument
	}
	root := s.eventRoot()
	root.mu.Lock()
	defer root.mu.Unlock()
	slot, err := root.bus.reg.addEvent(root, name)
	if err != nil {
		return TaskHandle{}, err
	}
	return slot.t.self, nil
}

// Connect attaches cb/userCtx as a new subscriber of the named event,
// in call order: Signal fans out to subscribers in the order they
// connected. It returns a SubscriptionID for later use with Disconnect,
// ErrNotFound if name has not been declared, and ErrAlreadyExists if
// this exact (callback, userCtx) pair is already subscribed to name.
func (s *Scheduler) Connect(name string, cb Callback, userCtx any) (SubscriptionID, error) {
	if cb == nil {
		return 0, ErrInvalidArgument
	}
	root := s.eventRoot()
	root.mu.Lock()
	defer root.mu.Unlock()
	slot, ok := root.bus.reg.findEvent(name)
	if !ok {
		return 0, ErrNotFound
	}
	target := callbackIdentity(cb)
	for _, sub := range slot.t.subscriptions {
		if callbackIdentity(sub.callback) == target && sub.userCtx == userCtx {
			return 0, ErrAlreadyExists
		}
	}
	root.bus.nextSubID++
	id := SubscriptionID(root.bus.nextSubID)
	slot.t.subscriptions = append(slot.t.subscriptions, &subscription{
		id:       id,
		callback: cb,
		userCtx:  userCtx,
		origin:   s,
	})
	return id, nil
}

// Disconnect removes the subscription identified by id from name.
func (s *Scheduler) Disconnect(name string, id SubscriptionID) error {
	root := s.eventRoot()
	root.mu.Lock()
	defer root.mu.Unlock()
	slot, ok := root.bus.reg.findEvent(name)
	if !ok {
		return ErrNotFound
	}
	for i, sub := range slot.t.subscriptions {
		if sub.id == id {
			slot.t.subscriptions = append(slot.t.subscriptions[:i], slot.t.subscriptions[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Delete removes a declared event entirely, along with all of its
// subscriptions. name stops resolving for Connect/Signal immediately; a
// Signal already in flight for name observes the event is gone before
// its next subscriber and delivers to none of the remaining ones (see
// Signal below). The registry slot itself is reclaimed
// later, by a zero-delay timeout scheduled on the root, so the task
// handle an in-flight Signal is still holding stays valid for the
// remainder of that Signal call.
func (s *Scheduler) Delete(name string) error {
	root := s.eventRoot()
	root.mu.Lock()
	slot, ok := root.bus.reg.findEvent(name)
	if !ok {
		root.mu.Unlock()
		return ErrNotFound
	}
	h := slot.t.self
	slot.t.valid = false
	delete(root.bus.reg.eventIndex, name)
	root.mu.Unlock()

	_, err := root.AddTimeout(0, func(IOMask, any) bool {
		root.mu.Lock()
		rt, valid := root.bus.reg.invalidate(h)
		root.mu.Unlock()
		if valid && root.notify != nil {
			root.notify(rt.handle, rt.kind)
		}
		return true
	}, nil)
	return err
}

// Signal fans args out to every current subscriber of name, in
// insertion order. The subscriber list is snapshotted before the first
// callback runs, so a callback that Connects or Disconnects during the
// fan-out does not affect this Signal call's delivery list; it does
// stop delivery to not-yet-visited subscribers if the event is deleted
// mid-signal, or the moment a subscriber's callback returns false
// (vetoing the remainder of the fan-out). Each subscriber receives its
// own copy of the argument slice, so a callback mutating its args
// cannot affect its siblings.
func (s *Scheduler) Signal(name string, args ...any) error {
	root := s.eventRoot()
	root.mu.Lock()
	slot, ok := root.bus.reg.findEvent(name)
	if !ok {
		root.mu.Unlock()
		return ErrNotFound
	}
	subs := make([]*subscription, len(slot.t.subscriptions))
	copy(subs, slot.t.subscriptions)
	eventHandle := slot.t.self
	root.mu.Unlock()

	for _, sub := range subs {
		root.mu.Lock()
		evSlot, lookupErr := root.bus.reg.lookup(eventHandle)
		stillDeclared := lookupErr == nil && evSlot.t.valid
		appCtx := sub.origin.appCtx
		root.mu.Unlock()
		if !stillDeclared {
			break
		}
		cursor := make([]any, len(args))
		copy(cursor, args)
		delivery := eventDelivery{
			name:    name,
			args:    cursor,
			userCtx: sub.userCtx,
			origin:  sub.origin,
			appCtx:  appCtx,
		}
		if !sub.callback(IOInterrupt, delivery) {
			break
		}
	}
	return nil
}

// eventDelivery is the value schedcore passes as a Callback's userCtx
// argument for an event subscription: it carries the declared event's
// name, this delivery's private argument cursor, the subscribing
// scheduler and its application context, and the caller-supplied
// context from Connect.
type eventDelivery struct {
	name    string
	args    []any
	userCtx any
	origin  *Scheduler
	appCtx  any
}

// Name returns the event name this delivery fired for.
func (e eventDelivery) Name() string { return e.name }

// Args returns this delivery's private argument cursor. The caller may
// freely mutate the returned slice; it is never shared with other
// subscribers or with the Signal caller's own slice.
func (e eventDelivery) Args() []any { return e.args }

// UserContext returns the opaque context passed to Connect.
func (e eventDelivery) UserContext() any { return e.userCtx }

// Origin returns the scheduler Connect was called on for this
// subscription (its own scheduler for a root subscriber, or the child
// for a child subscriber sharing the root's event bus).
func (e eventDelivery) Origin() *Scheduler { return e.origin }

// AppContext returns the origin scheduler's application context, as
// supplied via WithAppContext.
func (e eventDelivery) AppContext() any { return e.appCtx }
