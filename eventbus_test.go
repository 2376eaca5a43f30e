package schedcore

import (
	"errors"
	"testing"
)

func TestSignalFansOutInConnectOrder(t *testing.T) {
	s, _ := newTestScheduler(t)

	if _, err := s.Declare("tick"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		if _, err := s.Connect("tick", func(IOMask, any) bool {
			order = append(order, i)
			return true
		}, nil); err != nil {
			t.Fatalf("Connect %d: %v", i, err)
		}
	}

	if err := s.Signal("tick"); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("want fan-out order [1 2 3], got %v", order)
	}
}

func TestSignalDeliversArgsAndUserContext(t *testing.T) {
	s, _ := newTestScheduler(t)

	if _, err := s.Declare("greet"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	type ctx struct{ label string }
	var gotName string
	var gotArgs []any
	var gotCtx *ctx
	if _, err := s.Connect("greet", func(_ IOMask, v any) bool {
		d := v.(eventDelivery)
		gotName = d.Name()
		gotArgs = d.Args()
		gotCtx, _ = d.UserContext().(*ctx)
		return true
	}, &ctx{label: "sub"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.Signal("greet", "hello", 42); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if gotName != "greet" {
		t.Errorf("Name() = %q, want greet", gotName)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "hello" || gotArgs[1] != 42 {
		t.Errorf("Args() = %v, want [hello 42]", gotArgs)
	}
	if gotCtx == nil || gotCtx.label != "sub" {
		t.Errorf("UserContext() = %#v, want &ctx{label: sub}", gotCtx)
	}
}

func TestSignalSnapshotsSubscribersBeforeFirstCallback(t *testing.T) {
	// A subscriber that connects a new listener from inside its own
	// callback must not have that new listener invoked during the same
	// Signal call: the delivery list is fixed at Signal's entry.
	s, _ := newTestScheduler(t)

	if _, err := s.Declare("tick"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	lateFired := false
	if _, err := s.Connect("tick", func(IOMask, any) bool {
		if _, err := s.Connect("tick", func(IOMask, any) bool {
			lateFired = true
			return true
		}, nil); err != nil {
			t.Fatalf("Connect from callback: %v", err)
		}
		return true
	}, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.Signal("tick"); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if lateFired {
		t.Error("a subscriber added during Signal's fan-out must not run in that same Signal call")
	}

	// The late subscriber is live for the *next* Signal.
	if err := s.Signal("tick"); err != nil {
		t.Fatalf("second Signal: %v", err)
	}
	if !lateFired {
		t.Error("subscriber added during the first Signal should fire on the second Signal")
	}
}

func TestDisconnectDuringFanOutDoesNotAffectInFlightSignal(t *testing.T) {
	// A subscriber that disconnects another not-yet-visited subscriber
	// must not veto that subscriber's delivery for the in-flight Signal
	// call: the delivery list was already snapshotted.
	s, _ := newTestScheduler(t)

	if _, err := s.Declare("tick"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	thirdFired := false
	var thirdID SubscriptionID
	if _, err := s.Connect("tick", func(IOMask, any) bool {
		if err := s.Disconnect("tick", thirdID); err != nil {
			t.Fatalf("Disconnect: %v", err)
		}
		return true
	}, nil); err != nil {
		t.Fatalf("Connect 1: %v", err)
	}
	if _, err := s.Connect("tick", func(IOMask, any) bool { return true }, nil); err != nil {
		t.Fatalf("Connect 2: %v", err)
	}
	id, err := s.Connect("tick", func(IOMask, any) bool {
		thirdFired = true
		return true
	}, nil)
	if err != nil {
		t.Fatalf("Connect 3: %v", err)
	}
	thirdID = id

	if err := s.Signal("tick"); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if !thirdFired {
		t.Error("subscriber disconnected mid-fan-out by an earlier subscriber should still receive this Signal call")
	}

	// But the disconnect itself did take effect for the next Signal.
	thirdFired = false
	if err := s.Signal("tick"); err != nil {
		t.Fatalf("second Signal: %v", err)
	}
	if thirdFired {
		t.Error("disconnected subscriber should not fire on a later Signal")
	}
}

func TestDeleteMidSignalStopsRemainingDelivery(t *testing.T) {
	s, _ := newTestScheduler(t)

	if _, err := s.Declare("tick"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	var fired []int
	if _, err := s.Connect("tick", func(IOMask, any) bool {
		fired = append(fired, 1)
		if err := s.Delete("tick"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		return true
	}, nil); err != nil {
		t.Fatalf("Connect 1: %v", err)
	}
	if _, err := s.Connect("tick", func(IOMask, any) bool {
		fired = append(fired, 2)
		return true
	}, nil); err != nil {
		t.Fatalf("Connect 2: %v", err)
	}

	if err := s.Signal("tick"); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if len(fired) != 1 || fired[0] != 1 {
		t.Errorf("want only the first subscriber to fire before the mid-signal Delete, got %v", fired)
	}

	// The event is gone: Signal/Connect against it now fail.
	if err := s.Signal("tick"); err == nil {
		t.Error("Signal after Delete should fail, got nil")
	}
}

func TestDeclareDuplicateNameRejected(t *testing.T) {
	s, _ := newTestScheduler(t)

	if _, err := s.Declare("dup"); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if _, err := s.Declare("dup"); err == nil {
		t.Error("second Declare of the same name should fail")
	}
}

func TestConnectUnknownEventReturnsErrNotFound(t *testing.T) {
	s, _ := newTestScheduler(t)

	if _, err := s.Connect("missing", func(IOMask, any) bool { return true }, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestConnectDuplicateCallbackContextPairRejected(t *testing.T) {
	s, _ := newTestScheduler(t)

	if _, err := s.Declare("tick"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	cb := func(IOMask, any) bool { return true }
	ctxA, ctxB := "a", "b"

	if _, err := s.Connect("tick", cb, ctxA); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if _, err := s.Connect("tick", cb, ctxA); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate (callback, context) Connect: want ErrAlreadyExists, got %v", err)
	}
	// Same callback, different context is not a duplicate.
	if _, err := s.Connect("tick", cb, ctxB); err != nil {
		t.Errorf("Connect with same callback but different context: want nil, got %v", err)
	}
}

func TestSignalVetoStopsRemainingFanOut(t *testing.T) {
	s, _ := newTestScheduler(t)

	if _, err := s.Declare("tick"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	var fired []int
	if _, err := s.Connect("tick", func(IOMask, any) bool {
		fired = append(fired, 1)
		return true
	}, nil); err != nil {
		t.Fatalf("Connect 1: %v", err)
	}
	if _, err := s.Connect("tick", func(IOMask, any) bool {
		fired = append(fired, 2)
		return false
	}, nil); err != nil {
		t.Fatalf("Connect 2: %v", err)
	}
	if _, err := s.Connect("tick", func(IOMask, any) bool {
		fired = append(fired, 3)
		return true
	}, nil); err != nil {
		t.Fatalf("Connect 3: %v", err)
	}

	if err := s.Signal("tick"); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if len(fired) != 2 || fired[0] != 1 || fired[1] != 2 {
		t.Errorf("want fan-out to stop at the vetoing subscriber, got %v", fired)
	}
}

func TestSignalDeliversOriginAndAppContext(t *testing.T) {
	s, _ := newTestScheduler(t, WithAppContext("root-ctx"))

	if _, err := s.Declare("tick"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	var gotOrigin *Scheduler
	var gotAppCtx any
	if _, err := s.Connect("tick", func(_ IOMask, v any) bool {
		d := v.(eventDelivery)
		gotOrigin = d.Origin()
		gotAppCtx = d.AppContext()
		return true
	}, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.Signal("tick"); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if gotOrigin != s {
		t.Errorf("Origin() = %p, want %p", gotOrigin, s)
	}
	if gotAppCtx != "root-ctx" {
		t.Errorf("AppContext() = %#v, want root-ctx", gotAppCtx)
	}
}
