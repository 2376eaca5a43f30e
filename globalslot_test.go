package schedcore

import "testing"

func TestGlobalNilOutsideWithGlobal(t *testing.T) {
	if got := Global(); got != nil {
		t.Errorf("Global() outside any WithGlobal call = %v, want nil", got)
	}
}

func TestWithGlobalInstallsAndRestores(t *testing.T) {
	a := newFakeAdapter()
	s, err := New(WithAdapter(a), WithSignalAdapter(newFakeSignalAdapter()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { stopAndClose(t, s) })

	var observed *Scheduler
	WithGlobal(s, func() {
		observed = Global()
	})
	if observed != s {
		t.Errorf("Global() inside WithGlobal = %v, want %v", observed, s)
	}
	if got := Global(); got != nil {
		t.Errorf("Global() after WithGlobal returns = %v, want nil", got)
	}
}

func TestWithGlobalNests(t *testing.T) {
	outer, err := New(WithAdapter(newFakeAdapter()), WithSignalAdapter(newFakeSignalAdapter()))
	if err != nil {
		t.Fatalf("New outer: %v", err)
	}
	t.Cleanup(func() { stopAndClose(t, outer) })
	inner, err := New(WithAdapter(newFakeAdapter()), WithSignalAdapter(newFakeSignalAdapter()))
	if err != nil {
		t.Fatalf("New inner: %v", err)
	}
	t.Cleanup(func() { stopAndClose(t, inner) })

	WithGlobal(outer, func() {
		if Global() != outer {
			t.Errorf("Global() = %v, want outer", Global())
		}
		WithGlobal(inner, func() {
			if Global() != inner {
				t.Errorf("Global() = %v, want inner", Global())
			}
		})
		if Global() != outer {
			t.Errorf("Global() after inner WithGlobal returns = %v, want outer restored", Global())
		}
	})
	if Global() != nil {
		t.Errorf("Global() after outer WithGlobal returns = %v, want nil", Global())
	}
}
