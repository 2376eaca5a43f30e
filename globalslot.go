package schedcore

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Go has no native goroutine-local storage, so the per-thread "global
// scheduler" slot is built directly on runtime.Stack: every goroutine's
// stack trace begins with "goroutine <id> [...]", which is parsed once
// per WithGlobal call to key a process-wide sync.Map. This trades a
// small amount of per-call overhead for not requiring callers to thread
// a context.Context solely to carry the ambient scheduler.
var globalSlots sync.Map // goroutine id (uint64) -> *Scheduler

// currentGoroutineID parses the numeric id out of this goroutine's own
// stack trace header.
func currentGoroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	const prefix = "goroutine "
	buf = bytes.TrimPrefix(buf, []byte(prefix))
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

// WithGlobal runs fn with s installed as the calling goroutine's global
// scheduler, restoring whatever was previously installed (possibly
// nothing) before returning. It is safe to nest.
func WithGlobal(s *Scheduler, fn func()) {
	key := currentGoroutineID()
	prev, had := globalSlots.Load(key)
	globalSlots.Store(key, s)
	defer func() {
		if had {
			globalSlots.Store(key, prev)
		} else {
			globalSlots.Delete(key)
		}
	}()
	fn()
}

// Global returns the scheduler installed for the calling goroutine by
// an enclosing WithGlobal call, or nil if none is installed.
func Global() *Scheduler {
	v, ok := globalSlots.Load(currentGoroutineID())
	if !ok {
		return nil
	}
	return v.(*Scheduler)
}
