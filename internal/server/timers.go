package server

import (
	"sync"
	"time"
)

const typingKind = "typing"

// timerKey identifies a single-shot timer owned by one connection.
type timerKey struct {
	room string
	kind string
}

func typingKey(roomId string) timerKey {
	return timerKey{room: roomId, kind: typingKind}
}

// timerRegistry holds the pending expiry timers owned by a single
// connection. At most one timer is live per key: scheduling under an
// existing key replaces the previous timer, so repeated typing_start
// events debounce rather than stack.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{
		timers: make(map[timerKey]*time.Timer),
	}
}

// schedule installs fn to run after d, cancelling any timer already
// registered under key. The fire path re-checks under lock that it is
// still the installed timer, so a callback racing with cancel or a
// replacement is a no-op rather than a double fire.
func (tr *timerRegistry) schedule(key timerKey, d time.Duration, fn func()) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if prev, ok := tr.timers[key]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		tr.mu.Lock()
		cur, ok := tr.timers[key]
		if !ok || cur != t {
			tr.mu.Unlock()
			return
		}
		delete(tr.timers, key)
		tr.mu.Unlock()

		fn()
	})

	tr.timers[key] = t
}

// cancel stops and removes the timer for key, reporting whether one was
// pending.
func (tr *timerRegistry) cancel(key timerKey) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.timers[key]
	if !ok {
		return false
	}

	t.Stop()
	delete(tr.timers, key)
	return true
}

// cancelAll stops every pending timer. Called from the disconnect path;
// timers concurrently firing lose the identity check and do nothing.
func (tr *timerRegistry) cancelAll() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for key, t := range tr.timers {
		t.Stop()
		delete(tr.timers, key)
	}
}

func (tr *timerRegistry) active() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return len(tr.timers)
}
