package retryclient

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultToastDuration is how long a notification stays up unless dismissed.
const DefaultToastDuration = 5 * time.Second

// Toast is a single user-facing "slowing down" notification shared by every
// in-flight retry. While it is active, further Show calls are ignored.
type Toast struct {
	active   atomic.Bool
	duration time.Duration
	onShow   func(wait time.Duration)
	onHide   func()

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
}

type ToastOption func(*Toast)

// WithDuration sets the auto-close delay.
func WithDuration(d time.Duration) ToastOption {
	return func(t *Toast) {
		if d > 0 {
			t.duration = d
		}
	}
}

// WithOnHide is called once when an active notification closes.
func WithOnHide(fn func()) ToastOption {
	return func(t *Toast) {
		t.onHide = fn
	}
}

// NewToast calls onShow whenever a notification actually opens.
func NewToast(onShow func(wait time.Duration), opts ...ToastOption) *Toast {
	t := &Toast{duration: DefaultToastDuration, onShow: onShow}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Show opens the notification unless one is already open. It reports whether
// this call opened it.
func (t *Toast) Show(wait time.Duration) bool {
	t.mu.Lock()
	if !t.active.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return false
	}
	t.generation++
	gen := t.generation
	t.timer = time.AfterFunc(t.duration, func() { t.close(gen) })
	t.mu.Unlock()

	if t.onShow != nil {
		t.onShow(wait)
	}
	return true
}

// Dismiss closes the notification. Closing an inactive toast is a no-op.
func (t *Toast) Dismiss() {
	t.mu.Lock()
	gen := t.generation
	t.mu.Unlock()
	t.close(gen)
}

// close ends notification gen; a stale auto-close timer must not end a newer one.
func (t *Toast) close(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || !t.active.CompareAndSwap(true, false) {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if t.onHide != nil {
		t.onHide()
	}
}

func (t *Toast) Active() bool {
	return t.active.Load()
}
