// Package wakeful runs commands in the background while holding a
// reference-counted lock that keeps the host awake until the work is done.
package wakeful

import (
	"sync"
)

// Lock is a reference-counted hold on the host staying awake
type Lock interface {
	Acquire()
	Release()
	Held() bool
}

// LockOption configures a RefCountedLock
type LockOption func(*RefCountedLock)

// WithOnHeld sets a callback invoked when the count goes from zero to one
func WithOnHeld(fn func()) LockOption {
	return func(l *RefCountedLock) { l.onHeld = fn }
}

// WithOnReleased sets a callback invoked when the count drops back to zero
func WithOnReleased(fn func()) LockOption {
	return func(l *RefCountedLock) { l.onReleased = fn }
}

// RefCountedLock counts acquisitions. It is held while the count is positive.
type RefCountedLock struct {
	mu         sync.Mutex
	count      int
	onHeld     func()
	onReleased func()
}

func NewRefCountedLock(opts ...LockOption) *RefCountedLock {
	l := &RefCountedLock{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RefCountedLock) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	if l.count == 1 && l.onHeld != nil {
		l.onHeld()
	}
}

// Release drops one acquisition. Releasing an unheld lock is a no-op.
func (l *RefCountedLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return
	}
	l.count--
	if l.count == 0 && l.onReleased != nil {
		l.onReleased()
	}
}

func (l *RefCountedLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count > 0
}

// Count returns the number of outstanding acquisitions
func (l *RefCountedLock) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
