package tracker

import (
	"sync/atomic"

	"github.com/1broseidon/maxdesk/internal/platform"
)

// SharedDesktop shares one platform desktop handle between every record
// that lives on the same temporary desktop. The handle is released when the
// last reference goes away.
type SharedDesktop struct {
	handle platform.DesktopHandle
	refs   atomic.Int32
}

// Share wraps h with a single reference owned by the caller.
func Share(h platform.DesktopHandle) *SharedDesktop {
	s := &SharedDesktop{handle: h}
	s.refs.Store(1)
	return s
}

// Handle returns the underlying platform handle.
func (s *SharedDesktop) Handle() platform.DesktopHandle {
	return s.handle
}

// ID returns the desktop identity.
func (s *SharedDesktop) ID() platform.DesktopID {
	return s.handle.ID()
}

// Refs returns the current reference count.
func (s *SharedDesktop) Refs() int {
	return int(s.refs.Load())
}

// Acquire adds a reference.
func (s *SharedDesktop) Acquire() *SharedDesktop {
	s.refs.Add(1)
	return s
}

// Release drops a reference and releases the platform handle when it was
// the last one. It reports whether the handle was released.
func (s *SharedDesktop) Release() bool {
	if s == nil {
		return false
	}
	if s.refs.Add(-1) != 0 {
		return false
	}
	s.handle.Release()
	return true
}
