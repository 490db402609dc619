package platform

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures.
type ErrorKind int

const (
	KindPlatform ErrorKind = iota
	KindInvalidHandle
	KindNotFound
	KindNoView
	KindUnavailable
)

var (
	ErrPlatform      = errors.New("platform call failed")
	ErrInvalidHandle = errors.New("invalid handle")
	ErrNotFound      = errors.New("desktop not found")
	ErrNoView        = errors.New("window has no movable view")
	ErrUnavailable   = errors.New("desktop service unavailable")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidHandle:
		return ErrInvalidHandle
	case KindNotFound:
		return ErrNotFound
	case KindNoView:
		return ErrNoView
	case KindUnavailable:
		return ErrUnavailable
	default:
		return ErrPlatform
	}
}

// Error is the only error shape that crosses the adapter boundary.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind.sentinel(), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind.sentinel())
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// Fail builds an adapter error.
func Fail(op string, kind ErrorKind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// IsGone reports whether err means the referenced window or desktop no
// longer exists.
func IsGone(err error) bool {
	return errors.Is(err, ErrInvalidHandle) || errors.Is(err, ErrNotFound)
}
