// Package storage defines the asynchronous flash key-value backend the
// configuration store runs on, with an in-memory implementation for tests and
// development and a log-structured file implementation for hosts.
package storage

import (
	"errors"
	"fmt"
)

// Namespace groups records, like a flash data storage file id.
type Namespace uint16

// Key addresses a record inside a namespace.
type Key uint16

// Descriptor identifies the current version of a record.
type Descriptor struct {
	ID        uint32
	Namespace Namespace
	Key       Key
}

// EventID identifies an asynchronous backend notification.
type EventID int

const (
	EventInit EventID = iota
	EventWrite
	EventUpdate
	EventCompact
)

func (e EventID) String() string {
	switch e {
	case EventInit:
		return "init"
	case EventWrite:
		return "write"
	case EventUpdate:
		return "update"
	case EventCompact:
		return "compact"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Event is delivered to registered handlers. Result is nil on success.
type Event struct {
	ID         EventID
	Result     error
	Descriptor Descriptor
}

// Handler receives backend events. Handlers may be called from any goroutine
// and must not call back into the backend.
type Handler func(Event)

// Backend is a key-value store with asynchronous initialization.
//
// Init only queues initialization; completion is reported through an
// EventInit event to every registered handler. All other operations fail
// with CodeNotInitialized until that event has been delivered with a nil
// result. At most one record per (namespace, key) is current; Write and
// Update supersede the previous version.
type Backend interface {
	Register(h Handler) error
	Init() error
	Find(ns Namespace, key Key) (Descriptor, error)
	Open(d Descriptor) ([]byte, error)
	Close(d Descriptor) error
	Write(ns Namespace, key Key, data []byte) (Descriptor, error)
	Update(d Descriptor, data []byte) (Descriptor, error)
}

// ErrNotFound is returned by Find when the slot holds no record.
var ErrNotFound = errors.New("storage: record not found")

// Backend error codes.
const (
	CodeNotInitialized = 1
	CodeInvalidArg     = 2
	CodeNoSpace        = 3
	CodeIO             = 4
	CodeCorrupt        = 5
	CodeBusy           = 6
	CodeStaleDesc      = 7
)

// BackendError carries a backend failure code verbatim.
type BackendError struct {
	Op   string
	Code int
	Err  error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage: %s failed (code %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("storage: %s failed (code %d)", e.Op, e.Code)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Code returns the backend code carried by err, or 0 if err is not a BackendError.
func Code(err error) int {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return 0
}

func newError(op string, code int, err error) error {
	return &BackendError{Op: op, Code: code, Err: err}
}
