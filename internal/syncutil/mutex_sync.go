//go:build !deadlock

// Package syncutil holds the lock that serializes access to the config store
// and the storage backends. Built with -tags=deadlock it is backed by
// github.com/sasha-s/go-deadlock, which reports lock-order cycles and
// long waits at runtime.
package syncutil

import "sync"

// Mutex is sync.Mutex in regular builds.
type Mutex struct {
	sync.Mutex
}
