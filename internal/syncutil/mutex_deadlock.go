//go:build deadlock

package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is deadlock.Mutex in -tags=deadlock builds.
type Mutex struct {
	deadlock.Mutex
}
