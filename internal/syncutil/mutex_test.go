package syncutil_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/micro-nova/ibeacon-go/internal/syncutil"
)

func TestMutexSerializesWriters(t *testing.T) {
	t.Parallel()

	var (
		mu    syncutil.Mutex
		wg    sync.WaitGroup
		count int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16*1000, count)
}
