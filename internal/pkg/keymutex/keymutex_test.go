package keymutex_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsbridge/control-service/internal/pkg/keymutex"
)

func TestKeyMutex_SerializesPerKeyAndCleansUp(t *testing.T) {
	km := keymutex.New()
	counters := map[string]int{"a": 0, "b": 0}
	var mu sync.Mutex // guards map access only

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()

			mu.Lock()
			v := counters[key]
			mu.Unlock()

			mu.Lock()
			counters[key] = v + 1
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	assert.Equal(t, 50, counters["a"])
	assert.Equal(t, 50, counters["b"])
	assert.Equal(t, 0, km.Len())
}
