package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()

	const workers = 32
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			locks.Lock("weather_lookup")
			defer locks.Unlock("weather_lookup")
			counter++
		}()
	}
	wg.Wait()

	require.Equal(t, workers, counter)
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	locks := newKeyedMutex()

	locks.Lock("alpha")
	done := make(chan struct{})
	go func() {
		locks.Lock("beta")
		locks.Unlock("beta")
		close(done)
	}()
	<-done
	locks.Unlock("alpha")
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	locks := newKeyedMutex()

	locks.Lock("alpha")
	locks.Unlock("alpha")

	locks.mu.Lock()
	defer locks.mu.Unlock()
	require.Empty(t, locks.entries)
}
