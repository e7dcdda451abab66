package dynamic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelayIndicator_InitiallyUnset(t *testing.T) {
	d := NewDelayIndicator()
	assert.False(t, d.ShouldDelayLocal())
}

func TestDelayIndicator_MonotonicOnceSet(t *testing.T) {
	d := NewDelayIndicator()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.MarkRemoteDone()
		}()
	}
	wg.Wait()

	assert.True(t, d.ShouldDelayLocal())
	// There is no way back.
	d.MarkRemoteDone()
	assert.True(t, d.ShouldDelayLocal())
}
