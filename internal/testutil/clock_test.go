package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestFakeClock_Frozen(t *testing.T) {
	clock := NewFakeClock(start)
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClock(start)

	clock.Advance(6 * time.Hour)
	assert.Equal(t, start.Add(6*time.Hour), clock.Now())

	clock.Advance(time.Second)
	assert.Equal(t, start.Add(6*time.Hour+time.Second), clock.Now())
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClock(start)

	earlier := start.Add(-time.Hour)
	clock.Set(earlier)
	assert.Equal(t, earlier, clock.Now())
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	clock := NewFakeClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(100*time.Millisecond), clock.Now())
}
