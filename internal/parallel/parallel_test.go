package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), {Workers: 3, MinItems: 2}, {Workers: 1}} {
		n := 1000
		seen := make([]int32, n)
		require.NoError(t, For(n, cfg, func(i int) error {
			atomic.AddInt32(&seen[i], 1)
			return nil
		}))
		for i, c := range seen {
			assert.Equal(t, int32(1), c, "index %d with %+v", i, cfg)
		}
	}
}

func TestForReturnsLowestError(t *testing.T) {
	errLow, errHigh := errors.New("low"), errors.New("high")
	err := For(100, Config{Workers: 4}, func(i int) error {
		switch i {
		case 30:
			return errLow
		case 80:
			return errHigh
		}
		return nil
	})
	assert.ErrorIs(t, err, errLow)
}

func TestForSequentialStopsAtError(t *testing.T) {
	var calls int
	err := For(10, Config{Workers: 1}, func(i int) error {
		calls++
		if i == 2 {
			return errors.New("stop")
		}
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestForEmpty(t *testing.T) {
	assert.NoError(t, For(0, DefaultConfig(), func(int) error { return errors.New("unreachable") }))
}
