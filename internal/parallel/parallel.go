// Package parallel runs independent per-item work on a bounded number of
// goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution.
type Config struct {
	Workers  int // Goroutines to use. 1 or less runs sequentially.
	MinItems int // Below this many items the work runs sequentially.
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU(), MinItems: 2}
}

// For calls f(i) for every i in [0, n). Items are split into contiguous
// chunks, one goroutine per chunk. A chunk stops at its first error; For
// returns the error of the lowest failing index.
func For(n int, cfg Config, f func(i int) error) error {
	if cfg.Workers <= 1 || n < max(cfg.MinItems, 2) {
		for i := 0; i < n; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	chunk := (n + cfg.Workers - 1) / cfg.Workers
	errs := make([]error, n)
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				if errs[i] = f(i); errs[i] != nil {
					return
				}
			}
		}(start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
