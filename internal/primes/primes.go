// Package primes computes ordered prime listings by trial division. It is a
// pure primitive: callers are responsible for bounding the input before
// invoking it, since large bounds block the calling goroutine for the full
// duration of the scan.
package primes

import (
	"time"

	"github.com/example/prime-worker/internal/models"
)

// Compute returns every prime in [2, max] in ascending order together with
// the wall-clock duration of the scan. A max below 2 yields an empty result.
func Compute(max int) models.Result {
	start := time.Now()

	var list []int
	for i := 2; i <= max; i++ {
		prime := true
		// Trial division up to the integer square root of i.
		for j := 2; j <= i/j; j++ {
			if i%j == 0 {
				prime = false
				break
			}
		}
		if prime {
			list = append(list, i)
		}
	}

	return models.Result{
		Primes:  list,
		Elapsed: time.Since(start),
	}
}
