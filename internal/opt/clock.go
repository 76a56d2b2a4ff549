package opt

import (
	"math"
	"math/rand"
	"time"
)

// Clock abstracts wall-clock time for deadline checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default wall clock.
var SystemClock Clock = systemClock{}

// Remaining returns the time left before deadline; a zero deadline never expires.
func Remaining(c Clock, deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return deadline.Sub(c.Now())
}

// defaultSeed replaces a zero seed so runs stay reproducible.
const defaultSeed int64 = 1

func rngFromSeed(seed int64) *rand.Rand {
	if seed == 0 {
		seed = defaultSeed
	}
	return rand.New(rand.NewSource(seed))
}
