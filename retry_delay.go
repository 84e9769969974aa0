package eventsource

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// backoffStrategy computes the delay for the given retry attempt from the base delay.
type backoffStrategy func(baseDelay time.Duration, retryCount int) time.Duration

// jitterStrategy randomizes a computed delay.
type jitterStrategy func(delay time.Duration) time.Duration

// retryDelayStrategy holds the reconnection delay state for a stream.
//
// The base delay starts at the configured initial retry and can be replaced at any
// time when the server sends a "retry:" field. Without a backoff strategy the
// computed delay is always the base delay; with one, consecutive retries increase
// the delay until the connection has been in a "good" state for resetInterval.
//
// The stream's worker goroutine is the only writer, but tests inspect the strategy
// concurrently, so the methods take a lock.
type retryDelayStrategy struct {
	baseDelay     time.Duration
	backoff       backoffStrategy
	jitter        jitterStrategy
	resetInterval time.Duration
	retryCount    int
	goodSince     time.Time // zero unless the state is currently "good"
	lock          sync.Mutex
}

func newRetryDelayStrategy(
	baseDelay time.Duration,
	resetInterval time.Duration,
	backoff backoffStrategy,
	jitter jitterStrategy,
) *retryDelayStrategy {
	return &retryDelayStrategy{
		baseDelay:     baseDelay,
		resetInterval: resetInterval,
		backoff:       backoff,
		jitter:        jitter,
	}
}

// newDefaultBackoff returns the standard exponential backoff, which doubles the delay
// on each consecutive retry up to maxDelay.
func newDefaultBackoff(maxDelay time.Duration) backoffStrategy {
	return func(baseDelay time.Duration, retryCount int) time.Duration {
		// computed in floating point so a large retryCount pins to maxDelay
		// instead of overflowing
		d := math.Min(float64(baseDelay)*math.Pow(2, float64(retryCount)), float64(maxDelay))
		return time.Duration(d)
	}
}

// newDefaultJitter returns the standard jitter, which subtracts a pseudo-random
// amount of up to ratio (0 < ratio <= 1.0) from each delay. A non-positive randSeed
// means seed from the clock.
func newDefaultJitter(ratio float64, randSeed int64) jitterStrategy {
	if randSeed <= 0 {
		randSeed = time.Now().UnixNano()
	}
	if ratio > 1.0 {
		ratio = 1.0
	}
	random := rand.New(rand.NewSource(randSeed))
	return func(delay time.Duration) time.Duration {
		return delay - time.Duration(random.Int63n(int64(float64(delay)*ratio)))
	}
}

// NextRetryDelay computes the delay before the next connection attempt and marks the
// state as "bad".
//
// currentTime is a parameter rather than read from the clock so tests get
// predictable results.
func (r *retryDelayStrategy) NextRetryDelay(currentTime time.Time) time.Duration {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.goodSince.IsZero() && r.resetInterval > 0 && currentTime.Sub(r.goodSince) >= r.resetInterval {
		r.retryCount = 0
	}
	r.goodSince = time.Time{}
	delay := r.baseDelay
	if r.backoff != nil {
		delay = r.backoff(delay, r.retryCount)
	}
	r.retryCount++
	if r.jitter != nil {
		delay = r.jitter(delay)
	}
	return delay
}

// SetGoodSince marks the state as "good" and records when it became so.
func (r *retryDelayStrategy) SetGoodSince(goodSince time.Time) {
	r.lock.Lock()
	r.goodSince = goodSince
	r.lock.Unlock()
}

// SetBaseDelay replaces the base delay and restarts any backoff from the beginning.
// This implements the "retry:" field of the protocol; jitter, if enabled, still
// applies to the new value.
func (r *retryDelayStrategy) SetBaseDelay(baseDelay time.Duration) {
	r.lock.Lock()
	r.baseDelay = baseDelay
	r.retryCount = 0
	r.lock.Unlock()
}

func (r *retryDelayStrategy) hasJitter() bool { //nolint:megacheck // used only in tests
	return r.jitter != nil
}
