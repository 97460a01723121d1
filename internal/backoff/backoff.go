// Package backoff computes capped exponential delays with jitter. The same
// schedule is shared by the HTTP retry path and the stream reconnect path,
// each with its own attempt counter.
package backoff

import (
	"math/rand"
	"time"
)

// DefaultJitterMax bounds the random component added to every delay.
const DefaultJitterMax = time.Second

// Strategy produces the delay before a given attempt. Attempts are 1-indexed:
// attempt 1 yields Base (plus jitter), attempt 2 yields 2*Base, and so on,
// capped at Max after jitter is applied.
type Strategy struct {
	Base time.Duration
	Max  time.Duration

	// Jitter overrides the random component; nil uses a uniform value in
	// [0, DefaultJitterMax). Tests inject a fixed function here.
	Jitter func() time.Duration
}

// Delay returns the backoff delay preceding the given 1-indexed attempt.
func (s Strategy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := s.Base
	if base < 0 {
		base = 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if s.Max > 0 && delay > s.Max/2 {
			delay = s.Max
			break
		}
		delay *= 2
	}

	delay += s.jitter()
	if s.Max > 0 && delay > s.Max {
		delay = s.Max
	}
	return delay
}

// Cap clamps an externally supplied delay, such as a server-provided
// retry-after hint, to the strategy's ceiling.
func (s Strategy) Cap(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if s.Max > 0 && delay > s.Max {
		return s.Max
	}
	return delay
}

func (s Strategy) jitter() time.Duration {
	if s.Jitter != nil {
		return s.Jitter()
	}
	return time.Duration(rand.Int63n(int64(DefaultJitterMax)))
}
