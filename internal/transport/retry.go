package transport

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Backoff spaces out dial attempts.
type Backoff struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
}

// Delay returns the wait before attempt n (1-based). With jitter the delay
// is scaled into [0.5, 1.5) of the base value.
func (b Backoff) Delay(n int, rng *rand.Rand) time.Duration {
	if n <= 1 || b.InitialDelay <= 0 {
		return b.InitialDelay
	}
	mult := b.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(b.InitialDelay) * math.Pow(mult, float64(n-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// DialRetry dials up to attempts times, waiting per b between failures. The
// last dial error is returned.
func DialRetry(ctx context.Context, url string, attempts int, b Backoff, opts ...DialOption) (*Client, error) {
	if attempts < 1 {
		attempts = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	for n := 1; n <= attempts; n++ {
		client, err := Dial(ctx, url, opts...)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if n == attempts {
			break
		}
		wait := b.Delay(n, rng)
		log.Debug().Str("url", url).Int("attempt", n).Dur("wait", wait).Err(err).Msg("dial failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}
