package connection

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// Reconnect defaults.
const (
	// DefaultBaseDelay is the delay before the first retry.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay caps the retry delay.
	DefaultMaxDelay = 30 * time.Second

	// DefaultMultiplier is the factor by which the delay grows per attempt.
	DefaultMultiplier = 2.0

	// DefaultJitterFraction is the maximum jitter as a fraction of the delay.
	DefaultJitterFraction = 0.25
)

// ReconnectPolicy computes retry delays. It holds no mutable state; the
// attempt counter lives in the Session.
type ReconnectPolicy struct {
	// BaseDelay is the delay for attempt 0.
	BaseDelay time.Duration

	// MaxDelay caps every delay.
	MaxDelay time.Duration

	// Multiplier is applied once per attempt. Must be >= 1.
	Multiplier float64

	// MaxAttempts is the number of failed retries after which the policy
	// gives up. Zero means unbounded.
	MaxAttempts int
}

// DefaultReconnectPolicy returns an unbounded policy starting at 1s,
// doubling, capped at 30s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Multiplier: DefaultMultiplier,
	}
}

// Validate reports configuration errors.
func (p ReconnectPolicy) Validate() error {
	var errs []error
	if p.BaseDelay <= 0 {
		errs = append(errs, errors.New("reconnect base delay must be positive"))
	}
	if p.MaxDelay < p.BaseDelay {
		errs = append(errs, errors.New("reconnect max delay must be >= base delay"))
	}
	if p.Multiplier < 1 {
		errs = append(errs, errors.New("reconnect multiplier must be >= 1"))
	}
	if p.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect max attempts must be >= 0"))
	}
	return errors.Join(errs...)
}

// withDefaults fills zero fields with defaults.
func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

// RetryDecision is the outcome of consulting the policy.
type RetryDecision struct {
	// Delay is the wait before the next dial. Zero when GiveUp is set.
	Delay time.Duration

	// GiveUp means the retry budget is spent.
	GiveUp bool
}

// NextDelay returns min(BaseDelay * Multiplier^attempt, MaxDelay), or GiveUp
// once attempt reaches MaxAttempts.
func (p ReconnectPolicy) NextDelay(attempt int) RetryDecision {
	if attempt < 0 {
		attempt = 0
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return RetryDecision{GiveUp: true}
	}

	limit := float64(p.MaxDelay)
	d := float64(p.BaseDelay)
	for i := 0; i < attempt && d < limit; i++ {
		d *= p.Multiplier
	}
	if d > limit {
		d = limit
	}
	return RetryDecision{Delay: time.Duration(d)}
}

// Sequence returns the first n delays (without jitter), stopping early if
// the policy gives up.
func (p ReconnectPolicy) Sequence(n int) []time.Duration {
	seq := make([]time.Duration, 0, n)
	for i := range n {
		dec := p.NextDelay(i)
		if dec.GiveUp {
			break
		}
		seq = append(seq, dec.Delay)
	}
	return seq
}

// Jitter adds uniform random jitter to retry delays:
//
//	delay + random(0, delay * fraction)
//
// A nil *Jitter or a zero fraction leaves delays unchanged.
type Jitter struct {
	mu       sync.Mutex
	fraction float64
	rng      *rand.Rand
}

// NewJitter creates a jitter source. A zero seed picks a time-based seed.
func NewJitter(fraction float64, seed int64) *Jitter {
	if fraction < 0 {
		fraction = 0
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Jitter{
		fraction: fraction,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Apply returns d plus jitter.
func (j *Jitter) Apply(d time.Duration) time.Duration {
	if j == nil || j.fraction <= 0 || d <= 0 {
		return d
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return d + time.Duration(float64(d)*j.fraction*j.rng.Float64())
}
