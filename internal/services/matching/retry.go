package matching

import (
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

// RetryConfig controls how far into the future a queued requester is
// scheduled for its next matching attempt, by attempt count.
type RetryConfig struct {
	Delay1 time.Duration // default: 5 minutes
	Delay2 time.Duration // default: 15 minutes
	Delay3 time.Duration // default: 30 minutes
	Delay4 time.Duration // default: 60 minutes

	// JitterSeconds spreads attempts so a burst of queued requesters does
	// not come due in the same sweep.
	JitterSeconds int
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Delay1:        5 * time.Minute,
		Delay2:        15 * time.Minute,
		Delay3:        30 * time.Minute,
		Delay4:        60 * time.Minute,
		JitterSeconds: 60,
	}
}

type RetryPlanner struct {
	cfg RetryConfig
	r   Rand
}

func NewRetryPlanner(cfg RetryConfig, r Rand) *RetryPlanner {
	def := DefaultRetryConfig()
	if cfg.Delay1 <= 0 {
		cfg.Delay1 = def.Delay1
	}
	if cfg.Delay2 <= 0 {
		cfg.Delay2 = def.Delay2
	}
	if cfg.Delay3 <= 0 {
		cfg.Delay3 = def.Delay3
	}
	if cfg.Delay4 <= 0 {
		cfg.Delay4 = def.Delay4
	}
	if cfg.JitterSeconds < 0 {
		cfg.JitterSeconds = 0
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RetryPlanner{cfg: cfg, r: r}
}

func DefaultRetryPlanner() *RetryPlanner {
	return NewRetryPlanner(DefaultRetryConfig(), nil)
}

// NextAttemptDelay returns the scheduling delay for a requester that has
// now failed attemptCount matching attempts.
func (p *RetryPlanner) NextAttemptDelay(attemptCount int32) time.Duration {
	var d time.Duration
	switch {
	case attemptCount <= 1:
		d = p.cfg.Delay1
	case attemptCount == 2:
		d = p.cfg.Delay2
	case attemptCount == 3:
		d = p.cfg.Delay3
	default:
		d = p.cfg.Delay4
	}
	if p.cfg.JitterSeconds > 0 {
		d += time.Duration(p.r.Intn(p.cfg.JitterSeconds+1)) * time.Second
	}
	return d
}
