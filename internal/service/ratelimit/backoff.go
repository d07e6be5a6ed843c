package ratelimit

import (
	"fmt"
	"time"
)

type Strategy string

const (
	StrategyExponential Strategy = "exponential_backoff"
	StrategyFixed       Strategy = "fixed_delay"
	StrategyLinear      Strategy = "linear"
)

// Backoff computes the cooldown before retry n (1-based).
type Backoff struct {
	Strategy Strategy
	Base     time.Duration
	Max      time.Duration
}

// NewBackoff validates the strategy name.
func NewBackoff(strategy string, base, max time.Duration) (Backoff, error) {
	s := Strategy(strategy)
	switch s {
	case StrategyExponential, StrategyFixed, StrategyLinear:
	case "":
		s = StrategyExponential
	default:
		return Backoff{}, fmt.Errorf("unknown backoff strategy %q", strategy)
	}
	if max < base {
		max = base
	}
	return Backoff{Strategy: s, Base: base, Max: max}, nil
}

// Delay returns min(base * 2^(n-1), max) for exponential, base for fixed and
// min(base * n, max) for linear.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	var d time.Duration
	switch b.Strategy {
	case StrategyFixed:
		d = b.Base
	case StrategyLinear:
		d = b.Base * time.Duration(n)
	default:
		d = b.Base
		for i := 1; i < n; i++ {
			d *= 2
			if d >= b.Max {
				break
			}
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
