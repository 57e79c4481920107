package core

import (
	"errors"
	"fmt"
	"time"
)

// DefaultLivenessWindow is how long a touch keeps a channel counted.
const DefaultLivenessWindow = 1200 * time.Second

var ErrInvalidThreshold = errors.New("invalid count threshold")

// CountOptions parameterize a liveness-windowed count. Without WithThreshold
// the layer default applies; a zero Now means "use the layer clock".
type CountOptions struct {
	Threshold    time.Duration
	ThresholdSet bool
	Now          time.Time
}

type CountOption func(*CountOptions)

// WithThreshold overrides the liveness window. Zero counts only channels
// touched at or after now; negative values are rejected.
func WithThreshold(d time.Duration) CountOption {
	return func(o *CountOptions) {
		o.Threshold = d
		o.ThresholdSet = true
	}
}

func At(now time.Time) CountOption {
	return func(o *CountOptions) { o.Now = now }
}

// ResolveCount applies opts over the given defaults and returns the lower
// score bound.
func ResolveCount(defaultThreshold time.Duration, clock func() time.Time, opts ...CountOption) (time.Time, error) {
	var o CountOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.ThresholdSet {
		o.Threshold = defaultThreshold
	}
	if o.Threshold < 0 {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidThreshold, o.Threshold)
	}
	if o.Now.IsZero() {
		o.Now = clock()
	}
	return o.Now.Add(-o.Threshold), nil
}
