// Package score holds the decay law applied to trending scores. It performs no
// I/O and reads no clock: every timestamp is passed in.
package score

import (
	"math"
	"time"
)

// Day is the e-folding time of the default decay: a score left alone for one
// day is divided by e.
const Day = 24 * time.Hour

// Model folds pending views into a decayed score as of now.
type Model interface {
	NewScore(oldScore float64, lastIndexedAt time.Time, pendingViews int64, now time.Time) float64
}

// Func adapts a plain function to Model.
type Func func(oldScore float64, lastIndexedAt time.Time, pendingViews int64, now time.Time) float64

func (f Func) NewScore(oldScore float64, lastIndexedAt time.Time, pendingViews int64, now time.Time) float64 {
	return f(oldScore, lastIndexedAt, pendingViews, now)
}

// ExponentialDecay computes oldScore * exp(-elapsed/Lifetime) + pendingViews.
type ExponentialDecay struct {
	Lifetime time.Duration
}

// Default is the one-day e-folding law.
var Default Model = ExponentialDecay{Lifetime: Day}

func (d ExponentialDecay) NewScore(oldScore float64, lastIndexedAt time.Time, pendingViews int64, now time.Time) float64 {
	lifetime := d.Lifetime
	if lifetime <= 0 {
		lifetime = Day
	}
	elapsed := float64(clampElapsed(lastIndexedAt, now)) / float64(lifetime)
	return oldScore*math.Exp(-elapsed) + float64(pendingViews)
}

// ElapsedDays returns the real-valued number of days from -> to, never negative.
func ElapsedDays(from, to time.Time) float64 {
	return float64(clampElapsed(from, to)) / float64(Day)
}

// clock skew must never grow a score
func clampElapsed(from, to time.Time) time.Duration {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return d
}
