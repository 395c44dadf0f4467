// Package location wraps the device position sensor with the tiered retry
// policy every status transition depends on.
package location

import (
	"context"
	"log/slog"
	"time"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

type Accuracy int

const (
	AccuracyHigh Accuracy = iota
	AccuracyBalanced
)

func (a Accuracy) String() string {
	if a == AccuracyHigh {
		return "high"
	}
	return "balanced"
}

type Fix struct {
	Point models.GeoPoint
	At    time.Time
}

// Provider is the device sensor; the agent injects a platform implementation,
// tests a fake.
type Provider interface {
	Current(ctx context.Context, acc Accuracy) (Fix, error)
}

// Acquirer tries the high-accuracy tier first, then balanced, each with a
// bounded timeout and a fixed retry budget. Exhaustion surfaces a recoverable
// location error, never a raw sensor failure.
type Acquirer struct {
	p Provider

	firstTimeout time.Duration // first attempt
	retryTimeout time.Duration // subsequent attempts
	perTier      int
}

func NewAcquirer(p Provider) *Acquirer {
	return &Acquirer{
		p:            p,
		firstTimeout: 10 * time.Second,
		retryTimeout: 15 * time.Second,
		perTier:      2,
	}
}

func (a *Acquirer) WithTimeouts(first, retry time.Duration, attemptsPerTier int) *Acquirer {
	if first > 0 {
		a.firstTimeout = first
	}
	if retry > 0 {
		a.retryTimeout = retry
	}
	if attemptsPerTier > 0 {
		a.perTier = attemptsPerTier
	}
	return a
}

func (a *Acquirer) Acquire(ctx context.Context) (Fix, error) {
	first := true
	for _, tier := range []Accuracy{AccuracyHigh, AccuracyBalanced} {
		for attempt := 1; attempt <= a.perTier; attempt++ {
			timeout := a.retryTimeout
			if first {
				timeout = a.firstTimeout
				first = false
			}
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			fix, err := a.p.Current(attemptCtx, tier)
			cancel()
			if err == nil {
				return fix, nil
			}
			slog.Warn("location fix failed", "tier", tier.String(), "attempt", attempt, "error", err.Error())
			if ctx.Err() != nil {
				return Fix{}, ctx.Err()
			}
		}
	}
	return Fix{}, errs.Location(
		"location services are disabled or unavailable",
		"retry or open settings",
	)
}
