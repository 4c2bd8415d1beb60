package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type GuardOptions struct {
	// RatePerSecond caps engine launches; zero or less means unlimited.
	RatePerSecond float64
	Burst         int
	// MaxConsecutiveFailures trips the breaker; zero defaults to 5.
	MaxConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// GuardedScorer rate limits engine launches and stops calling a failing
// engine until it recovers. It never retries.
type GuardedScorer struct {
	next    Scorer
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
}

func NewGuardedScorer(next Scorer, opts GuardOptions) *GuardedScorer {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := opts.MaxConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "inference-engine",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Caller cancellation says nothing about engine health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log().WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("inference circuit breaker state changed")
		},
	}

	return &GuardedScorer{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// State exposes the breaker state for health reporting.
func (g *GuardedScorer) State() string { return g.cb.State().String() }

func (g *GuardedScorer) Predict(ctx context.Context, modelPath string, features models.FeatureMap) (Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("inference predict: rate limit: %w", err)
	}
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Predict(ctx, modelPath, features)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, fmt.Errorf("inference predict: %w", err)
		}
		return Result{}, err
	}
	return res.(Result), nil
}

func (g *GuardedScorer) BatchPredict(ctx context.Context, modelPath string, batch []models.FeatureMap) ([]Result, error) {
	return predictEach(ctx, g.Predict, modelPath, batch), nil
}

// Train is rate limited but bypasses the breaker; training failures are not
// a signal about prediction health.
func (g *GuardedScorer) Train(ctx context.Context, req TrainRequest) (*TrainingOutcome, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("inference train: rate limit: %w", err)
	}
	return g.next.Train(ctx, req)
}
