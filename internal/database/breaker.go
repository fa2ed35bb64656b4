package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/yishak-cs/menu-recommender/internal/logging"
	"github.com/yishak-cs/menu-recommender/internal/metrics"
	"github.com/yishak-cs/menu-recommender/internal/models"
	"github.com/yishak-cs/menu-recommender/internal/services"
)

// ErrUpstreamUnavailable is returned while the circuit to the aggregate layer is open
var ErrUpstreamUnavailable = errors.New("aggregate layer unavailable")

// BreakerConfig tunes when the circuit opens and how long it stays open
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32        // allowed through while half-open
	Interval     time.Duration // closed-state count reset
	Timeout      time.Duration // open -> half-open
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig opens after 60% failures over at least 10 requests
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "aggregate-layer",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerAggregates guards an aggregate backend with a circuit breaker so an
// unavailable store fails fast instead of holding every generator until its timeout
type BreakerAggregates struct {
	next services.AggregateQuerier
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreakerAggregates wraps next with a circuit breaker
func NewBreakerAggregates(next services.AggregateQuerier, cfg BreakerConfig) *BreakerAggregates {
	defaults := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = defaults.MaxRequests
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = defaults.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = defaults.FailureRatio
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		// a caller giving up is not the store's fault
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerAggregates{next: next, cb: cb, name: cfg.Name}
}

// State reports the current breaker state
func (b *BreakerAggregates) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *BreakerAggregates, fn func() (T, error)) (T, error) {
	var zero T

	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return zero, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return zero, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()

	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func (b *BreakerAggregates) CoOccurrenceCandidates(ctx context.Context, tenantID string, anchorIDs []int) ([]models.CoOccurrenceRow, error) {
	return execute(b, func() ([]models.CoOccurrenceRow, error) {
		return b.next.CoOccurrenceCandidates(ctx, tenantID, anchorIDs)
	})
}

func (b *BreakerAggregates) CustomerFrequentItems(ctx context.Context, customerID int, tenantID string) ([]models.FrequentItemRow, error) {
	return execute(b, func() ([]models.FrequentItemRow, error) {
		return b.next.CustomerFrequentItems(ctx, customerID, tenantID)
	})
}

func (b *BreakerAggregates) CustomerDietaryPreferences(ctx context.Context, customerID int, tenantID string) ([]string, error) {
	return execute(b, func() ([]string, error) {
		return b.next.CustomerDietaryPreferences(ctx, customerID, tenantID)
	})
}

func (b *BreakerAggregates) CustomerLastOrderItems(ctx context.Context, customerID int, tenantID string) ([]int, error) {
	return execute(b, func() ([]int, error) {
		return b.next.CustomerLastOrderItems(ctx, customerID, tenantID)
	})
}

func (b *BreakerAggregates) CategoryItems(ctx context.Context, tenantID string, categories []string) ([]models.MenuItemRef, error) {
	return execute(b, func() ([]models.MenuItemRef, error) {
		return b.next.CategoryItems(ctx, tenantID, categories)
	})
}

func (b *BreakerAggregates) DietaryCompatibleItems(ctx context.Context, tenantID string, tags []string) ([]models.MenuItemRef, error) {
	return execute(b, func() ([]models.MenuItemRef, error) {
		return b.next.DietaryCompatibleItems(ctx, tenantID, tags)
	})
}

func (b *BreakerAggregates) TrendingItems(ctx context.Context, tenantID string, windowDays, minOrderCount int) ([]models.TrendingRow, error) {
	return execute(b, func() ([]models.TrendingRow, error) {
		return b.next.TrendingItems(ctx, tenantID, windowDays, minOrderCount)
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
