package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yishak-cs/menu-recommender/internal/metrics"
	"github.com/yishak-cs/menu-recommender/internal/models"
)

// RecommendationConfig bounds the size and latency of a recommendation request
type RecommendationConfig struct {
	DefaultCount     int
	MaxCount         int
	GeneratorTimeout time.Duration
}

// DefaultRecommendationConfig returns the defaults used when no config is given
func DefaultRecommendationConfig() RecommendationConfig {
	return RecommendationConfig{
		DefaultCount:     5,
		MaxCount:         50,
		GeneratorTimeout: 2 * time.Second,
	}
}

// RecommendationRequest asks for recommendations for a customer's current selection
type RecommendationRequest struct {
	CustomerID          int
	TenantID            string
	CurrentSelectionIDs []int
	MaxCount            int
}

// RecommendationService merges the candidate generators into one ranked list
type RecommendationService struct {
	querier    AggregateQuerier
	generators []Generator
	config     RecommendationConfig
	logger     zerolog.Logger
}

// NewRecommendationService wires the four generators in their tie-break order:
// personalized history, complementary, dietary, trending.
func NewRecommendationService(querier AggregateQuerier, rnd Shuffler, cfg RecommendationConfig, logger zerolog.Logger) *RecommendationService {
	generators := []Generator{
		NewPersonalizedHistoryGenerator(querier, rnd),
		NewComplementaryGenerator(querier),
		NewDietaryGenerator(querier, rnd),
		NewTrendingGenerator(querier),
	}
	return NewRecommendationServiceWithGenerators(querier, generators, cfg, logger)
}

// NewRecommendationServiceWithGenerators uses the given generators; their order is the tie-break order.
func NewRecommendationServiceWithGenerators(querier AggregateQuerier, generators []Generator, cfg RecommendationConfig, logger zerolog.Logger) *RecommendationService {
	defaults := DefaultRecommendationConfig()
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = defaults.DefaultCount
	}
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = defaults.MaxCount
	}
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = defaults.GeneratorTimeout
	}

	return &RecommendationService{
		querier:    querier,
		generators: generators,
		config:     cfg,
		logger:     logger.With().Str("component", "recommend").Logger(),
	}
}

// GetRecommendations returns at most MaxCount unique candidates, highest confidence first.
// Generator and aggregate layer failures are logged and degrade the result; they are never returned.
func (s *RecommendationService) GetRecommendations(ctx context.Context, req RecommendationRequest) ([]models.CandidateItem, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	}
	maxCount := s.normalizeCount(req.MaxCount)

	logger := s.logger.With().
		Str("tenant_id", req.TenantID).
		Int("customer_id", req.CustomerID).
		Logger()

	pattern := s.ResolveOrderPattern(ctx, req.CustomerID, req.TenantID)

	input := GenerationInput{
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		Anchors:    req.CurrentSelectionIDs,
		Pattern:    pattern,
	}

	results := s.runGenerators(ctx, input)

	lists := make([][]models.CandidateItem, 0, len(results))
	for _, result := range results {
		if result.err != nil {
			metrics.GeneratorFailures.WithLabelValues(result.name).Inc()
			logger.Warn().
				Str("generator", result.name).
				Err(result.err).
				Msg("generator failed, continuing without it")
			continue
		}
		lists = append(lists, result.candidates)
	}

	recommendations := mergeCandidates(lists, req.CurrentSelectionIDs, maxCount)
	metrics.ResultSize.Observe(float64(len(recommendations)))

	logger.Debug().
		Int("returned", len(recommendations)).
		Int("max_count", maxCount).
		Msg("recommendations generated")

	return recommendations, nil
}

func (s *RecommendationService) normalizeCount(n int) int {
	if n <= 0 {
		return s.config.DefaultCount
	}
	if n > s.config.MaxCount {
		return s.config.MaxCount
	}
	return n
}

// ResolveOrderPattern derives the customer's order pattern from the aggregate layer.
// The three lookups run concurrently under the generator timeout. Unknown customers,
// query failures and timeouts yield empty fields rather than an error.
func (s *RecommendationService) ResolveOrderPattern(ctx context.Context, customerID int, tenantID string) models.CustomerOrderPattern {
	pattern := models.CustomerOrderPattern{CustomerID: customerID}
	if customerID <= 0 {
		return pattern
	}

	logger := s.logger.With().Str("tenant_id", tenantID).Int("customer_id", customerID).Logger()

	lookupCtx, cancel := context.WithTimeout(ctx, s.config.GeneratorTimeout)
	defer cancel()

	var (
		wg                       sync.WaitGroup
		frequent                 []models.FrequentItemRow
		tags                     []string
		last                     []int
		freqErr, tagErr, lastErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		frequent, freqErr = withDeadline(lookupCtx, func(c context.Context) ([]models.FrequentItemRow, error) {
			return s.querier.CustomerFrequentItems(c, customerID, tenantID)
		})
	}()
	go func() {
		defer wg.Done()
		tags, tagErr = withDeadline(lookupCtx, func(c context.Context) ([]string, error) {
			return s.querier.CustomerDietaryPreferences(c, customerID, tenantID)
		})
	}()
	go func() {
		defer wg.Done()
		last, lastErr = withDeadline(lookupCtx, func(c context.Context) ([]int, error) {
			return s.querier.CustomerLastOrderItems(c, customerID, tenantID)
		})
	}()
	wg.Wait()

	if freqErr != nil {
		logger.Warn().Err(freqErr).Msg("Failed to get customer frequent items")
	}
	seenCategory := make(map[string]struct{})
	for _, row := range frequent {
		pattern.FrequentItemIDs = append(pattern.FrequentItemIDs, row.ItemID)
		if row.Category == "" {
			continue
		}
		if _, ok := seenCategory[row.Category]; !ok {
			seenCategory[row.Category] = struct{}{}
			pattern.PreferredCategories = append(pattern.PreferredCategories, row.Category)
		}
	}

	if tagErr != nil {
		logger.Warn().Err(tagErr).Msg("Failed to get customer dietary preferences")
	}
	pattern.DietaryPreferences = tags

	if lastErr != nil {
		logger.Warn().Err(lastErr).Msg("Failed to get customer last order items")
	}
	pattern.LastOrderItemIDs = last

	return pattern
}

// generatorResult holds one generator's outcome
type generatorResult struct {
	name       string
	candidates []models.CandidateItem
	err        error
}

// runGenerators runs every generator concurrently and waits for all of them.
// Results keep the generator order.
func (s *RecommendationService) runGenerators(ctx context.Context, input GenerationInput) []generatorResult {
	results := make([]generatorResult, len(s.generators))
	var wg sync.WaitGroup

	for i, gen := range s.generators {
		wg.Add(1)
		go func(idx int, g Generator) {
			defer wg.Done()
			results[idx] = s.runSingleGenerator(ctx, g, input)
		}(i, gen)
	}

	wg.Wait()
	return results
}

func (s *RecommendationService) runSingleGenerator(ctx context.Context, gen Generator, input GenerationInput) generatorResult {
	result := generatorResult{name: gen.Name()}
	start := time.Now()
	defer func() {
		metrics.GeneratorDuration.WithLabelValues(result.name).Observe(time.Since(start).Seconds())
	}()

	genCtx, cancel := context.WithTimeout(ctx, s.config.GeneratorTimeout)
	defer cancel()

	result.candidates, result.err = withDeadline(genCtx, func(c context.Context) ([]models.CandidateItem, error) {
		return gen.Generate(c, input)
	})
	return result
}

// withDeadline runs fn in its own goroutine and stops waiting once ctx is done.
// A call that ignores ctx is abandoned; its late result is dropped. Panics become errors.
func withDeadline[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("panicked: %v", r)}
			}
			done <- out
		}()
		out.value, out.err = fn(ctx)
	}()

	var zero T
	select {
	case out := <-done:
		if out.err == nil && ctx.Err() != nil {
			return zero, fmt.Errorf("timed out: %w", ctx.Err())
		}
		return out.value, out.err
	case <-ctx.Done():
		return zero, fmt.Errorf("timed out: %w", ctx.Err())
	}
}

// mergeCandidates concatenates the lists in order, drops duplicates and excluded ids,
// then stable-sorts by confidence and truncates to maxCount.
func mergeCandidates(lists [][]models.CandidateItem, exclude []int, maxCount int) []models.CandidateItem {
	excluded := toSet(exclude)
	seen := make(map[int]struct{})

	merged := make([]models.CandidateItem, 0)
	for _, list := range lists {
		for _, candidate := range list {
			id := candidate.Item.DbID
			if _, ok := excluded[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			candidate.Confidence = clamp01(candidate.Confidence)
			merged = append(merged, candidate)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})

	if maxCount >= 0 && len(merged) > maxCount {
		merged = merged[:maxCount]
	}
	return merged
}
