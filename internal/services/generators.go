package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yishak-cs/menu-recommender/internal/models"
)

// Strategy names, also used as metric labels
const (
	StrategyPersonalized  = "PersonalizedHistory"
	StrategyComplementary = "Complementary"
	StrategyDietary       = "DietaryCompatible"
	StrategyTrending      = "Trending"
)

const (
	complementaryMinCoOccurrence = 3
	complementaryDamping         = 0.8
	complementaryCeiling         = 0.9

	personalizedSampleSize = 5
	personalizedConfidence = 0.7

	dietarySampleSize = 3
	dietaryConfidence = 0.8

	trendingWindowDays    = 30
	trendingMinOrderCount = 5
	trendingLimit         = 8
	trendingConfidence    = 0.6
)

// GenerationInput is everything a generator may draw on for one request
type GenerationInput struct {
	TenantID   string
	CustomerID int
	Anchors    []int
	Pattern    models.CustomerOrderPattern
}

// Generator turns aggregate data into scored candidates
type Generator interface {
	Name() string
	Generate(ctx context.Context, in GenerationInput) ([]models.CandidateItem, error)
}

// ComplementaryGenerator answers: "what is usually ordered with what's already in the cart?"
type ComplementaryGenerator struct {
	querier AggregateQuerier
}

func NewComplementaryGenerator(querier AggregateQuerier) *ComplementaryGenerator {
	return &ComplementaryGenerator{querier: querier}
}

func (g *ComplementaryGenerator) Name() string { return StrategyComplementary }

// Generate scores each co-occurring item by the share of anchor orders it appears in.
func (g *ComplementaryGenerator) Generate(ctx context.Context, in GenerationInput) ([]models.CandidateItem, error) {
	if len(in.Anchors) == 0 {
		return nil, nil
	}

	rows, err := g.querier.CoOccurrenceCandidates(ctx, in.TenantID, in.Anchors)
	if err != nil {
		return nil, fmt.Errorf("failed to get co-occurrence candidates: %w", err)
	}

	anchors := toSet(in.Anchors)
	reason := fmt.Sprintf("Frequently ordered with item %s", joinIDs(in.Anchors))

	var candidates []models.CandidateItem
	for _, row := range rows {
		if _, isAnchor := anchors[row.Item.DbID]; isAnchor {
			continue
		}
		if row.CoOccurrenceCount < complementaryMinCoOccurrence || row.TotalAnchorOrders <= 0 {
			continue
		}

		ratio := float64(row.CoOccurrenceCount) / float64(row.TotalAnchorOrders)
		candidates = append(candidates, models.CandidateItem{
			Item:       row.Item,
			Confidence: clamp01(math.Min(ratio*complementaryDamping, complementaryCeiling)),
			Reason:     reason,
			Strategy:   StrategyComplementary,
		})
	}

	return candidates, nil
}

// PersonalizedHistoryGenerator surfaces unexplored items from the customer's favourite categories
type PersonalizedHistoryGenerator struct {
	querier AggregateQuerier
	rnd     Shuffler
}

func NewPersonalizedHistoryGenerator(querier AggregateQuerier, rnd Shuffler) *PersonalizedHistoryGenerator {
	return &PersonalizedHistoryGenerator{querier: querier, rnd: rnd}
}

func (g *PersonalizedHistoryGenerator) Name() string { return StrategyPersonalized }

func (g *PersonalizedHistoryGenerator) Generate(ctx context.Context, in GenerationInput) ([]models.CandidateItem, error) {
	pattern := in.Pattern
	if !pattern.HasHistory() || len(pattern.PreferredCategories) == 0 {
		return nil, nil
	}

	items, err := g.querier.CategoryItems(ctx, in.TenantID, pattern.PreferredCategories)
	if err != nil {
		return nil, fmt.Errorf("failed to get category items: %w", err)
	}

	eligible := personalizedEligible(items, pattern)
	sampled := sampleItems(eligible, personalizedSampleSize, g.rnd)

	candidates := make([]models.CandidateItem, 0, len(sampled))
	for _, item := range sampled {
		candidates = append(candidates, models.CandidateItem{
			Item:       item,
			Confidence: personalizedConfidence,
			Reason:     fmt.Sprintf("Because you often order from %s", item.Category),
			Strategy:   StrategyPersonalized,
		})
	}

	return candidates, nil
}

// personalizedEligible keeps items in a preferred category that the customer doesn't already order often
func personalizedEligible(items []models.MenuItemRef, pattern models.CustomerOrderPattern) []models.MenuItemRef {
	categories := make(map[string]struct{}, len(pattern.PreferredCategories))
	for _, c := range pattern.PreferredCategories {
		categories[c] = struct{}{}
	}
	frequent := toSet(pattern.FrequentItemIDs)

	var eligible []models.MenuItemRef
	for _, item := range items {
		if _, ok := categories[item.Category]; !ok {
			continue
		}
		if _, ok := frequent[item.DbID]; ok {
			continue
		}
		eligible = append(eligible, item)
	}
	return eligible
}

// DietaryGenerator matches items against stated dietary preferences
type DietaryGenerator struct {
	querier AggregateQuerier
	rnd     Shuffler
}

func NewDietaryGenerator(querier AggregateQuerier, rnd Shuffler) *DietaryGenerator {
	return &DietaryGenerator{querier: querier, rnd: rnd}
}

func (g *DietaryGenerator) Name() string { return StrategyDietary }

func (g *DietaryGenerator) Generate(ctx context.Context, in GenerationInput) ([]models.CandidateItem, error) {
	tags := in.Pattern.DietaryPreferences
	if len(tags) == 0 {
		return nil, nil
	}

	items, err := g.querier.DietaryCompatibleItems(ctx, in.TenantID, tags)
	if err != nil {
		return nil, fmt.Errorf("failed to get dietary compatible items: %w", err)
	}

	reason := fmt.Sprintf("Matches your dietary preferences (%s)", strings.Join(tags, ", "))
	sampled := sampleItems(items, dietarySampleSize, g.rnd)

	candidates := make([]models.CandidateItem, 0, len(sampled))
	for _, item := range sampled {
		candidates = append(candidates, models.CandidateItem{
			Item:       item,
			Confidence: dietaryConfidence,
			Reason:     reason,
			Strategy:   StrategyDietary,
		})
	}

	return candidates, nil
}

// TrendingGenerator recommends the tenant's most ordered items of the last 30 days
type TrendingGenerator struct {
	querier AggregateQuerier
}

func NewTrendingGenerator(querier AggregateQuerier) *TrendingGenerator {
	return &TrendingGenerator{querier: querier}
}

func (g *TrendingGenerator) Name() string { return StrategyTrending }

func (g *TrendingGenerator) Generate(ctx context.Context, in GenerationInput) ([]models.CandidateItem, error) {
	rows, err := g.querier.TrendingItems(ctx, in.TenantID, trendingWindowDays, trendingMinOrderCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get trending items: %w", err)
	}

	// threshold and ordering hold regardless of backend
	kept := make([]models.TrendingRow, 0, len(rows))
	for _, row := range rows {
		if row.OrderCount >= trendingMinOrderCount {
			kept = append(kept, row)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].OrderCount != kept[j].OrderCount {
			return kept[i].OrderCount > kept[j].OrderCount
		}
		return kept[i].AvgRating > kept[j].AvgRating
	})
	if len(kept) > trendingLimit {
		kept = kept[:trendingLimit]
	}

	candidates := make([]models.CandidateItem, 0, len(kept))
	for _, row := range kept {
		candidates = append(candidates, models.CandidateItem{
			Item:       row.Item,
			Confidence: trendingConfidence,
			Reason:     fmt.Sprintf("Trending: ordered %d times in the last %d days", row.OrderCount, trendingWindowDays),
			Strategy:   StrategyTrending,
		})
	}

	return candidates, nil
}

// sampleItems picks up to k items at random without replacement
func sampleItems(items []models.MenuItemRef, k int, rnd Shuffler) []models.MenuItemRef {
	pool := make([]models.MenuItemRef, len(items))
	copy(pool, items)

	if rnd != nil {
		rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}
	if len(pool) > k {
		pool = pool[:k]
	}
	return pool
}

func toSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
