package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yishak-cs/menu-recommender/internal/models"
)

// stubGenerator returns fixed candidates or an error
type stubGenerator struct {
	name       string
	candidates []models.CandidateItem
	err        error
	delay      time.Duration
	panics     bool
	block      chan struct{} // ignores ctx until closed
}

func (g *stubGenerator) Name() string { return g.name }

func (g *stubGenerator) Generate(ctx context.Context, in GenerationInput) ([]models.CandidateItem, error) {
	if g.panics {
		panic("boom")
	}
	if g.block != nil {
		<-g.block
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.candidates, g.err
}

func candidate(id int, confidence float64, strategy string) models.CandidateItem {
	return models.CandidateItem{Item: item(id, "x"), Confidence: confidence, Strategy: strategy}
}

func newTestService(generators ...Generator) *RecommendationService {
	return NewRecommendationServiceWithGenerators(&fakeQuerier{}, generators, RecommendationConfig{}, zerolog.Nop())
}

func ids(items []models.CandidateItem) []int {
	out := make([]int, len(items))
	for i, c := range items {
		out[i] = c.Item.DbID
	}
	return out
}

func TestGetRecommendationsMergeOrder(t *testing.T) {
	svc := newTestService(
		&stubGenerator{name: "personalized", candidates: []models.CandidateItem{
			candidate(1, 0.7, "personalized"), candidate(2, 0.7, "personalized"),
		}},
		&stubGenerator{name: "complementary", candidates: []models.CandidateItem{
			candidate(3, 0.4, "complementary"), candidate(1, 0.9, "complementary"), candidate(9, 0.9, "complementary"),
		}},
		&stubGenerator{name: "dietary", candidates: []models.CandidateItem{
			candidate(4, 0.8, "dietary"), candidate(2, 0.8, "dietary"),
		}},
		&stubGenerator{name: "trending", candidates: []models.CandidateItem{
			candidate(5, 0.6, "trending"), candidate(6, 0.6, "trending"),
		}},
	)

	got, err := svc.GetRecommendations(context.Background(), RecommendationRequest{
		TenantID:            "t1",
		CurrentSelectionIDs: []int{9},
		MaxCount:            10,
	})
	require.NoError(t, err)

	// duplicate 1 and 2 keep their first (personalized) occurrence; 9 is already selected
	assert.Equal(t, []int{4, 1, 2, 5, 6, 3}, ids(got))
	assert.Equal(t, "personalized", got[1].Strategy)
	assert.Equal(t, 0.7, got[1].Confidence)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Confidence, got[i].Confidence)
	}
}

func TestGetRecommendationsTruncatesAndDefaults(t *testing.T) {
	var many []models.CandidateItem
	for id := 1; id <= 12; id++ {
		many = append(many, candidate(id, 0.6, "trending"))
	}
	svc := newTestService(&stubGenerator{name: "trending", candidates: many})

	got, err := svc.GetRecommendations(context.Background(), RecommendationRequest{TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ids(got))

	got, err = svc.GetRecommendations(context.Background(), RecommendationRequest{TenantID: "t1", MaxCount: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = svc.GetRecommendations(context.Background(), RecommendationRequest{TenantID: "t1", MaxCount: 1000})
	require.NoError(t, err)
	assert.Len(t, got, 12)
}

func TestGetRecommendationsToleratesGeneratorFailures(t *testing.T) {
	svc := NewRecommendationServiceWithGenerators(&fakeQuerier{}, []Generator{
		&stubGenerator{name: "broken", err: errors.New("db down")},
		&stubGenerator{name: "panicky", panics: true},
		&stubGenerator{name: "slow", delay: time.Second, candidates: []models.CandidateItem{candidate(8, 0.9, "slow")}},
		&stubGenerator{name: "ok", candidates: []models.CandidateItem{candidate(5, 0.6, "ok")}},
	}, RecommendationConfig{GeneratorTimeout: 20 * time.Millisecond}, zerolog.Nop())

	got, err := svc.GetRecommendations(context.Background(), RecommendationRequest{TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []int{5}, ids(got))
}

func TestGetRecommendationsAllEmpty(t *testing.T) {
	svc := newTestService(
		&stubGenerator{name: "a"},
		&stubGenerator{name: "b"},
	)
	got, err := svc.GetRecommendations(context.Background(), RecommendationRequest{TenantID: "t1"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetRecommendationsRequiresTenant(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetRecommendations(context.Background(), RecommendationRequest{TenantID: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetRecommendationsAggregateLayerDown(t *testing.T) {
	q := &fakeQuerier{err: errors.New("connection refused")}
	svc := NewRecommendationService(q, noShuffle{}, RecommendationConfig{}, zerolog.Nop())

	got, err := svc.GetRecommendations(context.Background(), RecommendationRequest{
		CustomerID:          7,
		TenantID:            "t1",
		CurrentSelectionIDs: []int{1},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetRecommendationsEndToEnd(t *testing.T) {
	q := &fakeQuerier{
		frequent: map[int][]models.FrequentItemRow{
			7: {{ItemID: 10, Category: "pizza", Times: 9}, {ItemID: 11, Category: "pizza", Times: 4}},
		},
		dietary:       map[int][]string{7: {"vegetarian"}},
		lastOrder:     map[int][]int{7: {10}},
		categoryItems: []models.MenuItemRef{item(10, "pizza"), item(12, "pizza")},
		coOccurrence: []models.CoOccurrenceRow{
			{Item: item(20, "drinks"), CoOccurrenceCount: 5, TotalAnchorOrders: 10},
			{Item: item(12, "pizza"), CoOccurrenceCount: 9, TotalAnchorOrders: 10},
		},
		dietaryItems: []models.MenuItemRef{item(30, "salad"), item(1, "mains")},
		trending: []models.TrendingRow{
			{Item: item(40, "mains"), OrderCount: 20, AvgRating: 4.5},
			{Item: item(41, "mains"), OrderCount: 4, AvgRating: 5},
		},
	}
	svc := NewRecommendationService(q, noShuffle{}, RecommendationConfig{}, zerolog.Nop())

	got, err := svc.GetRecommendations(context.Background(), RecommendationRequest{
		CustomerID:          7,
		TenantID:            "t1",
		CurrentSelectionIDs: []int{1},
		MaxCount:            10,
	})
	require.NoError(t, err)

	// 12 appears in personalized (0.7) and complementary (0.72); personalized came first
	assert.Equal(t, []int{30, 12, 40, 20}, ids(got))
	assert.Equal(t, StrategyDietary, got[0].Strategy)
	assert.Equal(t, StrategyPersonalized, got[1].Strategy)
	assert.InDelta(t, 0.4, got[3].Confidence, 1e-9)

	seen := map[int]bool{}
	for _, c := range got {
		assert.False(t, seen[c.Item.DbID], "duplicate %d", c.Item.DbID)
		seen[c.Item.DbID] = true
		assert.NotEqual(t, 1, c.Item.DbID)
		assert.True(t, c.Confidence >= 0 && c.Confidence <= 1)
	}
}

func TestResolveOrderPattern(t *testing.T) {
	q := &fakeQuerier{
		frequent: map[int][]models.FrequentItemRow{
			3: {{ItemID: 1, Category: "pizza"}, {ItemID: 2, Category: "drinks"}, {ItemID: 3, Category: "pizza"}},
		},
		dietary:   map[int][]string{3: {"halal"}},
		lastOrder: map[int][]int{3: {2, 3}},
	}
	svc := NewRecommendationService(q, noShuffle{}, RecommendationConfig{}, zerolog.Nop())

	p := svc.ResolveOrderPattern(context.Background(), 3, "t1")
	assert.Equal(t, []int{1, 2, 3}, p.FrequentItemIDs)
	assert.Equal(t, []string{"pizza", "drinks"}, p.PreferredCategories)
	assert.Equal(t, []string{"halal"}, p.DietaryPreferences)
	assert.Equal(t, []int{2, 3}, p.LastOrderItemIDs)

	unknown := svc.ResolveOrderPattern(context.Background(), 99, "t1")
	assert.False(t, unknown.HasHistory())

	guest := svc.ResolveOrderPattern(context.Background(), 0, "t1")
	assert.Equal(t, models.CustomerOrderPattern{}, guest)
}

func TestMergeCandidatesClampsConfidence(t *testing.T) {
	got := mergeCandidates([][]models.CandidateItem{
		{candidate(1, 1.4, "a"), candidate(2, -0.2, "a")},
	}, nil, 5)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.Equal(t, 0.0, got[1].Confidence)
}

// hangingQuerier stalls the customer lookups the way an unresponsive store does
type hangingQuerier struct {
	*fakeQuerier
	release chan struct{}
}

// CustomerFrequentItems ignores ctx entirely
func (h *hangingQuerier) CustomerFrequentItems(ctx context.Context, customerID int, tenantID string) ([]models.FrequentItemRow, error) {
	<-h.release
	return nil, nil
}

// CustomerDietaryPreferences honours ctx but never answers before it expires
func (h *hangingQuerier) CustomerDietaryPreferences(ctx context.Context, customerID int, tenantID string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newHangingQuerier(t *testing.T, base *fakeQuerier) *hangingQuerier {
	q := &hangingQuerier{fakeQuerier: base, release: make(chan struct{})}
	t.Cleanup(func() { close(q.release) })
	return q
}

func TestResolveOrderPatternBoundedByGeneratorTimeout(t *testing.T) {
	q := newHangingQuerier(t, &fakeQuerier{lastOrder: map[int][]int{7: {4, 5}}})
	svc := NewRecommendationService(q, noShuffle{}, RecommendationConfig{GeneratorTimeout: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	p := svc.ResolveOrderPattern(ctx, 7, "t1")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Empty(t, p.FrequentItemIDs)
	assert.Empty(t, p.DietaryPreferences)
	assert.Equal(t, []int{4, 5}, p.LastOrderItemIDs)
}

func TestGetRecommendationsUnresponsiveStore(t *testing.T) {
	q := newHangingQuerier(t, &fakeQuerier{
		trending: []models.TrendingRow{{Item: item(40, "mains"), OrderCount: 20, AvgRating: 4.5}},
	})
	svc := NewRecommendationService(q, noShuffle{}, RecommendationConfig{GeneratorTimeout: 20 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	got, err := svc.GetRecommendations(ctx, RecommendationRequest{CustomerID: 7, TenantID: "t1"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, []int{40}, ids(got))
}

func TestGetRecommendationsAbandonsGeneratorIgnoringDeadline(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	svc := NewRecommendationServiceWithGenerators(&fakeQuerier{}, []Generator{
		&stubGenerator{name: "stuck", block: block, candidates: []models.CandidateItem{candidate(8, 0.9, "stuck")}},
		&stubGenerator{name: "ok", candidates: []models.CandidateItem{candidate(5, 0.6, "ok")}},
	}, RecommendationConfig{GeneratorTimeout: 20 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	got, err := svc.GetRecommendations(context.Background(), RecommendationRequest{TenantID: "t1"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, []int{5}, ids(got))
}

func TestWithDeadlineRecoversPanics(t *testing.T) {
	_, err := withDeadline(context.Background(), func(context.Context) (int, error) {
		panic("bad row")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad row")
}
