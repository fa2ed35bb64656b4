package services

import (
	"context"
	"sync"
	"time"

	"github.com/yishak-cs/menu-recommender/internal/models"
)

// fakeQuerier implements AggregateQuerier for testing
type fakeQuerier struct {
	coOccurrence    []models.CoOccurrenceRow
	frequent        map[int][]models.FrequentItemRow
	dietary         map[int][]string
	lastOrder       map[int][]int
	categoryItems   []models.MenuItemRef
	dietaryItems    []models.MenuItemRef
	trending        []models.TrendingRow
	err             error
	trendingErr     error
	coOccurrenceErr error

	mu              sync.Mutex
	coOccurrenceArg []int
	categoriesArg   []string
	trendingArgs    [2]int
}

func (f *fakeQuerier) CoOccurrenceCandidates(ctx context.Context, tenantID string, anchorIDs []int) ([]models.CoOccurrenceRow, error) {
	f.mu.Lock()
	f.coOccurrenceArg = anchorIDs
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.coOccurrenceErr != nil {
		return nil, f.coOccurrenceErr
	}
	return f.coOccurrence, nil
}

func (f *fakeQuerier) CustomerFrequentItems(ctx context.Context, customerID int, tenantID string) ([]models.FrequentItemRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.frequent[customerID], nil
}

func (f *fakeQuerier) CustomerDietaryPreferences(ctx context.Context, customerID int, tenantID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dietary[customerID], nil
}

func (f *fakeQuerier) CustomerLastOrderItems(ctx context.Context, customerID int, tenantID string) ([]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lastOrder[customerID], nil
}

func (f *fakeQuerier) CategoryItems(ctx context.Context, tenantID string, categories []string) ([]models.MenuItemRef, error) {
	f.mu.Lock()
	f.categoriesArg = categories
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.categoryItems, nil
}

func (f *fakeQuerier) DietaryCompatibleItems(ctx context.Context, tenantID string, tags []string) ([]models.MenuItemRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dietaryItems, nil
}

func (f *fakeQuerier) TrendingItems(ctx context.Context, tenantID string, windowDays, minOrderCount int) ([]models.TrendingRow, error) {
	f.mu.Lock()
	f.trendingArgs = [2]int{windowDays, minOrderCount}
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.trendingErr != nil {
		return nil, f.trendingErr
	}
	return f.trending, nil
}

// noShuffle keeps the input order so sampling takes the first k
type noShuffle struct{}

func (noShuffle) Shuffle(n int, swap func(i, j int)) {}

// reverseShuffle reverses the input, enough to prove sampling draws from the shuffled order
type reverseShuffle struct{}

func (reverseShuffle) Shuffle(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

// fakeStore implements InteractionStore for testing
type fakeStore struct {
	mu           sync.Mutex
	interactions []models.RecommendationInteraction
	insertErr    error
	failAfter    int
	countErr     error
	sinceArg     time.Time
}

func (s *fakeStore) InsertInteraction(ctx context.Context, interaction models.RecommendationInteraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil && len(s.interactions) >= s.failAfter {
		return s.insertErr
	}
	s.interactions = append(s.interactions, interaction)
	return nil
}

func (s *fakeStore) CountActions(ctx context.Context, tenantID string, since time.Time) (map[models.InteractionAction]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinceArg = since
	if s.countErr != nil {
		return nil, s.countErr
	}
	counts := make(map[models.InteractionAction]int)
	for _, in := range s.interactions {
		if in.TenantID == tenantID && !in.CreatedAt.Before(since) {
			counts[in.Action]++
		}
	}
	return counts, nil
}

// fakePublisher implements InteractionPublisher for testing
type fakePublisher struct {
	mu        sync.Mutex
	published []models.RecommendationInteraction
	err       error
}

func (p *fakePublisher) PublishInteraction(ctx context.Context, interaction models.RecommendationInteraction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, interaction)
	return nil
}

func item(id int, category string) models.MenuItemRef {
	return models.MenuItemRef{DbID: id, Name: "item", Category: category, Price: 9.5}
}
