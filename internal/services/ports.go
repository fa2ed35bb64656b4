package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/yishak-cs/menu-recommender/internal/models"
)

// ErrInvalidRequest is returned for requests the caller must fix before retrying
var ErrInvalidRequest = errors.New("invalid request")

// AggregateQuerier is the read-only aggregate query layer over menu, orders and customers.
// Implemented by the Postgres and Neo4j backends in the database package.
type AggregateQuerier interface {
	// CoOccurrenceCandidates returns non-anchor items that share orders with any anchor item.
	CoOccurrenceCandidates(ctx context.Context, tenantID string, anchorIDs []int) ([]models.CoOccurrenceRow, error)

	// CustomerFrequentItems returns the customer's most ordered items, most frequent first.
	CustomerFrequentItems(ctx context.Context, customerID int, tenantID string) ([]models.FrequentItemRow, error)

	CustomerDietaryPreferences(ctx context.Context, customerID int, tenantID string) ([]string, error)

	CustomerLastOrderItems(ctx context.Context, customerID int, tenantID string) ([]int, error)

	// CategoryItems returns available items in any of the given categories.
	CategoryItems(ctx context.Context, tenantID string, categories []string) ([]models.MenuItemRef, error)

	// DietaryCompatibleItems returns available items tagged with at least one of tags.
	DietaryCompatibleItems(ctx context.Context, tenantID string, tags []string) ([]models.MenuItemRef, error)

	TrendingItems(ctx context.Context, tenantID string, windowDays, minOrderCount int) ([]models.TrendingRow, error)
}

// InteractionStore is the append-only interaction log
type InteractionStore interface {
	InsertInteraction(ctx context.Context, interaction models.RecommendationInteraction) error

	// CountActions returns the number of records per action for the tenant since the given time.
	CountActions(ctx context.Context, tenantID string, since time.Time) (map[models.InteractionAction]int, error)
}

// InteractionPublisher streams recorded interactions to downstream consumers
type InteractionPublisher interface {
	PublishInteraction(ctx context.Context, interaction models.RecommendationInteraction) error
}

// Shuffler is the random source used for sampling. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// lockedRand makes a *rand.Rand safe for concurrent generators
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLockedRand returns a concurrency-safe Shuffler seeded with seed.
// A zero seed uses the current time.
func NewLockedRand(seed int64) Shuffler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // sampling only
}

func (r *lockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(n, swap)
}
