package competitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/bm-repricer/internal/model"
)

// DefaultOfferTTL is how long live offers stay cached.
const DefaultOfferTTL = 60 * time.Second

// RedisCache caches live offers in redis as JSON.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. A non-positive ttl uses DefaultOfferTTL.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultOfferTTL
	}
	return &RedisCache{
		client: client,
		prefix: "repricer:offers:",
		ttl:    ttl,
	}
}

// Key returns the redis key for a listing.
func (c *RedisCache) Key(listingID uuid.UUID) string {
	return c.prefix + listingID.String()
}

// Get returns cached offers. ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, listingID uuid.UUID) ([]model.CompetitorOffer, bool, error) {
	data, err := c.client.Get(ctx, c.Key(listingID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get offers from redis: %w", err)
	}

	offers, err := decodeOffers(data)
	if err != nil {
		return nil, false, err
	}
	return offers, true, nil
}

// Set caches live offers. Test offers are filtered out.
func (c *RedisCache) Set(ctx context.Context, listingID uuid.UUID, offers []model.CompetitorOffer) error {
	data, err := encodeOffers(offers)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.Key(listingID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set offers in redis: %w", err)
	}
	return nil
}

// Invalidate drops the cached offers of a listing.
func (c *RedisCache) Invalidate(ctx context.Context, listingID uuid.UUID) error {
	return c.client.Del(ctx, c.Key(listingID)).Err()
}

func encodeOffers(offers []model.CompetitorOffer) ([]byte, error) {
	live := make([]model.CompetitorOffer, 0, len(offers))
	for _, o := range offers {
		if !o.IsTest {
			live = append(live, o)
		}
	}
	data, err := json.Marshal(live)
	if err != nil {
		return nil, fmt.Errorf("marshal offers: %w", err)
	}
	return data, nil
}

func decodeOffers(data []byte) ([]model.CompetitorOffer, error) {
	var offers []model.CompetitorOffer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, fmt.Errorf("unmarshal offers: %w", err)
	}
	return offers, nil
}
