// Package cache keeps coupon metadata in Redis for the read path.
// Slot availability is never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/promo-stock-ledger/internal/model"
)

const couponKeyPrefix = "coupon:code:"

// CouponCache is a read-through cache of coupons keyed by code.
type CouponCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCouponCache creates a CouponCache whose entries expire after ttl.
func NewCouponCache(client redis.Cmdable, ttl time.Duration) *CouponCache {
	return &CouponCache{client: client, ttl: ttl}
}

// Get returns the cached coupon, or nil, nil on a miss.
func (c *CouponCache) Get(ctx context.Context, code string) (*model.Coupon, error) {
	data, err := c.client.Get(ctx, couponKeyPrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached coupon %s: %w", code, err)
	}

	var coupon model.Coupon
	if err := json.Unmarshal(data, &coupon); err != nil {
		return nil, fmt.Errorf("decode cached coupon %s: %w", code, err)
	}
	return &coupon, nil
}

func (c *CouponCache) Set(ctx context.Context, coupon *model.Coupon) error {
	data, err := json.Marshal(coupon)
	if err != nil {
		return fmt.Errorf("encode coupon %s: %w", coupon.Code, err)
	}
	if err := c.client.Set(ctx, couponKeyPrefix+coupon.Code, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache coupon %s: %w", coupon.Code, err)
	}
	return nil
}

func (c *CouponCache) Delete(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, couponKeyPrefix+code).Err(); err != nil {
		return fmt.Errorf("evict coupon %s: %w", code, err)
	}
	return nil
}
