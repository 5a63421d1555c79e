// Package cache はRedisを用いたキャッシュを提供する。
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSubscriberCountTTL は購読者数キャッシュのデフォルト有効期間。
const DefaultSubscriberCountTTL = 5 * time.Minute

const subscriberCountKeyPrefix = "vipchannel:subscribers:"

// SubscriberCountCache はチャンネルの購読者数をRedisにキャッシュする。
// 購読状態そのものは保持しない。
type SubscriberCountCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewSubscriberCountCache はSubscriberCountCacheを生成する。ttlが0以下の場合はデフォルト値を使用する。
func NewSubscriberCountCache(rdb redis.Cmdable, ttl time.Duration) *SubscriberCountCache {
	if ttl <= 0 {
		ttl = DefaultSubscriberCountTTL
	}
	return &SubscriberCountCache{rdb: rdb, ttl: ttl}
}

// NewClient はアドレスからRedisクライアントを生成し、疎通を確認する。
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 0})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addr, err)
	}
	return rdb, nil
}

func subscriberCountKey(channelID string) string {
	return subscriberCountKeyPrefix + channelID
}

// Get はキャッシュされた購読者数を返す。キャッシュがない場合はokがfalseとなる。
func (c *SubscriberCountCache) Get(ctx context.Context, channelID string) (int, bool, error) {
	v, err := c.rdb.Get(ctx, subscriberCountKey(channelID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("購読者数キャッシュの取得に失敗しました: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		// 壊れた値はキャッシュなしとして扱う
		return 0, false, nil
	}
	return n, true, nil
}

// Set は購読者数をキャッシュする。
func (c *SubscriberCountCache) Set(ctx context.Context, channelID string, count int) error {
	if err := c.rdb.Set(ctx, subscriberCountKey(channelID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("購読者数キャッシュの保存に失敗しました: %w", err)
	}
	return nil
}

// Invalidate はキャッシュを削除する。
func (c *SubscriberCountCache) Invalidate(ctx context.Context, channelID string) error {
	if err := c.rdb.Del(ctx, subscriberCountKey(channelID)).Err(); err != nil {
		return fmt.Errorf("購読者数キャッシュの削除に失敗しました: %w", err)
	}
	return nil
}
