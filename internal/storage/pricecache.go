package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"binance-market-sentry/pkg/types"
)

// pricePoint Redis中备份的价格点
type pricePoint struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// PriceCache 最新价旁路备份。Redis不可用时退化为空操作，
// 内存中的监控状态始终权威，备份失败不影响行情处理
type PriceCache struct {
	client   *redis.Client
	useRedis bool
}

// NewPriceCache 创建价格备份缓存，未配置或连接失败时使用纯内存模式
func NewPriceCache(config types.RedisConfig) *PriceCache {
	cache := &PriceCache{}

	if config.URL == "" {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
		return cache
	}

	cache.client = redis.NewClient(&redis.Options{
		Addr:     config.URL,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cache.client.Ping(ctx).Result(); err != nil {
		zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
		return cache
	}

	zap.L().Info("✅ Redis连接成功")
	cache.useRedis = true
	return cache
}

// Record 异步备份一个价格点，以时间戳为分数写入Sorted Set
func (c *PriceCache) Record(symbol string, price float64, tsMs int64) {
	if !c.useRedis {
		return
	}
	go c.backup(symbol, price, tsMs)
}

func (c *PriceCache) backup(symbol string, price float64, tsMs int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf("sentry:price:%s", symbol)
	value, err := json.Marshal(pricePoint{Price: price, Timestamp: tsMs})
	if err != nil {
		return
	}

	if err := c.client.ZAdd(ctx, key, &redis.Z{
		Score:  float64(tsMs),
		Member: value,
	}).Err(); err != nil {
		zap.L().Debug("Redis备份价格失败", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	// 只保留最近10分钟的备份
	c.client.Expire(ctx, key, 10*time.Minute)
	cutoff := time.Now().Add(-10 * time.Minute).UnixMilli()
	c.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff))
}

// Close 关闭Redis连接
func (c *PriceCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
