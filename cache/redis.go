package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-svc/config"
	"catalog-svc/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned when the requested entry is not cached.
var ErrMiss = errors.New("cache miss")

const listGenerationKey = "products:list:generation"

var cacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "product_cache_lookups_total",
		Help: "Total number of product cache lookups",
	},
	[]string{"kind", "result"},
)

func init() {
	prometheus.MustRegister(cacheLookupsTotal)
}

func InitRedis(cfg config.CacheConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.Addr()))
	return rdb, nil
}

// ProductCache stores single products and list pages as JSON. List pages are
// keyed by a generation counter; bumping it orphans every cached page, which
// then expires through its TTL.
type ProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProductCache(rdb *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

func productKey(id int) string {
	return fmt.Sprintf("product:%d", id)
}

func listKey(generation int64, q models.ListQuery) string {
	return fmt.Sprintf("products:list:g=%d:page=%d:limit=%d:sort=%s:%s:search=%s",
		generation, q.Page, q.Limit, q.SortBy, q.SortOrder, q.Search)
}

func (c *ProductCache) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	var p models.Product
	if err := c.get(ctx, "product", productKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *ProductCache) SetProduct(ctx context.Context, p *models.Product) error {
	return c.set(ctx, productKey(p.ID), p)
}

func (c *ProductCache) DeleteProduct(ctx context.Context, id int) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}

func (c *ProductCache) GetList(ctx context.Context, q models.ListQuery) (*models.ProductPage, error) {
	generation, err := c.generation(ctx)
	if err != nil {
		return nil, err
	}

	var page models.ProductPage
	if err := c.get(ctx, "list", listKey(generation, q), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *ProductCache) SetList(ctx context.Context, q models.ListQuery, page *models.ProductPage) error {
	generation, err := c.generation(ctx)
	if err != nil {
		return err
	}
	return c.set(ctx, listKey(generation, q), page)
}

// InvalidateLists makes every cached list page unreachable.
func (c *ProductCache) InvalidateLists(ctx context.Context) error {
	return c.rdb.Incr(ctx, listGenerationKey).Err()
}

func (c *ProductCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *ProductCache) generation(ctx context.Context) (int64, error) {
	generation, err := c.rdb.Get(ctx, listGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}

func (c *ProductCache) get(ctx context.Context, kind, key string, dest any) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cacheLookupsTotal.WithLabelValues(kind, "miss").Inc()
			return ErrMiss
		}
		cacheLookupsTotal.WithLabelValues(kind, "error").Inc()
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		cacheLookupsTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("failed to decode cached %s: %w", kind, err)
	}
	cacheLookupsTotal.WithLabelValues(kind, "hit").Inc()
	return nil
}

func (c *ProductCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}
