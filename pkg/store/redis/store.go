package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erain9/crossmatch/pkg/core"
)

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

var defaultOptions = &RedisOptions{
	Addr:     "localhost:6379",
	Password: "",
	DB:       0,
}

// SetDefaultRedisOptions sets the default options for Redis connections
func SetDefaultRedisOptions(options *RedisOptions) {
	defaultOptions = options
}

// GetRedisClient creates a new Redis client using the default options
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     defaultOptions.Addr,
		Password: defaultOptions.Password,
		DB:       defaultOptions.DB,
	})
}

// OrderStore mirrors parked trigger orders into Redis. The in-memory
// trigger indexes stay authoritative; the mirror exists so operators and
// downstream services can inspect resting triggers without asking the
// engine.
type OrderStore struct {
	sync.RWMutex
	client *redis.Client
	ctx    context.Context
	prefix string
	logger *zap.Logger
}

// NewOrderStore creates a new instance of OrderStore
func NewOrderStore(client *redis.Client, prefix string, logger *zap.Logger) *OrderStore {
	return &OrderStore{
		client: client,
		ctx:    context.Background(),
		prefix: prefix,
		logger: logger,
	}
}

// SaveOrder stores a trigger order in the per-market hash
func (s *OrderStore) SaveOrder(order *core.Order) error {
	s.Lock()
	defer s.Unlock()

	data, err := json.Marshal(order)
	if err != nil {
		s.logger.Error("failed to marshal trigger order",
			zap.Uint64("orderID", order.OrderID),
			zap.Error(err))
		return err
	}

	key := s.marketKey(order.MarketID)
	if err := s.client.HSet(s.ctx, key, fieldFor(order.OrderID), data).Err(); err != nil {
		s.logger.Error("failed to store trigger order",
			zap.Uint64("orderID", order.OrderID),
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	return nil
}

// DeleteOrder removes a trigger order from the per-market hash
func (s *OrderStore) DeleteOrder(marketID, orderID uint64) error {
	s.Lock()
	defer s.Unlock()

	key := s.marketKey(marketID)
	if err := s.client.HDel(s.ctx, key, fieldFor(orderID)).Err(); err != nil {
		s.logger.Error("failed to delete trigger order",
			zap.Uint64("orderID", orderID),
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	return nil
}

// LoadOrders retrieves all mirrored trigger orders of a market
func (s *OrderStore) LoadOrders(marketID uint64) ([]core.Order, error) {
	s.RLock()
	defer s.RUnlock()

	key := s.marketKey(marketID)
	fields, err := s.client.HGetAll(s.ctx, key).Result()
	if err != nil {
		s.logger.Error("failed to load trigger orders",
			zap.String("key", key),
			zap.Error(err))
		return nil, err
	}

	orders := make([]core.Order, 0, len(fields))
	for field, raw := range fields {
		var order core.Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			s.logger.Warn("skipping unreadable trigger order",
				zap.String("key", key),
				zap.String("field", field),
				zap.Error(err))
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ClearMarket drops the whole mirror of one market
func (s *OrderStore) ClearMarket(marketID uint64) error {
	s.Lock()
	defer s.Unlock()
	return s.client.Del(s.ctx, s.marketKey(marketID)).Err()
}

func (s *OrderStore) marketKey(marketID uint64) string {
	return fmt.Sprintf("%s:triggers:%d", s.prefix, marketID)
}

func fieldFor(orderID uint64) string {
	return strconv.FormatUint(orderID, 10)
}
