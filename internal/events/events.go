// Package events publishes stock-change notifications so other screens can
// refetch instead of listening for ambient window events.
package events

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// StockChannel is the pub/sub channel carrying StockChanged payloads.
const StockChannel = "apotekkita.stock"

type StockChanged struct {
	ProductIDs []string  `json:"product_ids"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

const (
	ReasonPurchase     = "purchase"
	ReasonRegistration = "registration"
	ReasonSale         = "sale"
	ReasonPriceChange  = "price_change"
)

type Publisher interface {
	PublishStockChanged(ctx context.Context, reason string, productIDs ...string) error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishStockChanged(_ context.Context, _ string, _ ...string) error {
	return nil
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(addr string, password string, db int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) PublishStockChanged(ctx context.Context, reason string, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(StockChanged{
		ProductIDs: productIDs,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, StockChannel, payload).Err()
}
