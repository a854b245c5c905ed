package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"commandcenter/internal/models"
)

const feedChannel = "feed:events"

// RedisBridge mirrors change feed events across server instances via Redis
// pub/sub. Each instance publishes its local events and delivers everyone
// else's; events from this instance are recognized by InstanceID and skipped.
type RedisBridge struct {
	client     *redis.Client
	feed       *ChangeFeed
	instanceID string
	pubsub     *redis.PubSub
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewRedisBridge creates a bridge for the given Redis URL.
func NewRedisBridge(redisURL string, feed *ChangeFeed, instanceID string) (*RedisBridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisBridge{
		client:     redis.NewClient(opts),
		feed:       feed,
		instanceID: instanceID,
		ctx:        ctx,
		cancel:     cancel,
	}

	if err := b.client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, err
	}

	return b, nil
}

// Start attaches the bridge to the local feed and begins relaying remote events.
func (b *RedisBridge) Start() error {
	b.feed.AttachRemote(b.publish)

	b.pubsub = b.client.Subscribe(b.ctx, feedChannel)
	if _, err := b.pubsub.Receive(b.ctx); err != nil {
		return err
	}

	go b.processMessages()

	log.Printf("✅ [FEED-REDIS] Relaying change feed events (instance: %s)", b.instanceID)
	return nil
}

func (b *RedisBridge) publish(event models.ChangeEvent) {
	event.InstanceID = b.instanceID
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ [FEED-REDIS] Failed to marshal event: %v", err)
		return
	}
	if err := b.client.Publish(b.ctx, feedChannel, payload).Err(); err != nil {
		log.Printf("⚠️ [FEED-REDIS] Failed to publish event: %v", err)
	}
}

func (b *RedisBridge) processMessages() {
	for msg := range b.pubsub.Channel() {
		var event models.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("⚠️ [FEED-REDIS] Dropping malformed event: %v", err)
			continue
		}
		if event.InstanceID == b.instanceID {
			continue // our own echo
		}
		b.feed.Deliver(event)
	}
}

// Stop tears the bridge down.
func (b *RedisBridge) Stop() {
	b.cancel()
	if b.pubsub != nil {
		b.pubsub.Close()
	}
	b.client.Close()
}
