package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// ChannelPrefix prefixes the Redis channel of each room.
	ChannelPrefix  = "vimeet:room:"
	publishTimeout = 5 * time.Second
	mirrorQueue    = 1024
)

// MirroredEvent is the message published to Redis for each room event.
type MirroredEvent struct {
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
	At    int64           `json:"at"`
}

// Publisher is the slice of the go-redis client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisMirror publishes room events to Redis for outside observers. The hub
// hands events over without blocking; a full queue drops the event.
type RedisMirror struct {
	client Publisher
	logger *zap.Logger
	queue  chan MirroredEvent
}

// NewRedisMirror creates a mirror. Call Run to start publishing.
func NewRedisMirror(client Publisher, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{client: client, logger: logger, queue: make(chan MirroredEvent, mirrorQueue)}
}

// RoomChannel returns the Redis channel for room.
func RoomChannel(room string) string {
	return ChannelPrefix + room
}

// PublishRoomEvent queues frame for publishing.
func (r *RedisMirror) PublishRoomEvent(room string, frame []byte) {
	select {
	case r.queue <- MirroredEvent{Room: room, Frame: frame, At: time.Now().Unix()}:
	default:
		r.logger.Warn("redis mirror queue full, event dropped", zap.String("room", room))
	}
}

// Run publishes queued events until ctx is cancelled.
func (r *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.queue:
			if err := r.publish(ctx, ev); err != nil {
				r.logger.Warn("redis mirror publish failed", zap.String("room", ev.Room), zap.Error(err))
			}
		}
	}
}

func (r *RedisMirror) publish(ctx context.Context, ev MirroredEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, RoomChannel(ev.Room), body).Err()
}

// SubscribeRoom subscribes to a room's mirror channel and calls handler for each event
// until ctx is cancelled.
func SubscribeRoom(ctx context.Context, client *redis.Client, room string, handler func(MirroredEvent)) error {
	pubsub := client.Subscribe(ctx, RoomChannel(room))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev MirroredEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handler(ev)
		}
	}
}
