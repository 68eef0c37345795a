package server

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"ripple-chat/pkg/logger"
)

const roomChannelPrefix = "room:"

// Bridge fans room frames out across server instances through Redis Pub/Sub.
// Each frame carries the publishing instance's id so a node never re-delivers
// its own broadcasts.
type Bridge struct {
	rdb        *goredis.Client
	hub        *Hub
	instanceID string
	log        *logger.Logger
}

type bridgeFrame struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

func NewBridge(rdb *goredis.Client, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Bridge{
		rdb:        rdb,
		instanceID: uuid.New().String(),
		log:        log,
	}
}

// Publish forwards a room frame to the other instances.
func (b *Bridge) Publish(chatID string, frame []byte) {
	payload, err := json.Marshal(bridgeFrame{Origin: b.instanceID, Frame: frame})
	if err != nil {
		return
	}
	if err := b.rdb.Publish(context.Background(), roomChannelPrefix+chatID, payload).Err(); err != nil {
		b.log.Warnf("bridge publish to %s failed: %v", chatID, err)
	}
}

// Run subscribes to all room channels and replays foreign frames into the
// local hub until the context ends.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var wrapped bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &wrapped); err != nil {
				continue
			}
			if wrapped.Origin == b.instanceID {
				continue
			}
			chatID := strings.TrimPrefix(msg.Channel, roomChannelPrefix)
			b.hub.Broadcast(chatID, wrapped.Frame)
		}
	}
}
