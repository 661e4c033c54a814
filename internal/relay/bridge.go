package relay

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/entity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultRedisChannel = "relay:messages"
	DefaultNATSSubject  = "relay.messages"
)

func encode(msg entity.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// accept decodes a bridged payload and hands it to deliver unless it came from nodeID.
func accept(nodeID string, data []byte, deliver func(entity.Message)) {
	var msg entity.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Msg("discarding malformed bridged message")
		return
	}
	if msg.Origin == nodeID || msg.RoomID == "" {
		return
	}
	deliver(msg)
}

type RedisBridge struct {
	rdb     *redis.Client
	channel string
	nodeID  string
}

func NewRedisBridge(rdb *redis.Client, nodeID string) *RedisBridge {
	return &RedisBridge{rdb: rdb, channel: DefaultRedisChannel, nodeID: nodeID}
}

func (b *RedisBridge) Forward(ctx context.Context, msg entity.Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBridge) Listen(ctx context.Context, deliver func(entity.Message)) error {
	ps := b.rdb.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			accept(b.nodeID, []byte(m.Payload), deliver)
		}
	}
}

type NATSBridge struct {
	nc      *nats.Conn
	subject string
	nodeID  string
}

func NewNATSBridge(nc *nats.Conn, nodeID string) *NATSBridge {
	return &NATSBridge{nc: nc, subject: DefaultNATSSubject, nodeID: nodeID}
}

func (b *NATSBridge) Forward(_ context.Context, msg entity.Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

func (b *NATSBridge) Listen(ctx context.Context, deliver func(entity.Message)) error {
	ch := make(chan *nats.Msg, 256)
	sub, err := b.nc.ChanSubscribe(b.subject, ch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-ch:
			accept(b.nodeID, m.Data, deliver)
		}
	}
}
