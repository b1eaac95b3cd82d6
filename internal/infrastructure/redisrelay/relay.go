// Package redisrelay shares room broadcasts between server instances over Redis pub/sub.
package redisrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bazaar-hub/bazaar/internal/infrastructure/realtime"
)

// DefaultChannel carries every room frame of the cluster.
const DefaultChannel = "bazaar:rooms"

type envelope struct {
	Node    string          `json:"node"`
	Room    uuid.UUID       `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Relay implements realtime.Broadcaster. Frames are delivered to local members directly and
// published for the other nodes, which skip frames carrying their own node id.
type Relay struct {
	client  *redis.Client
	hub     *realtime.Hub
	channel string
	nodeID  string
	logger  zerolog.Logger
}

// NewClient connects to the Redis server at url and verifies it answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("redis: url is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func New(client *redis.Client, hub *realtime.Hub, logger zerolog.Logger) *Relay {
	r := &Relay{
		client:  client,
		hub:     hub,
		channel: DefaultChannel,
		nodeID:  ulid.Make().String(),
	}
	r.logger = logger.With().Str("component", "redisrelay").Str("node_id", r.nodeID).Logger()
	return r
}

func (r *Relay) NodeID() string {
	return r.nodeID
}

// Broadcast delivers payload locally, then publishes it to the other nodes.
func (r *Relay) Broadcast(ctx context.Context, room uuid.UUID, payload []byte) error {
	r.hub.Broadcast(room, payload)
	data, err := encode(r.nodeID, room, payload)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn().Err(err).Str("room", room.String()).Msg("publish failed")
		return err
	}
	return nil
}

// Run consumes frames published by other nodes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *Relay) deliver(raw string) int {
	env, err := decode(raw)
	if err != nil {
		r.logger.Warn().Err(err).Msg("dropping malformed relay frame")
		return 0
	}
	if env.Node == r.nodeID {
		return 0
	}
	return r.hub.Broadcast(env.Room, env.Payload)
}

func encode(nodeID string, room uuid.UUID, payload []byte) ([]byte, error) {
	return json.Marshal(envelope{Node: nodeID, Room: room, Payload: payload})
}

func decode(raw string) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	if env.Node == "" || env.Room == uuid.Nil || len(env.Payload) == 0 {
		return nil, errors.New("incomplete envelope")
	}
	return &env, nil
}

var _ realtime.Broadcaster = (*Relay)(nil)
