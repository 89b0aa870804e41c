// Package redis provides a RoomRegistry shared between relay processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mindmap/application/ports"
	"mindmap/domain/events"
)

const (
	defaultPrefix = "mindmap:"
	connectionTTL = 24 * time.Hour
	maxTxAttempts = 5
)

// Registry keeps a hash per connection (room, info, joinedAt) and a set of
// connection ids per room. Every change runs in a WATCH/MULTI transaction
// on the connection hash; Redis drops a set once its last member is removed.
type Registry struct {
	client *redis.Client
	prefix string
}

var _ ports.RoomRegistry = (*Registry)(nil)

// NewRegistry connects to redisURL and verifies the server is reachable
func NewRegistry(redisURL string) (*Registry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRegistryWithClient(client), nil
}

// NewRegistryWithClient creates a registry from an existing client
func NewRegistryWithClient(client *redis.Client) *Registry {
	return &Registry{client: client, prefix: defaultPrefix}
}

func (r *Registry) connKey(connectionID string) string { return r.prefix + "conn:" + connectionID }
func (r *Registry) roomKey(roomID string) string       { return r.prefix + "room:" + roomID }

// Join moves the connection into roomID
func (r *Registry) Join(ctx context.Context, connectionID, roomID string, info events.ParticipantInfo) (ports.JoinResult, error) {
	if len(info) == 0 {
		info = events.DefaultParticipantInfo()
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return ports.JoinResult{}, fmt.Errorf("marshal participant info: %w", err)
	}

	connKey := r.connKey(connectionID)
	var result ports.JoinResult

	txf := func(tx *redis.Tx) error {
		current, err := readParticipant(ctx, tx, connKey, connectionID)
		if err != nil {
			return err
		}

		result = ports.JoinResult{RoomID: roomID}
		var sizeCmd, prevCmd *redis.IntCmd

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if current != nil && current.RoomID == roomID {
				pipe.HSet(ctx, connKey, "info", string(infoJSON))
			} else {
				if current != nil {
					pipe.SRem(ctx, r.roomKey(current.RoomID), connectionID)
					prevCmd = pipe.SCard(ctx, r.roomKey(current.RoomID))
				}
				pipe.HSet(ctx, connKey,
					"room", roomID,
					"info", string(infoJSON),
					"joinedAt", time.Now().UTC().Format(time.RFC3339Nano),
				)
				pipe.SAdd(ctx, r.roomKey(roomID), connectionID)
			}
			pipe.Expire(ctx, connKey, connectionTTL)
			sizeCmd = pipe.SCard(ctx, r.roomKey(roomID))
			return nil
		})
		if err != nil {
			return err
		}

		result.Size = int(sizeCmd.Val())
		if prevCmd != nil {
			result.PreviousRoomID = current.RoomID
			result.PreviousInfo = current.Info
			result.PreviousSize = int(prevCmd.Val())
		}
		return nil
	}

	if err := r.watch(ctx, txf, connKey); err != nil {
		return ports.JoinResult{}, fmt.Errorf("join room: %w", err)
	}
	return result, nil
}

// Leave removes the connection from its room
func (r *Registry) Leave(ctx context.Context, connectionID string) (ports.LeaveResult, error) {
	connKey := r.connKey(connectionID)
	var result ports.LeaveResult

	txf := func(tx *redis.Tx) error {
		current, err := readParticipant(ctx, tx, connKey, connectionID)
		if err != nil {
			return err
		}
		result = ports.LeaveResult{}
		if current == nil {
			return nil
		}

		var remainingCmd *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, r.roomKey(current.RoomID), connectionID)
			pipe.Del(ctx, connKey)
			remainingCmd = pipe.SCard(ctx, r.roomKey(current.RoomID))
			return nil
		})
		if err != nil {
			return err
		}

		result.Participant = current
		result.Remaining = int(remainingCmd.Val())
		return nil
	}

	if err := r.watch(ctx, txf, connKey); err != nil {
		return ports.LeaveResult{}, fmt.Errorf("leave room: %w", err)
	}
	return result, nil
}

// MembersOf lists the connection ids in a room
func (r *Registry) MembersOf(ctx context.Context, roomID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	return ids, nil
}

// RoomOf returns the connection's record, or nil when it is in no room
func (r *Registry) RoomOf(ctx context.Context, connectionID string) (*ports.Participant, error) {
	return readParticipant(ctx, r.client, r.connKey(connectionID), connectionID)
}

// Close closes the Redis connection
func (r *Registry) Close() error {
	return r.client.Close()
}

func (r *Registry) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = r.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readParticipant(ctx context.Context, c hashReader, connKey, connectionID string) (*ports.Participant, error) {
	fields, err := c.HGetAll(ctx, connKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read connection: %w", err)
	}
	room := fields["room"]
	if room == "" {
		return nil, nil
	}

	p := &ports.Participant{ConnectionID: connectionID, RoomID: room}
	if raw := fields["info"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Info); err != nil {
			return nil, fmt.Errorf("unmarshal participant info: %w", err)
		}
	}
	if ts := fields["joinedAt"]; ts != "" {
		p.JoinedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return p, nil
}
