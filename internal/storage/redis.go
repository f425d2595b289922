package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	userByNameKeyPrefix = "user:name:"
	userByIDKeyPrefix   = "user:id:"
	flowKeyPrefix       = "flow:"
	flowsListKey        = "flows"
	messagesListKey     = "messages"
)

// RedisRepository implements Repository on Redis. Records are stored as
// JSON values; SetNX reservations provide the uniqueness guarantees and
// RPush lists preserve insertion order for flows and messages.
type RedisRepository struct {
	client *redis.Client
}

// NewRedis builds a Redis-backed repository.
func NewRedis(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) FindUserByUsername(ctx context.Context, username string) (User, error) {
	payload, err := r.client.Get(ctx, userByNameKeyPrefix+username).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	var user User
	if err := json.Unmarshal(payload, &user); err != nil {
		return User{}, fmt.Errorf("decode user %s: %w", username, err)
	}
	return user, nil
}

func (r *RedisRepository) FindUserByUUID(ctx context.Context, uuid uint64) (User, error) {
	username, err := r.client.Get(ctx, userByIDKeyPrefix+strconv.FormatUint(uuid, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return r.FindUserByUsername(ctx, username)
}

func (r *RedisRepository) CreateUser(ctx context.Context, user User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}

	nameKey := userByNameKeyPrefix + user.Username
	reserved, err := r.client.SetNX(ctx, nameKey, payload, 0).Result()
	if err != nil {
		return err
	}
	if !reserved {
		return ErrDuplicateUsername
	}

	idKey := userByIDKeyPrefix + strconv.FormatUint(user.UUID, 10)
	reserved, err = r.client.SetNX(ctx, idKey, user.Username, 0).Result()
	if err != nil {
		return err
	}
	if !reserved {
		// Roll back the username reservation so a retry with a fresh id can succeed.
		r.client.Del(ctx, nameKey)
		return ErrDuplicateID
	}
	return nil
}

func (r *RedisRepository) CreateMessage(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, messagesListKey, payload).Err()
}

func (r *RedisRepository) ListMessages(ctx context.Context) ([]Message, error) {
	items, err := r.client.LRange(ctx, messagesListKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var messages []Message
	for _, item := range items {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (r *RedisRepository) CreateFlow(ctx context.Context, flow Flow) error {
	payload, err := json.Marshal(flow)
	if err != nil {
		return err
	}

	reserved, err := r.client.SetNX(ctx, flowKeyPrefix+strconv.FormatUint(flow.FlowID, 10), payload, 0).Result()
	if err != nil {
		return err
	}
	if !reserved {
		return ErrDuplicateID
	}
	return r.client.RPush(ctx, flowsListKey, payload).Err()
}

func (r *RedisRepository) ListFlows(ctx context.Context) ([]Flow, error) {
	items, err := r.client.LRange(ctx, flowsListKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var flows []Flow
	for _, item := range items {
		var f Flow
		if err := json.Unmarshal([]byte(item), &f); err != nil {
			return nil, fmt.Errorf("decode flow: %w", err)
		}
		flows = append(flows, f)
	}
	return flows, nil
}
