package backend

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chemcloud-org/chemcloud/internal/dag"
	"github.com/chemcloud-org/chemcloud/internal/models"
)

// Key layout: one key per DAG blob, one per leaf result slot. Workers
// write the task keys; the gateway owns the dag keys.
const (
	dagKeyPrefix  = "chemcloud:dag:"
	taskKeyPrefix = "chemcloud:task:"
)

// RedisStore implements Store on a pooled Redis connection.
type RedisStore struct {
	rdb redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedis builds a store from a redis URL.
func NewRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opts)}, nil
}

// NewRedisFromClient wraps an existing client (tests, shared pools).
func NewRedisFromClient(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) PutDAG(ctx context.Context, id string, node *dag.Node) error {
	blob, err := dag.Marshal(node)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, dagKeyPrefix+id, blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *RedisStore) GetDAG(ctx context.Context, id string) (*dag.Node, error) {
	blob, err := s.rdb.Get(ctx, dagKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return dag.Unmarshal(blob)
}

// DeleteDAG removes the blob and every descendant leaf slot in one
// pipeline round trip.
func (s *RedisStore) DeleteDAG(ctx context.Context, id string) error {
	node, err := s.GetDAG(ctx, id)
	if err != nil {
		if err == ErrResultNotFound {
			return nil
		}
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, dagKeyPrefix+id)
	for _, leaf := range node.Leaves() {
		pipe.Del(ctx, taskKeyPrefix+leaf.TaskID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *RedisStore) ProbeReady(ctx context.Context, leafID string) (Probe, error) {
	raw, err := s.rdb.Get(ctx, taskKeyPrefix+leafID).Bytes()
	if err == redis.Nil {
		return Probe{State: models.StatePending}, nil
	}
	if err != nil {
		return Probe{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	probe, err := probeFromMeta(raw)
	if err != nil {
		return Probe{}, fmt.Errorf("%w: malformed task meta for %s: %v", ErrBackendUnavailable, leafID, err)
	}
	return probe, nil
}
