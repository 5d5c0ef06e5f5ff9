package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chemcloud-org/chemcloud/internal/dag"
	"github.com/chemcloud-org/chemcloud/internal/logger"
	"github.com/chemcloud-org/chemcloud/internal/planner"
)

const (
	// submitTimeout bounds how long a request thread may block on
	// broker network latency.
	submitTimeout = 5 * time.Second

	// revokeChannel is the control channel workers subscribe to for
	// best-effort revocation.
	revokeChannel = "chemcloud.revoke"
)

// RedisBroker publishes task descriptors onto Redis lists, one list per
// routing queue. Workers BRPOP from their queue.
type RedisBroker struct {
	rdb          redis.UniversalClient
	defaultQueue string
}

var _ Client = (*RedisBroker)(nil)

// NewRedis builds a broker client from a redis URL
// (redis:// or rediss://). The connection pool is safe for concurrent
// use across requests.
func NewRedis(url, defaultQueue string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}
	return &RedisBroker{rdb: redis.NewClient(opts), defaultQueue: defaultQueue}, nil
}

// NewRedisFromClient wraps an existing client (tests, shared pools).
func NewRedisFromClient(rdb redis.UniversalClient, defaultQueue string) *RedisBroker {
	return &RedisBroker{rdb: rdb, defaultQueue: defaultQueue}
}

// Submit implements Client. Leaf ids are assigned here; the fan-out
// descriptors are pushed before the reducer so workers can begin on
// gradients immediately.
func (b *RedisBroker) Submit(ctx context.Context, plan *planner.Plan) (*dag.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	queue := plan.Queue
	if queue == "" {
		queue = b.defaultQueue
	}

	node := materialize(plan)

	var groupID string
	switch node.Kind {
	case dag.KindGroup:
		groupID = node.Group.GroupID
	case dag.KindChord:
		groupID = node.Chord.ChordID
	}

	leaves := node.Leaves()
	msgs := make([]any, 0, len(leaves))
	var upstream []string
	for i, leaf := range leaves {
		msg := Message{
			ID:      leaf.TaskID,
			Program: leaf.Program,
			Input:   leaf.Input,
			Options: leaf.Options,
			GroupID: groupID,
			Task:    taskName(plan, node, i),
		}
		if node.Kind == dag.KindChord && i == len(leaves)-1 {
			msg.Upstream = upstream
		} else if node.Kind == dag.KindChord {
			upstream = append(upstream, leaf.TaskID)
		}
		raw, err := json.Marshal(&msg)
		if err != nil {
			return nil, fmt.Errorf("%w: encode descriptor: %v", ErrBrokerUnavailable, err)
		}
		msgs = append(msgs, raw)
	}

	if err := b.rdb.LPush(ctx, queueKey(queue), msgs...).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return node, nil
}

// Revoke implements Client.
func (b *RedisBroker) Revoke(ctx context.Context, taskIDs []string) error {
	payload, err := json.Marshal(taskIDs)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, revokeChannel, payload).Err(); err != nil {
		logger.Warn(ctx, "revoke publish failed", "err", err)
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return nil
}

// materialize assigns fresh v4 UUIDs to a plan's leaves and builds the
// DAG that will be persisted under the root id.
func materialize(plan *planner.Plan) *dag.Node {
	leaves := make([]dag.Leaf, len(plan.Leaves))
	for i, spec := range plan.Leaves {
		leaves[i] = dag.Leaf{
			TaskID:  uuid.NewString(),
			Program: spec.Program,
			Input:   spec.Input,
			Options: spec.Options,
		}
	}

	switch plan.Kind {
	case dag.KindGroup:
		return dag.NewGroupNode(uuid.NewString(), leaves)
	case dag.KindChord:
		reducer := dag.Leaf{
			TaskID:  uuid.NewString(),
			Program: plan.Reducer.Program,
			Input:   plan.Reducer.Input,
			Options: plan.Reducer.Options,
		}
		return dag.NewChordNode(uuid.NewString(), leaves, reducer)
	default:
		return dag.NewLeafNode(leaves[0])
	}
}

func taskName(plan *planner.Plan, node *dag.Node, leafIndex int) string {
	if node.Kind == dag.KindChord && leafIndex == len(node.Leaves())-1 {
		return plan.Reducer.Task
	}
	if leafIndex < len(plan.Leaves) {
		return plan.Leaves[leafIndex].Task
	}
	return planner.TaskCompute
}

func queueKey(queue string) string {
	return "chemcloud:queue:" + queue
}
