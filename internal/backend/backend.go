// Package backend is the durable key-value store for task DAGs and
// leaf results, keyed by task id. DAG blobs are written by the gateway;
// leaf result slots are written by workers and only read here.
package backend

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/chemcloud-org/chemcloud/internal/dag"
	"github.com/chemcloud-org/chemcloud/internal/models"
)

var (
	// ErrResultNotFound is returned by GetDAG for ids with no stored
	// DAG, including ids already consumed by a retrieval.
	ErrResultNotFound = errors.New("result not found")

	// ErrBackendUnavailable is fatal for the enclosing request.
	ErrBackendUnavailable = errors.New("result backend unavailable")
)

// Probe is the readiness snapshot of one leaf.
type Probe struct {
	Ready  bool
	State  models.TaskState
	Output json.RawMessage
}

// Store is the backend contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// PutDAG persists the DAG under id. Idempotent; overwriting is not
	// expected.
	PutDAG(ctx context.Context, id string, node *dag.Node) error

	// GetDAG rehydrates a DAG or returns ErrResultNotFound.
	GetDAG(ctx context.Context, id string) (*dag.Node, error)

	// DeleteDAG removes the DAG node and forgets all descendant leaf
	// results. Idempotent.
	DeleteDAG(ctx context.Context, id string) error

	// ProbeReady never fails on unknown ids: unknown maps to
	// (false, PENDING, nil).
	ProbeReady(ctx context.Context, leafID string) (Probe, error)
}

// leafMeta is the slot a worker writes when a leaf reaches a state
// worth reporting.
type leafMeta struct {
	State  string          `json:"state"`
	Output json.RawMessage `json:"output,omitempty"`
}

func probeFromMeta(raw []byte) (Probe, error) {
	var meta leafMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Probe{}, err
	}
	state := models.StateFromBroker(meta.State)
	return Probe{
		Ready:  state.IsTerminal(),
		State:  state,
		Output: meta.Output,
	}, nil
}
