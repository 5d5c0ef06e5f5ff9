package backend

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/chemcloud-org/chemcloud/internal/dag"
	"github.com/chemcloud-org/chemcloud/internal/models"
)

// MemoryStore is an in-process Store for local development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	dags  map[string][]byte
	tasks map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		dags:  make(map[string][]byte),
		tasks: make(map[string][]byte),
	}
}

func (s *MemoryStore) PutDAG(_ context.Context, id string, node *dag.Node) error {
	blob, err := dag.Marshal(node)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dags[id] = blob
	return nil
}

func (s *MemoryStore) GetDAG(_ context.Context, id string) (*dag.Node, error) {
	s.mu.RLock()
	blob, ok := s.dags[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrResultNotFound
	}
	return dag.Unmarshal(blob)
}

func (s *MemoryStore) DeleteDAG(ctx context.Context, id string) error {
	node, err := s.GetDAG(ctx, id)
	if err != nil {
		if err == ErrResultNotFound {
			return nil
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dags, id)
	for _, leaf := range node.Leaves() {
		delete(s.tasks, leaf.TaskID)
	}
	return nil
}

func (s *MemoryStore) ProbeReady(_ context.Context, leafID string) (Probe, error) {
	s.mu.RLock()
	raw, ok := s.tasks[leafID]
	s.mu.RUnlock()
	if !ok {
		return Probe{State: models.StatePending}, nil
	}
	return probeFromMeta(raw)
}

// SetTaskResult writes a leaf result slot the way a worker would.
func (s *MemoryStore) SetTaskResult(leafID string, state models.TaskState, output json.RawMessage) {
	meta, _ := json.Marshal(leafMeta{State: string(state), Output: output})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[leafID] = meta
}

// HasDAG reports whether a DAG blob is still stored; used by tests to
// observe the post-response cleanup.
func (s *MemoryStore) HasDAG(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dags[id]
	return ok
}
