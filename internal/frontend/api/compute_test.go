package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemcloud-org/chemcloud/internal/backend"
	"github.com/chemcloud-org/chemcloud/internal/broker"
	"github.com/chemcloud-org/chemcloud/internal/config"
	"github.com/chemcloud-org/chemcloud/internal/dag"
	"github.com/chemcloud-org/chemcloud/internal/frontend/auth"
	"github.com/chemcloud-org/chemcloud/internal/models"
	"github.com/chemcloud-org/chemcloud/internal/planner"
)

const waterEnergy = `{
	"calctype": "energy",
	"structure": {"symbols": ["O", "H", "H"], "geometry": [0,0,0, 0,1.5,0, 0,0,1.5]},
	"model": {"method": "HF", "basis": "sto-3g"}
}`

const waterHessianDual = `{
	"calctype": "hessian",
	"structure": {"symbols": ["O", "H", "H"], "geometry": [0,0,0, 0,1.5,0, 0,0,1.5]},
	"subprogram": "rdkit",
	"subprogram_args": {"model": {"method": "UFF"}}
}`

// fakeBroker materializes plans like the redis broker, without a
// broker. It records submissions and revocations.
type fakeBroker struct {
	mu        sync.Mutex
	submitted []*dag.Node
	revoked   [][]string
	submitErr error
}

func (f *fakeBroker) Submit(_ context.Context, plan *planner.Plan) (*dag.Node, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	leaves := make([]dag.Leaf, len(plan.Leaves))
	for i, spec := range plan.Leaves {
		leaves[i] = dag.Leaf{TaskID: uuid.NewString(), Program: spec.Program, Input: spec.Input, Options: spec.Options}
	}
	var node *dag.Node
	switch plan.Kind {
	case dag.KindGroup:
		node = dag.NewGroupNode(uuid.NewString(), leaves)
	case dag.KindChord:
		reducer := dag.Leaf{TaskID: uuid.NewString(), Program: plan.Reducer.Program, Input: plan.Reducer.Input, Options: plan.Reducer.Options}
		node = dag.NewChordNode(uuid.NewString(), leaves, reducer)
	default:
		node = dag.NewLeafNode(leaves[0])
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, node)
	f.mu.Unlock()
	return node, nil
}

func (f *fakeBroker) Revoke(_ context.Context, taskIDs []string) error {
	f.mu.Lock()
	f.revoked = append(f.revoked, taskIDs)
	f.mu.Unlock()
	return nil
}

// countingStore observes backend traffic for tests that assert no I/O
// happened, and can inject a PutDAG failure.
type countingStore struct {
	backend.Store
	mu     sync.Mutex
	calls  int
	putErr error
}

func (c *countingStore) bump() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingStore) PutDAG(ctx context.Context, id string, node *dag.Node) error {
	c.bump()
	if c.putErr != nil {
		return c.putErr
	}
	return c.Store.PutDAG(ctx, id, node)
}

func (c *countingStore) GetDAG(ctx context.Context, id string) (*dag.Node, error) {
	c.bump()
	return c.Store.GetDAG(ctx, id)
}

func (c *countingStore) DeleteDAG(ctx context.Context, id string) error {
	c.bump()
	return c.Store.DeleteDAG(ctx, id)
}

func (c *countingStore) ProbeReady(ctx context.Context, leafID string) (backend.Probe, error) {
	c.bump()
	return c.Store.ProbeReady(ctx, leafID)
}

func (c *countingStore) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// syncDeferrer runs deferred work inline so tests observe cleanup
// deterministically.
type syncDeferrer struct{}

func (syncDeferrer) Defer(fn func(ctx context.Context)) { fn(context.Background()) }

type fixture struct {
	router chi.Router
	broker *fakeBroker
	store  *countingStore
	memory *backend.MemoryStore
	cfg    *config.Config
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := &config.Config{
		APIV2Str:         "/api/v2",
		APIComputePrefix: "/compute",
		APIOAuthPrefix:   "/oauth",
		UsersPrefix:      "/users",
		MaxBatchInputs:   100,
	}
	for _, m := range mutate {
		m(cfg)
	}

	memory := backend.NewMemory()
	store := &countingStore{Store: memory}
	fb := &fakeBroker{}
	a := New(cfg, fb, store, nil, nil, syncDeferrer{})

	r := chi.NewRouter()
	r.Route(cfg.APIV2Str, func(r chi.Router) { a.ConfigureRoutes(r) })
	return &fixture{router: r, broker: fb, store: store, memory: memory, cfg: cfg}
}

func (f *fixture) submit(t *testing.T, query, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/compute?"+query, strings.NewReader(body))
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) submitID(t *testing.T, query, body string) string {
	t.Helper()
	rec := f.submit(t, query, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var id string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
	return id
}

func (f *fixture) poll(t *testing.T, taskID string) (*httptest.ResponseRecorder, Output) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v2/compute/output/"+taskID, nil)
	f.router.ServeHTTP(rec, req)
	var out Output
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (f *fixture) finishAll(state models.TaskState, output string) {
	node := f.broker.submitted[len(f.broker.submitted)-1]
	for _, leaf := range node.Leaves() {
		f.memory.SetTaskResult(leaf.TaskID, state, json.RawMessage(output))
	}
}

func TestSubmit_SingleEnergySuccess(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id := f.submitID(t, "program=psi4", waterEnergy)
	require.True(t, f.memory.HasDAG(id), "DAG persisted before the response returned")

	// Not ready yet.
	rec, out := f.poll(t, id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatePending, out.State)
	assert.Equal(t, "null", string(out.Result))
	assert.True(t, f.memory.HasDAG(id), "pending poll must not consume the result")

	// Worker finishes; result is a single unwrapped document.
	f.finishAll(models.StateSuccess, `{"success": true, "results": {"energy": -74.96}}`)
	rec, out = f.poll(t, id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateSuccess, out.State)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Result, &doc))
	assert.Equal(t, true, doc["success"])

	// At-most-once: the terminal read consumed the result.
	rec, _ = f.poll(t, id)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "already been deleted")
}

func TestSubmit_GroupWithOneFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := "[" + waterEnergy + "," + strings.Replace(waterEnergy, "sto-3g", "bad-basis", 1) + "]"
	id := f.submitID(t, "program=psi4", body)

	node := f.broker.submitted[0]
	leaves := node.Leaves()
	require.Len(t, leaves, 2)
	f.memory.SetTaskResult(leaves[0].TaskID, models.StateSuccess, json.RawMessage(`{"success": true}`))
	f.memory.SetTaskResult(leaves[1].TaskID, models.StateFailure, json.RawMessage(`{"success": false, "traceback": "basis not found"}`))

	rec, out := f.poll(t, id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateFailure, out.State)

	var results []map[string]any
	require.NoError(t, json.Unmarshal(out.Result, &results))
	require.Len(t, results, 2, "list in, list out, same length and order")
	assert.Equal(t, true, results[0]["success"])
	assert.Equal(t, false, results[1]["success"])
}

func TestSubmit_BatchBoundary(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(c *config.Config) { c.MaxBatchInputs = 3 })

	atLimit := "[" + strings.Join([]string{waterEnergy, waterEnergy, waterEnergy}, ",") + "]"
	rec := f.submit(t, "program=psi4", atLimit)
	assert.Equal(t, http.StatusOK, rec.Code)

	over := "[" + strings.Join([]string{waterEnergy, waterEnergy, waterEnergy, waterEnergy}, ",") + "]"
	rec = f.submit(t, "program=psi4", over)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSubmit_ValidationFailures(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.submit(t, "program=gaussian", waterEnergy)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "unknown program")

	rec = f.submit(t, "program=psi4&collect_stdot=true", waterEnergy)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "unknown option")

	rec = f.submit(t, "program=psi4", `{"calctype": "energy", "bogus": 1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "unknown field")

	rec = f.submit(t, "program=bigchem", waterEnergy)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "bigchem requires dual input")

	rec = f.submit(t, "program=psi4", "[]")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "empty batch")
	assert.Empty(t, f.broker.submitted, "rejected bodies never reach the broker")
}

func TestSubmit_PersistFailureTriggersRevoke(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.putErr = backend.ErrBackendUnavailable

	rec := f.submit(t, "program=psi4", waterEnergy)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, f.broker.revoked, 1, "orphaned tasks must be revoked best-effort")
	assert.Len(t, f.broker.revoked[0], 1)
}

func TestSubmit_BrokerUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.broker.submitErr = fmt.Errorf("%w: connection refused", broker.ErrBrokerUnavailable)

	rec := f.submit(t, "program=psi4", waterEnergy)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, f.broker.revoked, "nothing accepted, nothing to revoke")
}

func TestSubmit_OptionsReachTheDAG(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.submitID(t, "program=psi4&collect_files=true&propagate_wfn=true&queue=gpu", waterEnergy)
	leaf := f.broker.submitted[0].Leaf
	assert.True(t, leaf.Options.CollectFiles)
	assert.True(t, leaf.Options.PropagateWFN)
	assert.Equal(t, "gpu", leaf.Options.Queue)
}

func TestResult_MalformedIDTouchesNoBackend(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, id := range []string{
		"not-a-uuid",
		"f47ac10b-58cc-1372-a567-0e02b2c3d479",  // v1
		"F47AC10B-58CC-4372-A567-0E02B2C3D479",  // uppercase
		"00000000-0000-4000-c000-000000000000",  // bad variant
	} {
		rec, _ := f.poll(t, id)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "id %q", id)
	}
	assert.Zero(t, f.store.callCount(), "no backend I/O for malformed ids")
}

func TestResult_UnknownTaskIsGone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec, _ := f.poll(t, "00000000-0000-4000-8000-000000000000")
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestResult_ParallelHessianChord(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id := f.submitID(t, "program=bigchem", waterHessianDual)

	node := f.broker.submitted[0]
	require.Equal(t, dag.KindChord, node.Kind)
	require.Len(t, node.Chord.Leaves, 19, "6*natoms gradients plus reference energy")

	for _, leaf := range node.Chord.Leaves {
		f.memory.SetTaskResult(leaf.TaskID, models.StateSuccess, json.RawMessage(`{"success": true}`))
	}
	hessian := `{"success": true, "results": {"calctype": "hessian", "hessian_dim": 9}}`
	f.memory.SetTaskResult(node.Chord.Reducer.TaskID, models.StateSuccess, json.RawMessage(hessian))

	rec, out := f.poll(t, id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateSuccess, out.State)
	assert.JSONEq(t, hessian, string(out.Result), "only the reducer output is visible")
}

func TestResult_ChordFanOutFailureSurfacesFirstFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id := f.submitID(t, "program=bigchem", waterHessianDual)
	node := f.broker.submitted[0]

	failing := `{"success": false, "traceback": "gradient diverged"}`
	for i, leaf := range node.Chord.Leaves {
		if i == 3 {
			f.memory.SetTaskResult(leaf.TaskID, models.StateFailure, json.RawMessage(failing))
			continue
		}
		f.memory.SetTaskResult(leaf.TaskID, models.StateSuccess, json.RawMessage(`{"success": true}`))
	}
	f.memory.SetTaskResult(node.Chord.Reducer.TaskID, models.StateSuccess, json.RawMessage(`{"success": true}`))

	rec, out := f.poll(t, id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateFailure, out.State)
	assert.JSONEq(t, failing, string(out.Result))
}

func TestResult_RevokedPropagatesVerbatim(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id := f.submitID(t, "program=psi4", waterEnergy)
	leaf := f.broker.submitted[0].Leaf
	f.memory.SetTaskResult(leaf.TaskID, models.StateRevoked, nil)

	rec, out := f.poll(t, id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateRevoked, out.State)
	assert.Equal(t, "null", string(out.Result))
}

func TestResult_RetryDoesNotConsume(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	id := f.submitID(t, "program=psi4", waterEnergy)
	leaf := f.broker.submitted[0].Leaf
	f.memory.SetTaskResult(leaf.TaskID, models.StateRetry, nil)

	rec, out := f.poll(t, id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateRetry, out.State)
	assert.True(t, f.memory.HasDAG(id), "retry is not terminal; the DAG stays")
}

func TestCompute_GuardedWhenVerifierConfigured(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		APIV2Str:         "/api/v2",
		APIComputePrefix: "/compute",
		APIOAuthPrefix:   "/oauth",
		MaxBatchInputs:   100,
	}
	verifier := &staticVerifier{claims: auth.Claims{Subject: "auth0|u", Scopes: []string{auth.ScopeCompute}}}
	a := New(cfg, &fakeBroker{}, &countingStore{Store: backend.NewMemory()}, verifier, nil, syncDeferrer{})
	r := chi.NewRouter()
	r.Route(cfg.APIV2Str, func(r chi.Router) { a.ConfigureRoutes(r) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/compute?program=psi4", strings.NewReader(waterEnergy))
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no bearer token")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v2/compute?program=psi4", strings.NewReader(waterEnergy))
	req.Header.Set("Authorization", "Bearer token")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type staticVerifier struct{ claims auth.Claims }

func (s *staticVerifier) Verify(_ context.Context, _ string) (auth.Claims, error) {
	return s.claims, nil
}
