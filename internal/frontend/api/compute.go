package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/chemcloud-org/chemcloud/internal/backend"
	"github.com/chemcloud-org/chemcloud/internal/dag"
	"github.com/chemcloud-org/chemcloud/internal/logger"
	"github.com/chemcloud-org/chemcloud/internal/models"
	"github.com/chemcloud-org/chemcloud/internal/planner"
)

// Canonical UUID v4. Ids that do not match are rejected before any
// backend I/O happens.
var uuid4Re = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Output is the retrieval response envelope. Result stays nil until
// every leaf of the task tree is ready.
type Output struct {
	State  models.TaskState `json:"state"`
	Result json.RawMessage  `json:"result"`
}

// handleSubmit is POST {prefix}/compute: validate, plan, submit,
// persist the DAG, and return the root id as a bare JSON string. The
// DAG is persisted before the response leaves so a fast poll cannot
// race the submission.
func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	program, err := models.ParseProgram(r.URL.Query().Get("program"))
	if err != nil {
		a.handleError(w, r, newError(http.StatusUnprocessableEntity, err.Error()))
		return
	}

	opts, err := models.OptionsFromQuery(r.URL.Query())
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	inputs, batch, err := models.DecodeInputs(r.Body)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	plan, err := planner.New(program, inputs, batch, opts, a.cfg.MaxBatchInputs)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	node, err := a.broker.Submit(r.Context(), plan)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	rootID := node.RootID()
	if err := a.backend.PutDAG(r.Context(), rootID, node); err != nil {
		// The broker already accepted the tasks; try to claw them
		// back before reporting failure. If revocation also fails the
		// orphans are accepted as wasted work.
		if revokeErr := a.broker.Revoke(r.Context(), taskIDs(node)); revokeErr != nil {
			logger.Error(r.Context(), "revocation after persist failure failed",
				"root_id", rootID, "err", revokeErr)
		}
		a.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rootID)
}

// handleResult is GET {prefix}/compute/output/{taskID}: rehydrate the
// DAG, probe every leaf, aggregate, and on a terminal read schedule the
// post-response cleanup.
func (a *API) handleResult(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if !uuid4Re.MatchString(taskID) {
		a.handleError(w, r, newError(http.StatusUnprocessableEntity,
			"task_id must be a canonical v4 UUID"))
		return
	}

	node, err := a.backend.GetDAG(r.Context(), taskID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	out, terminal, err := a.collect(r.Context(), node)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)

	if terminal {
		// The caller has its payload; cleanup runs detached from the
		// request so a dropped connection cannot cancel it. Delete is
		// idempotent, so a crash between send and delete is fine.
		a.deferrer.Defer(func(ctx context.Context) {
			if err := a.backend.DeleteDAG(ctx, taskID); err != nil {
				logger.Warn(ctx, "post-response dag cleanup failed",
					"task_id", taskID, "err", err)
			}
		})
	}
}

// collect probes every leaf and aggregates outputs per the DAG shape:
// a lone leaf unwraps to its single output, a group preserves
// submission order, a chord surfaces only the reducer.
func (a *API) collect(ctx context.Context, node *dag.Node) (*Output, bool, error) {
	leaves := node.Leaves()
	probes := make([]backend.Probe, len(leaves))
	for i, leaf := range leaves {
		probe, err := a.backend.ProbeReady(ctx, leaf.TaskID)
		if err != nil {
			return nil, false, err
		}
		probes[i] = probe
	}

	// Broker-reported abnormal states propagate verbatim. RETRY is not
	// terminal: report it and keep the DAG for the next poll.
	for _, p := range probes {
		switch p.State {
		case models.StateRevoked, models.StateRejected, models.StateIgnored:
			return &Output{State: p.State, Result: nullJSON}, true, nil
		case models.StateRetry:
			return &Output{State: models.StateRetry, Result: nullJSON}, false, nil
		}
	}

	for _, p := range probes {
		if !p.Ready {
			return &Output{State: models.StatePending, Result: nullJSON}, false, nil
		}
	}

	state := models.StateSuccess
	for _, p := range probes {
		if p.State == models.StateFailure || !models.OutputSuccess(p.Output) {
			state = models.StateFailure
			break
		}
	}

	var result json.RawMessage
	switch node.Kind {
	case dag.KindLeaf:
		result = probes[0].Output
	case dag.KindGroup:
		outputs := make([]json.RawMessage, len(probes))
		for i, p := range probes {
			outputs[i] = p.Output
		}
		joined, err := json.Marshal(outputs)
		if err != nil {
			return nil, false, err
		}
		result = joined
	case dag.KindChord:
		// Fan-out outputs are internal. On a fan-out failure the first
		// failing output is surfaced verbatim instead of the reducer's.
		result = probes[len(probes)-1].Output
		for _, p := range probes[:len(probes)-1] {
			if !models.OutputSuccess(p.Output) {
				result = p.Output
				break
			}
		}
	}

	return &Output{State: state, Result: result}, true, nil
}

var nullJSON = json.RawMessage("null")

func taskIDs(node *dag.Node) []string {
	leaves := node.Leaves()
	ids := make([]string, len(leaves))
	for i, l := range leaves {
		ids[i] = l.TaskID
	}
	return ids
}
