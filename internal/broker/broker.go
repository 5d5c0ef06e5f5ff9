// Package broker submits worker-executable task descriptors to the
// message broker and assigns the stable ids the rest of the system is
// keyed by.
package broker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/chemcloud-org/chemcloud/internal/dag"
	"github.com/chemcloud-org/chemcloud/internal/models"
	"github.com/chemcloud-org/chemcloud/internal/planner"
)

// ErrBrokerUnavailable surfaces when a submission cannot reach the
// broker inside the submit timeout.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Client materializes plans into broker tasks.
type Client interface {
	// Submit creates ids for every leaf of the plan, publishes the
	// corresponding task descriptors, and returns the resulting DAG.
	Submit(ctx context.Context, plan *planner.Plan) (*dag.Node, error)

	// Revoke asks the worker fleet to abandon the given tasks. Best
	// effort: submission rollback only.
	Revoke(ctx context.Context, taskIDs []string) error
}

// Message is the wire descriptor a worker consumes. Program travels as
// a plain string so the worker deserializer shares no code with the
// gateway.
type Message struct {
	ID      string                `json:"id"`
	Task    string                `json:"task"`
	Program string                `json:"program"`
	Input   json.RawMessage       `json:"input"`
	Options models.ComputeOptions `json:"options"`

	// GroupID ties fan-out members together. For a chord reducer,
	// Upstream lists the fan-out task ids whose outputs it consumes,
	// in submission order.
	GroupID  string   `json:"group_id,omitempty"`
	Upstream []string `json:"upstream,omitempty"`
}
