// Package dag models the serializable task tree describing how one
// submission was decomposed into broker tasks. A DAG is created at
// submission, never mutated afterwards, and destroyed by the retrieval
// path after a terminal read.
package dag

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/chemcloud-org/chemcloud/internal/models"
)

// Kind tags the node variants.
type Kind string

const (
	KindLeaf  Kind = "leaf"
	KindGroup Kind = "group"
	KindChord Kind = "chord"
)

// Leaf is a single worker invocation.
type Leaf struct {
	TaskID  string                `json:"task_id"`
	Program string                `json:"program"`
	Input   json.RawMessage       `json:"input"`
	Options models.ComputeOptions `json:"options"`
}

// Group is an independent fan-out of leaves with no reducer.
type Group struct {
	GroupID string `json:"group_id"`
	Leaves  []Leaf `json:"leaves"`
}

// Chord is a fan-out of leaves whose outputs feed a single reducer.
type Chord struct {
	ChordID string `json:"chord_id"`
	Leaves  []Leaf `json:"leaves"`
	Reducer Leaf   `json:"reducer"`
}

// Node is the tagged union persisted under the root id. Exactly one of
// the variant fields is set, selected by Kind.
type Node struct {
	Kind  Kind   `json:"kind"`
	Leaf  *Leaf  `json:"leaf,omitempty"`
	Group *Group `json:"group,omitempty"`
	Chord *Chord `json:"chord,omitempty"`
}

// NewLeafNode wraps a leaf as a root node.
func NewLeafNode(leaf Leaf) *Node {
	return &Node{Kind: KindLeaf, Leaf: &leaf}
}

// NewGroupNode wraps a fan-out as a root node.
func NewGroupNode(groupID string, leaves []Leaf) *Node {
	return &Node{Kind: KindGroup, Group: &Group{GroupID: groupID, Leaves: leaves}}
}

// NewChordNode wraps a fan-out plus reducer as a root node.
func NewChordNode(chordID string, leaves []Leaf, reducer Leaf) *Node {
	return &Node{Kind: KindChord, Chord: &Chord{ChordID: chordID, Leaves: leaves, Reducer: reducer}}
}

// RootID is the id the DAG is persisted under: the leaf's task id, the
// group id, or the chord id.
func (n *Node) RootID() string {
	switch n.Kind {
	case KindLeaf:
		return n.Leaf.TaskID
	case KindGroup:
		return n.Group.GroupID
	case KindChord:
		return n.Chord.ChordID
	}
	return ""
}

// Leaves returns every leaf of the tree. For a chord the reducer is
// last, after the fan-out leaves in submission order.
func (n *Node) Leaves() []Leaf {
	switch n.Kind {
	case KindLeaf:
		return []Leaf{*n.Leaf}
	case KindGroup:
		return n.Group.Leaves
	case KindChord:
		leaves := make([]Leaf, 0, len(n.Chord.Leaves)+1)
		leaves = append(leaves, n.Chord.Leaves...)
		return append(leaves, n.Chord.Reducer)
	}
	return nil
}

// TaskIDs returns the ids of every leaf plus the root id when it is
// distinct (group and chord ids).
func (n *Node) TaskIDs() []string {
	leaves := n.Leaves()
	ids := make([]string, 0, len(leaves)+1)
	for _, l := range leaves {
		ids = append(ids, l.TaskID)
	}
	if root := n.RootID(); n.Kind != KindLeaf {
		ids = append(ids, root)
	}
	return ids
}

// Validate checks the structural invariants: a variant payload matching
// the tag, UUID-v4 ids throughout, no leaf owned twice, and the reducer
// never appearing among fan-out leaves.
func (n *Node) Validate() error {
	switch n.Kind {
	case KindLeaf:
		if n.Leaf == nil || n.Group != nil || n.Chord != nil {
			return fmt.Errorf("leaf node with wrong payload")
		}
	case KindGroup:
		if n.Group == nil || n.Leaf != nil || n.Chord != nil {
			return fmt.Errorf("group node with wrong payload")
		}
		if len(n.Group.Leaves) == 0 {
			return fmt.Errorf("group %s has no leaves", n.Group.GroupID)
		}
	case KindChord:
		if n.Chord == nil || n.Leaf != nil || n.Group != nil {
			return fmt.Errorf("chord node with wrong payload")
		}
		if len(n.Chord.Leaves) == 0 {
			return fmt.Errorf("chord %s has no fan-out leaves", n.Chord.ChordID)
		}
	default:
		return fmt.Errorf("unknown node kind %q", n.Kind)
	}

	seen := make(map[string]struct{})
	for _, id := range n.TaskIDs() {
		if err := validateUUID(id); err != nil {
			return err
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("task id %s appears more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func validateUUID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", id, err)
	}
	if u.Version() != 4 {
		return fmt.Errorf("task id %q is not a v4 UUID", id)
	}
	return nil
}

// Marshal serializes the DAG. The representation is self-describing
// (variant tag plus children) so a DAG written by one gateway process
// can be read by another.
func Marshal(n *Node) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("malformed task dag: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}
