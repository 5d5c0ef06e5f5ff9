package dag

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemcloud-org/chemcloud/internal/models"
)

func testLeaf() Leaf {
	return Leaf{
		TaskID:  uuid.NewString(),
		Program: "psi4",
		Input:   json.RawMessage(`{"calctype":"energy"}`),
		Options: models.DefaultComputeOptions(),
	}
}

func TestRoundTrip_Leaf(t *testing.T) {
	t.Parallel()

	node := NewLeafNode(testLeaf())
	blob, err := Marshal(node)
	require.NoError(t, err)

	got, err := Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, node, got)
	assert.Equal(t, node.Leaf.TaskID, got.RootID())
}

func TestRoundTrip_Group(t *testing.T) {
	t.Parallel()

	leaves := []Leaf{testLeaf(), testLeaf(), testLeaf()}
	node := NewGroupNode(uuid.NewString(), leaves)

	blob, err := Marshal(node)
	require.NoError(t, err)
	got, err := Unmarshal(blob)
	require.NoError(t, err)

	assert.Equal(t, node, got)
	assert.Equal(t, node.Group.GroupID, got.RootID())
	// Submission order survives the round trip.
	require.Len(t, got.Leaves(), 3)
	for i, leaf := range got.Leaves() {
		assert.Equal(t, leaves[i].TaskID, leaf.TaskID)
	}
}

func TestRoundTrip_Chord(t *testing.T) {
	t.Parallel()

	leaves := []Leaf{testLeaf(), testLeaf()}
	reducer := testLeaf()
	node := NewChordNode(uuid.NewString(), leaves, reducer)

	blob, err := Marshal(node)
	require.NoError(t, err)
	got, err := Unmarshal(blob)
	require.NoError(t, err)

	assert.Equal(t, node, got)
	all := got.Leaves()
	require.Len(t, all, 3)
	assert.Equal(t, reducer.TaskID, all[len(all)-1].TaskID, "reducer comes last")
}

func TestValidate_RejectsNonV4IDs(t *testing.T) {
	t.Parallel()

	leaf := testLeaf()
	leaf.TaskID = "not-a-uuid"
	require.Error(t, NewLeafNode(leaf).Validate())

	// v1 UUIDs are well formed but the wrong version.
	v1 := testLeaf()
	v1.TaskID = "f47ac10b-58cc-1372-a567-0e02b2c3d479"
	require.Error(t, NewLeafNode(v1).Validate())
}

func TestValidate_RejectsDuplicateLeaf(t *testing.T) {
	t.Parallel()

	leaf := testLeaf()
	node := NewGroupNode(uuid.NewString(), []Leaf{leaf, leaf})
	require.Error(t, node.Validate())
}

func TestValidate_RejectsReducerInFanOut(t *testing.T) {
	t.Parallel()

	reducer := testLeaf()
	node := NewChordNode(uuid.NewString(), []Leaf{testLeaf(), reducer}, reducer)
	require.Error(t, node.Validate())
}

func TestValidate_RejectsMismatchedPayload(t *testing.T) {
	t.Parallel()

	leaf := testLeaf()
	node := &Node{Kind: KindGroup, Leaf: &leaf}
	require.Error(t, node.Validate())

	empty := &Node{Kind: KindGroup, Group: &Group{GroupID: uuid.NewString()}}
	require.Error(t, empty.Validate())
}

func TestTaskIDs_IncludesRootForContainers(t *testing.T) {
	t.Parallel()

	leaf := testLeaf()
	assert.Equal(t, []string{leaf.TaskID}, NewLeafNode(leaf).TaskIDs())

	groupID := uuid.NewString()
	group := NewGroupNode(groupID, []Leaf{testLeaf()})
	assert.Contains(t, group.TaskIDs(), groupID)
}
