package aggregates

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
	pkgerrors "mindmap/pkg/errors"
)

func node(id, label string, x, y float64) entities.Node {
	return entities.Node{ID: id, Label: label, Position: valueobjects.Position{X: x, Y: y}}
}

func TestNewDefaultDocument(t *testing.T) {
	doc := NewDefaultDocument("alice")

	assert.False(t, doc.IsPersisted())
	assert.Equal(t, DefaultTitle, doc.Title)
	assert.Equal(t, "alice", doc.OwnerID)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, DefaultNodeLabel, doc.Nodes[0].Label)
	assert.Equal(t, DefaultNodePosition, doc.Nodes[0].Position)
	assert.NotEmpty(t, doc.Nodes[0].ID)
	assert.Empty(t, doc.Edges)
}

func TestDocument_Apply(t *testing.T) {
	tests := []struct {
		name    string
		start   []entities.Node
		m       Mutation
		changed bool
		want    []entities.Node
	}{
		{
			name:    "add appends",
			start:   []entities.Node{node("a", "A", 0, 0)},
			m:       AddNode(node("b", "B", 1, 1)),
			changed: true,
			want:    []entities.Node{node("a", "A", 0, 0), node("b", "B", 1, 1)},
		},
		{
			name:    "add of existing id replaces in place",
			start:   []entities.Node{node("a", "A", 0, 0), node("b", "B", 1, 1)},
			m:       AddNode(node("a", "A2", 5, 5)),
			changed: true,
			want:    []entities.Node{node("a", "A2", 5, 5), node("b", "B", 1, 1)},
		},
		{
			name:    "update existing",
			start:   []entities.Node{node("a", "A", 0, 0)},
			m:       UpdateNode(node("a", "Renamed", 3, 4)),
			changed: true,
			want:    []entities.Node{node("a", "Renamed", 3, 4)},
		},
		{
			name:  "update missing is a no-op",
			start: []entities.Node{node("a", "A", 0, 0)},
			m:     UpdateNode(node("zz", "Ghost", 0, 0)),
			want:  []entities.Node{node("a", "A", 0, 0)},
		},
		{
			name:    "move keeps label",
			start:   []entities.Node{node("a", "A", 0, 0)},
			m:       MoveNode("a", valueobjects.Position{X: 9, Y: 8}),
			changed: true,
			want:    []entities.Node{node("a", "A", 9, 8)},
		},
		{
			name:  "move to the current position is a no-op",
			start: []entities.Node{node("a", "A", 9, 8)},
			m:     MoveNode("a", valueobjects.Position{X: 9, Y: 8 + 1e-12}),
			want:  []entities.Node{node("a", "A", 9, 8)},
		},
		{
			name:  "move missing is a no-op",
			start: []entities.Node{node("a", "A", 0, 0)},
			m:     MoveNode("zz", valueobjects.Position{X: 9, Y: 8}),
			want:  []entities.Node{node("a", "A", 0, 0)},
		},
		{
			name:    "delete",
			start:   []entities.Node{node("a", "A", 0, 0), node("b", "B", 1, 1)},
			m:       DeleteNode("a"),
			changed: true,
			want:    []entities.Node{node("b", "B", 1, 1)},
		},
		{
			name:  "unknown kind",
			start: []entities.Node{node("a", "A", 0, 0)},
			m:     Mutation{Kind: "rename-map"},
			want:  []entities.Node{node("a", "A", 0, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NewDocument("alice", "", tt.start, nil)
			assert.Equal(t, tt.changed, doc.Apply(tt.m))
			assert.Equal(t, tt.want, doc.Nodes)
		})
	}
}

func TestDocument_DeletingNodeLeavesEdgesDangling(t *testing.T) {
	doc := NewDocument("alice", "", []entities.Node{node("a", "A", 0, 0), node("b", "B", 1, 1)}, nil)
	edge := entities.Edge{ID: "e1", Source: "a", Target: "b"}

	require.True(t, doc.Apply(AddEdge(edge)))
	assert.Empty(t, doc.DanglingEdges())

	require.True(t, doc.Apply(DeleteNode("b")))
	assert.Equal(t, []entities.Edge{edge}, doc.Edges)
	assert.Equal(t, []entities.Edge{edge}, doc.DanglingEdges())
	assert.NoError(t, doc.Validate())

	assert.True(t, doc.Apply(DeleteEdge("e1")))
	assert.False(t, doc.Apply(DeleteEdge("e1")))
	assert.Empty(t, doc.Edges)
}

func TestDocument_Validate(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []entities.Node
		edges   []entities.Edge
		ok      bool
		details map[string]interface{}
	}{
		{name: "empty", ok: true},
		{name: "dangling edge", nodes: []entities.Node{node("a", "", 0, 0)}, edges: []entities.Edge{{ID: "e", Source: "a", Target: "x"}}, ok: true},
		{name: "duplicate node", nodes: []entities.Node{node("a", "", 0, 0), node("a", "", 1, 1)}, details: map[string]interface{}{"nodeId": "a"}},
		{name: "missing node id", nodes: []entities.Node{node("", "", 0, 0)}},
		{name: "non-finite position", nodes: []entities.Node{node("a", "", math.Inf(1), 0)}, details: map[string]interface{}{"nodeId": "a"}},
		{name: "duplicate edge", edges: []entities.Edge{{ID: "e", Source: "a", Target: "b"}, {ID: "e", Source: "b", Target: "a"}}, details: map[string]interface{}{"edgeId": "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDocument("alice", "", tt.nodes, tt.edges).Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			appErr := pkgerrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.details, appErr.Details)
		})
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	doc := NewDocument("alice", "Plans", []entities.Node{node("a", "A", 0, 0)}, []entities.Edge{{ID: "e", Source: "a", Target: "a"}})
	c := doc.Clone()

	c.Nodes[0].Label = "changed"
	c.Edges[0].Label = "changed"
	c.Apply(AddNode(node("b", "B", 0, 0)))

	assert.Equal(t, "A", doc.Nodes[0].Label)
	assert.Equal(t, "", doc.Edges[0].Label)
	assert.Len(t, doc.Nodes, 1)
}

func TestSortByRecent(t *testing.T) {
	now := time.Now()
	older := &Document{ID: "old", UpdatedAt: now.Add(-time.Hour)}
	newer := &Document{ID: "new", UpdatedAt: now}
	docs := []*Document{older, newer}

	SortByRecent(docs)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, "old", docs[1].ID)
}
