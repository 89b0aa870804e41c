package aggregates

import (
	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
)

// MutationKind identifies a graph edit
type MutationKind string

const (
	MutationAddNode    MutationKind = "add-node"
	MutationUpdateNode MutationKind = "update-node"
	MutationDeleteNode MutationKind = "delete-node"
	MutationMoveNode   MutationKind = "move-node"
	MutationAddEdge    MutationKind = "add-edge"
	MutationDeleteEdge MutationKind = "delete-edge"
)

// Mutation is a single graph edit, local or received from a peer.
// Only the fields relevant to Kind are read.
type Mutation struct {
	Kind     MutationKind
	Node     entities.Node
	Edge     entities.Edge
	TargetID string
	Position valueobjects.Position
}

// AddNode builds an add-node mutation
func AddNode(n entities.Node) Mutation {
	return Mutation{Kind: MutationAddNode, Node: n}
}

// UpdateNode builds an update-node mutation
func UpdateNode(n entities.Node) Mutation {
	return Mutation{Kind: MutationUpdateNode, Node: n}
}

// DeleteNode builds a delete-node mutation
func DeleteNode(id string) Mutation {
	return Mutation{Kind: MutationDeleteNode, TargetID: id}
}

// MoveNode builds a move-node mutation
func MoveNode(id string, position valueobjects.Position) Mutation {
	return Mutation{Kind: MutationMoveNode, TargetID: id, Position: position}
}

// AddEdge builds an add-edge mutation
func AddEdge(e entities.Edge) Mutation {
	return Mutation{Kind: MutationAddEdge, Edge: e}
}

// DeleteEdge builds a delete-edge mutation
func DeleteEdge(id string) Mutation {
	return Mutation{Kind: MutationDeleteEdge, TargetID: id}
}

// Apply applies a mutation to the document. It reports whether the document
// changed; edits that reference missing elements are no-ops, never errors.
func (d *Document) Apply(m Mutation) bool {
	switch m.Kind {
	case MutationAddNode:
		d.AddNode(m.Node)
		return true
	case MutationUpdateNode:
		return d.UpdateNode(m.Node)
	case MutationDeleteNode:
		return d.DeleteNode(m.TargetID)
	case MutationMoveNode:
		return d.MoveNode(m.TargetID, m.Position)
	case MutationAddEdge:
		d.AddEdge(m.Edge)
		return true
	case MutationDeleteEdge:
		return d.DeleteEdge(m.TargetID)
	default:
		return false
	}
}
