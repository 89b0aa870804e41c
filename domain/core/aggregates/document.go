package aggregates

import (
	"fmt"
	"sort"
	"time"

	"mindmap/domain/core/entities"
	"mindmap/domain/core/valueobjects"
	pkgerrors "mindmap/pkg/errors"
)

const (
	// DefaultTitle is used when a document is created without a title
	DefaultTitle = "Untitled Mind Map"

	// DefaultNodeLabel labels the single node of a fresh document
	DefaultNodeLabel = "Central Idea"
)

// DefaultNodePosition is where the single node of a fresh document sits
var DefaultNodePosition = valueobjects.Position{X: 250, Y: 150}

// Document is the aggregate root for a mind map.
// Nodes and edges keep their insertion order; ids are unique per collection.
type Document struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	OwnerID   string          `json:"ownerId"`
	Nodes     []entities.Node `json:"nodes"`
	Edges     []entities.Edge `json:"edges"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewDocument creates an unsaved document owned by ownerID
func NewDocument(ownerID, title string, nodes []entities.Node, edges []entities.Edge) *Document {
	if title == "" {
		title = DefaultTitle
	}
	return &Document{
		Title:   title,
		OwnerID: ownerID,
		Nodes:   cloneNodes(nodes),
		Edges:   cloneEdges(edges),
	}
}

// NewDefaultDocument builds the starter document: one node, no edges,
// default title. It has no id until persisted.
func NewDefaultDocument(ownerID string) *Document {
	return NewDocument(ownerID, DefaultTitle, []entities.Node{{
		ID:       valueobjects.NewElementID(),
		Label:    DefaultNodeLabel,
		Position: DefaultNodePosition,
	}}, nil)
}

// IsPersisted reports whether the document has been assigned an id by storage
func (d *Document) IsPersisted() bool {
	return d.ID != ""
}

// Validate checks the uniqueness invariants of the node and edge collections
func (d *Document) Validate() error {
	seen := make(map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return pkgerrors.NewValidationError("node id is required")
		}
		if _, dup := seen[n.ID]; dup {
			return pkgerrors.NewValidationError(fmt.Sprintf("duplicate node id %q", n.ID)).WithDetail("nodeId", n.ID)
		}
		if !n.Position.IsValid() {
			return pkgerrors.NewValidationError(fmt.Sprintf("node %q has invalid coordinates", n.ID)).WithDetail("nodeId", n.ID)
		}
		seen[n.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(d.Edges))
	for _, e := range d.Edges {
		if e.ID == "" {
			return pkgerrors.NewValidationError("edge id is required")
		}
		if _, dup := seen[e.ID]; dup {
			return pkgerrors.NewValidationError(fmt.Sprintf("duplicate edge id %q", e.ID)).WithDetail("edgeId", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Node returns the node with the given id
func (d *Document) Node(id string) (entities.Node, bool) {
	if i := d.nodeIndex(id); i >= 0 {
		return d.Nodes[i], true
	}
	return entities.Node{}, false
}

// Edge returns the edge with the given id
func (d *Document) Edge(id string) (entities.Edge, bool) {
	if i := d.edgeIndex(id); i >= 0 {
		return d.Edges[i], true
	}
	return entities.Edge{}, false
}

// AddNode appends a node. A node whose id already exists replaces the
// existing entry in place, keeping ids unique.
func (d *Document) AddNode(n entities.Node) {
	if i := d.nodeIndex(n.ID); i >= 0 {
		d.Nodes[i] = n
		return
	}
	d.Nodes = append(d.Nodes, n)
}

// UpdateNode replaces the label and position of an existing node.
// Returns false when the node does not exist.
func (d *Document) UpdateNode(n entities.Node) bool {
	i := d.nodeIndex(n.ID)
	if i < 0 {
		return false
	}
	d.Nodes[i] = n
	return true
}

// MoveNode changes only the position of an existing node. Moving a node to
// where it already is reports no change.
func (d *Document) MoveNode(id string, position valueobjects.Position) bool {
	i := d.nodeIndex(id)
	if i < 0 || d.Nodes[i].Position.Equals(position) {
		return false
	}
	d.Nodes[i] = d.Nodes[i].MoveTo(position)
	return true
}

// DeleteNode removes a node. Edges referencing it are left untouched and
// become dangling.
func (d *Document) DeleteNode(id string) bool {
	i := d.nodeIndex(id)
	if i < 0 {
		return false
	}
	d.Nodes = append(d.Nodes[:i], d.Nodes[i+1:]...)
	return true
}

// AddEdge appends an edge without checking that its endpoints exist
func (d *Document) AddEdge(e entities.Edge) {
	if i := d.edgeIndex(e.ID); i >= 0 {
		d.Edges[i] = e
		return
	}
	d.Edges = append(d.Edges, e)
}

// DeleteEdge removes an edge
func (d *Document) DeleteEdge(id string) bool {
	i := d.edgeIndex(id)
	if i < 0 {
		return false
	}
	d.Edges = append(d.Edges[:i], d.Edges[i+1:]...)
	return true
}

// DanglingEdges returns the edges with at least one missing endpoint
func (d *Document) DanglingEdges() []entities.Edge {
	var out []entities.Edge
	for _, e := range d.Edges {
		_, hasSource := d.Node(e.Source)
		_, hasTarget := d.Node(e.Target)
		if !hasSource || !hasTarget {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	c := *d
	c.Nodes = cloneNodes(d.Nodes)
	c.Edges = cloneEdges(d.Edges)
	return &c
}

// Normalize replaces nil collections with empty ones so JSON output always
// carries arrays
func (d *Document) Normalize() {
	if d.Nodes == nil {
		d.Nodes = []entities.Node{}
	}
	if d.Edges == nil {
		d.Edges = []entities.Edge{}
	}
}

func (d *Document) nodeIndex(id string) int {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) edgeIndex(id string) int {
	for i := range d.Edges {
		if d.Edges[i].ID == id {
			return i
		}
	}
	return -1
}

// SortByRecent orders documents most-recently-modified first
func SortByRecent(docs []*Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
}

func cloneNodes(nodes []entities.Node) []entities.Node {
	out := make([]entities.Node, len(nodes))
	copy(out, nodes)
	return out
}

func cloneEdges(edges []entities.Edge) []entities.Edge {
	out := make([]entities.Edge, len(edges))
	copy(out, edges)
	return out
}
