package graph

import "strings"

// NodeType categorizes knowledge graph nodes.
type NodeType string

// Node type constants.
const (
	Component NodeType = "component"
	FaultCode NodeType = "fault_code"
	Procedure NodeType = "procedure"
)

// IsValid checks if the node type is supported.
func (t NodeType) IsValid() bool {
	return t == Component || t == FaultCode || t == Procedure
}

// EdgeType categorizes directed graph edges.
type EdgeType string

// Edge type constants.
const (
	ConnectedTo EdgeType = "CONNECTED_TO"
	CausedBy    EdgeType = "CAUSED_BY"
	ResolvedBy  EdgeType = "RESOLVED_BY"
)

// IsValid checks if the edge type is supported.
func (t EdgeType) IsValid() bool {
	return t == ConnectedTo || t == CausedBy || t == ResolvedBy
}

// Node is a knowledge graph node.
type Node struct {
	id         string
	nodeType   NodeType
	name       string
	properties map[string]string
}

// NewNode creates a graph node.
func NewNode(id string, t NodeType, name string, properties map[string]string) Node {
	return Node{id: id, nodeType: t, name: name, properties: properties}
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.id }

// Type returns the node type.
func (n *Node) Type() NodeType { return n.nodeType }

// Name returns the human-readable node name.
func (n *Node) Name() string { return n.name }

// Properties returns the node property map.
func (n *Node) Properties() map[string]string { return n.properties }

// Edge is a directed edge from a source node to a target node.
type Edge struct {
	sourceID string
	targetID string
	edgeType EdgeType
}

// NewEdge creates a directed edge.
func NewEdge(sourceID, targetID string, t EdgeType) Edge {
	return Edge{sourceID: sourceID, targetID: targetID, edgeType: t}
}

// SourceID returns the edge source node id.
func (e *Edge) SourceID() string { return e.sourceID }

// TargetID returns the edge target node id.
func (e *Edge) TargetID() string { return e.targetID }

// Type returns the edge type.
func (e *Edge) Type() EdgeType { return e.edgeType }

// Step is one (from, edge, to) triple in a causal chain.
type Step struct {
	From Node
	Edge Edge
	To   Node
}

// Chain is an ordered causal traversal from a fault outward to its causes
// and remedies. A chain never contains the same node twice, even when the
// underlying graph is cyclic.
type Chain struct {
	faultID string
	steps   []Step
}

// NewChain creates a causal chain.
func NewChain(faultID string, steps []Step) Chain {
	return Chain{faultID: faultID, steps: steps}
}

// FaultID returns the queried fault node id.
func (c *Chain) FaultID() string { return c.faultID }

// Steps returns the traversal steps in discovery order.
func (c *Chain) Steps() []Step { return c.steps }

// Empty reports whether the chain contains no steps.
func (c *Chain) Empty() bool { return len(c.steps) == 0 }

// Causes returns the names of nodes reached over CAUSED_BY edges.
func (c *Chain) Causes() []string {
	return c.targets(CausedBy)
}

// Remedies returns the names of nodes reached over RESOLVED_BY edges.
func (c *Chain) Remedies() []string {
	return c.targets(ResolvedBy)
}

func (c *Chain) targets(t EdgeType) []string {
	var names []string
	for _, s := range c.steps {
		if s.Edge.Type() == t {
			names = append(names, s.To.Name())
		}
	}
	return names
}

// String renders the chain as one "[from] --TYPE--> [to]" line per step.
func (c *Chain) String() string {
	if len(c.steps) == 0 {
		return "empty chain"
	}
	var b strings.Builder
	for i, s := range c.steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[" + s.From.Name() + "] --" + string(s.Edge.Type()) + "--> [" + s.To.Name() + "]")
	}
	return b.String()
}
