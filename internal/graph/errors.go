package graph

import "fmt"

// DuplicateNodeRegistrationError:
// two nodes were registered under the same name in the same graph.
type DuplicateNodeRegistrationError struct {
	GraphID string
	Name    string
}

func (e *DuplicateNodeRegistrationError) Error() string {
	return fmt.Sprintf("node %q is already registered in graph %q", e.Name, e.GraphID)
}

// NodeNotRegisteredError: a call
// referenced a node-name that has no registration in the graph.
type NodeNotRegisteredError struct {
	GraphID string
	Name    string
}

func (e *NodeNotRegisteredError) Error() string {
	return fmt.Sprintf("node %q is not registered in graph %q", e.Name, e.GraphID)
}

// GraphClosedError is returned by Register once a graph has been opened by
// a session; declares a Graph "immutable after first session
// open".
type GraphClosedError struct {
	GraphID string
}

func (e *GraphClosedError) Error() string {
	return fmt.Sprintf("graph %q is open and can no longer register nodes", e.GraphID)
}

// ArgumentShapeError is returned by Schema.Validate when a call's
// materialized positional or keyword arguments don't match a node's
// declared contract.
type ArgumentShapeError struct {
	Node   string
	Reason string
}

func (e *ArgumentShapeError) Error() string {
	return fmt.Sprintf("node %q: %s", e.Node, e.Reason)
}
