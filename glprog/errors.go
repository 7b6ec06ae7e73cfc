package glprog

import (
	"errors"
	"strings"

	"github.com/soypat/gvfx"
)

// Compilation failures are returned as typed values so authoring tools can
// highlight the offending graph region. Match with [errors.As].

// DanglingReferenceError reports a connection referencing a node or port
// that does not exist in the graph.
type DanglingReferenceError struct {
	ConnID string
	NodeID string
	PortID string // empty when the node itself is missing
}

func (e *DanglingReferenceError) Error() string {
	if e.PortID == "" {
		return "connection " + e.ConnID + " references missing node " + e.NodeID
	}
	return "connection " + e.ConnID + " references missing port " + e.NodeID + "." + e.PortID
}

// PortConflictError reports an input port driven by more than one
// connection. ConnID is the conflicting (later) connection.
type PortConflictError struct {
	ConnID string
	NodeID string
	PortID string
}

func (e *PortConflictError) Error() string {
	return "connection " + e.ConnID + ": port " + e.NodeID + "." + e.PortID + " has multiple incoming connections"
}

// TypeMismatchError reports a connection whose source port type cannot feed
// its target port type.
type TypeMismatchError struct {
	ConnID string
	Want   gvfx.PortType
	Got    gvfx.PortType
}

func (e *TypeMismatchError) Error() string {
	return "connection " + e.ConnID + ": cannot assign " + e.Got.String() + " to " + e.Want.String()
}

// CyclicGraphError reports a dependency cycle. NodeIDs lists the nodes on
// the cycle in traversal order.
type CyclicGraphError struct {
	NodeIDs []string
}

func (e *CyclicGraphError) Error() string {
	return "graph contains dependency cycle: " + strings.Join(e.NodeIDs, " -> ")
}

// UnsupportedNodeError reports a node whose type the compiler has no
// emission rule for.
type UnsupportedNodeError struct {
	NodeID   string
	NodeType gvfx.NodeType
}

func (e *UnsupportedNodeError) Error() string {
	return "node " + e.NodeID + " has unsupported type " + e.NodeType.String()
}

var (
	// ErrNoOutput is returned for graphs without a designated output node.
	ErrNoOutput = errors.New("graph has no output node")
	// ErrMultipleOutputs is returned for graphs with more than one sink.
	ErrMultipleOutputs = errors.New("graph has multiple output nodes")
)
