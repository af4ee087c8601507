// Package render turns parser results into a display tree and encodes it
// as HTML or terminal text.
package render

import (
	"fmt"

	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
)

// RootLabel labels the top of every ability tree.
const RootLabel = "Ability Tree"

// NodeKind is the shape of a display node.
type NodeKind int

const (
	// NodeContainer is a collapsible labelled group.
	NodeContainer NodeKind = iota
	// NodeLeaf is a labelled terminal value.
	NodeLeaf
	// NodeError is a flagged error line.
	NodeError
)

func (k NodeKind) String() string {
	switch k {
	case NodeContainer:
		return "container"
	case NodeLeaf:
		return "leaf"
	case NodeError:
		return "error"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Node is the display structure produced from a result.
type Node struct {
	Kind     NodeKind
	Label    string
	Text     string
	Children []*Node
}

// BuildTree renders value under label. Sequence items are labelled
// "Elem <index>", mapping entries by their key.
func BuildTree(label string, value Value) *Node {
	switch v := value.(type) {
	case Sequence:
		node := &Node{Kind: NodeContainer, Label: label, Children: make([]*Node, 0, len(v.Items))}
		for i, item := range v.Items {
			node.Children = append(node.Children, BuildTree(fmt.Sprintf("Elem %d", i), item))
		}
		return node

	case Mapping:
		node := &Node{Kind: NodeContainer, Label: label, Children: make([]*Node, 0, len(v.Entries))}
		for _, e := range v.Entries {
			node.Children = append(node.Children, BuildTree(e.Key, e.Value))
		}
		return node

	case Scalar:
		return &Node{Kind: NodeLeaf, Label: label, Text: v.Text}

	default:
		return &Node{Kind: NodeLeaf, Label: label, Text: "null"}
	}
}

// ErrorNode wraps message in a single error node.
func ErrorNode(message string) *Node {
	return &Node{Kind: NodeError, Text: message}
}

// Render classifies result and builds its display tree. It never fails:
// parser errors and malformed payloads both become an error node.
func Render(result string) *Node {
	return RenderOutcome(Classify(result))
}

// RenderOutcome builds the display tree of an already classified result.
func RenderOutcome(o Outcome) *Node {
	switch o.Kind {
	case protocol.ResultKindTree:
		return BuildTree(RootLabel, o.Abilities)
	case protocol.ResultKindMalformed:
		return ErrorNode(fmt.Sprintf("malformed ability tree: %v", o.Err))
	default:
		return ErrorNode(o.Message)
	}
}

// Equal reports whether two display trees are structurally identical.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Label != b.Label || a.Text != b.Text || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
