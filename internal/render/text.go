package render

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))

	enumeratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			MarginRight(1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EF4444"))
)

// Text encodes a display tree for a terminal.
func Text(node *Node) string {
	if node.Kind == NodeError {
		return errorStyle.Render("error: " + node.Text)
	}
	if node.Kind == NodeLeaf {
		return leafText(node)
	}
	return toLipglossTree(node).String()
}

func toLipglossTree(node *Node) *tree.Tree {
	t := tree.Root(labelStyle.Render(node.Label)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumeratorStyle)

	for _, child := range node.Children {
		switch child.Kind {
		case NodeContainer:
			t.Child(toLipglossTree(child))
		default:
			t.Child(leafText(child))
		}
	}
	return t
}

func leafText(node *Node) string {
	if node.Kind == NodeError {
		return errorStyle.Render(node.Text)
	}
	return keyStyle.Render(node.Label+":") + " " + node.Text
}
