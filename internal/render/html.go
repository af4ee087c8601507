package render

import (
	"html"
	"strings"
)

// HTML encodes a display tree as nested disclosure elements. Containers
// become <details open>, leaves a labelled <div class="leaf">, and an
// error node a single <p class="error">. All text is escaped.
func HTML(node *Node) string {
	var sb strings.Builder

	if node.Kind == NodeError {
		sb.WriteString(`<p class="error">`)
		sb.WriteString(html.EscapeString(node.Text))
		sb.WriteString(`</p>`)
		return sb.String()
	}

	sb.WriteString(`<div class="tree">`)
	writeHTML(&sb, node)
	sb.WriteString(`</div>`)
	return sb.String()
}

func writeHTML(sb *strings.Builder, node *Node) {
	switch node.Kind {
	case NodeContainer:
		sb.WriteString(`<details open><summary>`)
		sb.WriteString(html.EscapeString(node.Label))
		sb.WriteString(`</summary>`)
		for _, child := range node.Children {
			writeHTML(sb, child)
		}
		sb.WriteString(`</details>`)

	case NodeLeaf:
		sb.WriteString(`<div class="leaf"><span class="key">`)
		sb.WriteString(html.EscapeString(node.Label))
		sb.WriteString(`</span> <span class="value">`)
		sb.WriteString(html.EscapeString(node.Text))
		sb.WriteString(`</span></div>`)

	case NodeError:
		sb.WriteString(`<p class="error">`)
		sb.WriteString(html.EscapeString(node.Text))
		sb.WriteString(`</p>`)
	}
}
