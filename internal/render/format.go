package render

import (
	"fmt"
	"strings"
)

// Format selects an encoder.
type Format string

const (
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatHTML, "":
		return FormatHTML, nil
	case FormatText:
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be one of: html, text)", name)
	}
}

// Encode renders node in the given format.
func Encode(node *Node, format Format) string {
	if format == FormatText {
		return Text(node)
	}
	return HTML(node)
}
