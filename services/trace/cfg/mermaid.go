// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cfg

import (
	"fmt"
	"strings"
)

// mermaidEscaper replaces characters that end a Mermaid node label.
var mermaidEscaper = strings.NewReplacer(
	`"`, "#quot;",
	"<", "#lt;",
	">", "#gt;",
	"\n", " ",
)

// RenderMermaid renders a graph as a Mermaid flowchart.
//
// Description:
//
//	Entry and exit render as stadiums, branches as rhombi, loop heads as
//	hexagons and blocks as rectangles. Labels are quoted, so brackets and
//	pipes inside source text are safe. Unreachable nodes are assigned the
//	"unreachable" class; exit blocks the "exitblock" class.
//
// Outputs:
//
//	string - The diagram text, newline terminated. Identical graphs render
//	         identically.
func RenderMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, n := range g.Nodes {
		label := n.Label
		if n.Line > 0 && n.Kind != NodeKindEntry && n.Kind != NodeKindExit {
			label = fmt.Sprintf("L%d: %s", n.Line, n.Label)
		}
		open, closing := shape(n.Kind)
		fmt.Fprintf(&b, "    %s%s\"%s\"%s\n", n.ID, open, mermaidEscaper.Replace(label), closing)
	}
	for _, e := range g.Edges {
		if e.Label == "" {
			fmt.Fprintf(&b, "    %s --> %s\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(&b, "    %s -->|\"%s\"| %s\n", e.From, mermaidEscaper.Replace(e.Label), e.To)
	}

	var exits []string
	for _, id := range g.ExitSet {
		if id != g.Exit {
			exits = append(exits, id)
		}
	}
	if len(exits) > 0 {
		b.WriteString("    classDef exitblock stroke-width:3px\n")
		fmt.Fprintf(&b, "    class %s exitblock\n", strings.Join(exits, ","))
	}
	if len(g.Unreachable) > 0 {
		b.WriteString("    classDef unreachable fill:#eee,stroke:#999,stroke-dasharray:4 4,color:#999\n")
		fmt.Fprintf(&b, "    class %s unreachable\n", strings.Join(g.Unreachable, ","))
	}
	return b.String()
}

func shape(kind NodeKind) (string, string) {
	switch kind {
	case NodeKindEntry, NodeKindExit:
		return "([", "])"
	case NodeKindBranch:
		return "{", "}"
	case NodeKindLoopHead:
		return "{{", "}}"
	default:
		return "[", "]"
	}
}
