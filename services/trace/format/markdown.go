// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package format

import (
	"io"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/graph"
)

// code wraps an identifier in a Markdown code span.
func code(s string) string {
	if strings.Contains(s, "`") {
		return "`` " + s + " ``"
	}
	return "`" + s + "`"
}

// WriteDiffMarkdown writes a Markdown summary of a graph diff, suitable for
// a pull request comment.
//
// Description:
//
//	Lists the totals, then every removed node with its suggested
//	successors and, when a mapping is given, its explanation. Added nodes
//	and changed edges follow. Sections with no entries are left out.
//
// Inputs:
//
//	w - Destination.
//	d - The diff. Must not be nil.
//	m - The mapping file. May be nil.
//
// Outputs:
//
//	error - The first write error.
func WriteDiffMarkdown(w io.Writer, d *graph.DiffResult, m *graph.MappingFile) error {
	p := &printer{w: w}
	title := "Blueprint diff"
	if d.Kind == graph.KindCall {
		title = "Call graph diff"
	}
	p.printf("## %s\n\n", title)
	if d.Empty() {
		p.printf("No structural changes.\n")
		return p.err
	}

	p.printf("| change | count |\n|---|---:|\n")
	p.printf("| added nodes | %d |\n", len(d.AddedNodes))
	p.printf("| removed nodes | %d |\n", len(d.RemovedNodes))
	p.printf("| added edges | %d |\n", len(d.AddedEdges))
	p.printf("| removed edges | %d |\n", len(d.RemovedEdges))
	p.printf("| files affected | %d |\n", d.Summary.FilesAffected)
	p.printf("| change ratio | %.1f%% |\n", d.Summary.ChangeRatio*100)

	if len(d.RemovedNodes) > 0 {
		p.printf("\n### Removed nodes\n\n")
		for _, id := range d.RemovedNodes {
			p.printf("- %s", code(id))
			switch {
			case m.Explains(id):
				p.printf(": %s", strings.TrimSpace(m.Mappings[id]))
			case m != nil:
				p.printf(" **unmapped**")
			}
			p.printf("\n")
			for _, s := range d.SuggestionsFor(id) {
				p.printf("  - successor? %s (%s shared, name similarity %.2f)\n",
					code(s.Candidate), plural(s.Score, "neighbor"), s.NameSimilarity)
			}
		}
	}
	if len(d.AddedNodes) > 0 {
		p.printf("\n### Added nodes\n\n")
		for _, id := range d.AddedNodes {
			p.printf("- %s\n", code(id))
		}
	}
	writeEdges(p, "Removed edges", d.RemovedEdges)
	writeEdges(p, "Added edges", d.AddedEdges)
	return p.err
}

func writeEdges(p *printer, heading string, edges []graph.EdgeKey) {
	if len(edges) == 0 {
		return
	}
	p.printf("\n### %s\n\n", heading)
	for _, e := range edges {
		p.printf("- %s → %s (%s)\n", code(e.From), code(e.To), e.Kind)
	}
}
