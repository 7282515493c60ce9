// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import "sort"

// DefaultHubCount is the number of hubs reported when none is configured.
const DefaultHubCount = 10

// Degrees computes per-node degrees over the resolved edges of a report.
//
// Description:
//
//	Degrees count distinct neighbors: in-degree is the number of distinct
//	nodes with a resolved edge into the node, out-degree the number of
//	distinct nodes it has a resolved edge to. Self-edges (recursion, a file
//	importing itself) are ignored. Every node of the report has an entry.
//
// Outputs:
//
//	map[string]NodeDegree - Degree by node ID.
func Degrees(r *Report) map[string]NodeDegree {
	return computeDegrees(r.Nodes, r.Edges)
}

func computeDegrees(nodes []Node, edges []Edge) map[string]NodeDegree {
	in := make(map[string]map[string]bool, len(nodes))
	out := make(map[string]map[string]bool, len(nodes))
	for _, e := range edges {
		if !e.Resolved || e.From == e.To {
			continue
		}
		if in[e.To] == nil {
			in[e.To] = make(map[string]bool)
		}
		in[e.To][e.From] = true
		if out[e.From] == nil {
			out[e.From] = make(map[string]bool)
		}
		out[e.From][e.To] = true
	}

	degrees := make(map[string]NodeDegree, len(nodes))
	for _, n := range nodes {
		d := NodeDegree{ID: n.ID, In: len(in[n.ID]), Out: len(out[n.ID])}
		d.Total = d.In + d.Out
		degrees[n.ID] = d
	}
	return degrees
}

// summarizeDegrees classifies nodes and ranks hubs.
func summarizeDegrees(nodes []Node, degrees map[string]NodeDegree, hubCount int) DegreeStats {
	stats := DegreeStats{
		Hubs:    []NodeDegree{},
		Orphans: []string{},
		Sources: []string{},
		Sinks:   []string{},
	}
	ranked := make([]NodeDegree, 0, len(nodes))
	for _, n := range nodes {
		d := degrees[n.ID]
		if d.In == 0 {
			stats.Orphans = append(stats.Orphans, n.ID)
			if d.Out > 0 {
				stats.Sources = append(stats.Sources, n.ID)
			}
		}
		if d.Out == 0 {
			stats.Sinks = append(stats.Sinks, n.ID)
		}
		stats.MaxIn = max(stats.MaxIn, d.In)
		stats.MaxOut = max(stats.MaxOut, d.Out)
		if d.Total > 0 {
			ranked = append(ranked, d)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > hubCount {
		ranked = ranked[:hubCount]
	}
	stats.Hubs = append(stats.Hubs, ranked...)
	sort.Strings(stats.Orphans)
	sort.Strings(stats.Sources)
	sort.Strings(stats.Sinks)
	return stats
}
