// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package audit

import (
	"fmt"

	"github.com/AleutianAI/tracemap/services/trace/graph"
)

// unreferenced calls visit for every candidate no resolved edge reaches,
// with the unresolved call sites elsewhere that use its name. Entry points
// are skipped.
func (in *input) unreferenced(visit func(id string, sites []graph.Edge)) {
	for _, sym := range in.candidates {
		if len(in.inbound[sym.ID]) > 0 || isEntryPoint(sym) {
			continue
		}
		var sites []graph.Edge
		for _, e := range in.unresolvedByName[sym.ResolutionName] {
			if e.From != sym.ID {
				sites = append(sites, e)
			}
		}
		visit(sym.ID, sites)
	}
}

// detectLonely flags functions that no resolved edge reaches and whose
// name exactly one call site elsewhere uses. The single caller is the
// place the body could be inlined into.
func detectLonely(in *input) []Finding {
	var out []Finding
	in.unreferenced(func(id string, sites []graph.Edge) {
		if len(sites) != 1 {
			return
		}
		sym, _ := in.idx.ByID(id)
		call := sites[0]
		where := in.site(call)
		out = append(out, Finding{
			Category: CategoryLonelyAbstraction,
			Severity: SeverityInfo,
			File:     sym.FilePath,
			Line:     sym.StartLine,
			Symbols:  []string{id, call.From},
			Evidence: []string{
				"no resolved call edge reaches it",
				fmt.Sprintf("one call site names it: %s in %s at %s", call.Raw, in.name(call.From), where),
			},
			Fix: &Fix{
				Kind:        FixInline,
				Target:      id,
				Sites:       []string{where},
				Description: fmt.Sprintf("inline %s into %s", sym.Name, in.name(call.From)),
			},
		})
	})
	return out
}

// detectOrphans flags functions nothing calls and no call site names.
func detectOrphans(in *input) []Finding {
	var out []Finding
	in.unreferenced(func(id string, sites []graph.Edge) {
		if len(sites) != 0 {
			return
		}
		sym, _ := in.idx.ByID(id)
		evidence := []string{
			"no resolved call edge reaches it",
			fmt.Sprintf("no call site uses the name %s", sym.ResolutionName),
		}
		if n := len(in.outbound[id]); n > 0 {
			evidence = append(evidence, fmt.Sprintf("makes %d calls that become dead with it", n))
		}
		out = append(out, Finding{
			Category: CategoryOrphan,
			Severity: SeverityWarning,
			File:     sym.FilePath,
			Line:     sym.StartLine,
			Symbols:  []string{id},
			Evidence: evidence,
			Fix: &Fix{
				Kind:        FixRemove,
				Target:      id,
				Description: fmt.Sprintf("remove %s or register it where it is meant to be called", sym.Name),
			},
		})
	})
	return out
}
