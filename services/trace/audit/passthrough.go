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
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// passThrough is a function whose body is one call forwarding all its
// parameters unchanged to exactly one other function.
type passThrough struct {
	sym    *ast.Symbol
	target string
	callee string
}

// findPassThroughs returns the pass-through functions among the candidates,
// keyed by symbol ID.
func (in *input) findPassThroughs() (map[string]passThrough, []string) {
	found := make(map[string]passThrough)
	var order []string
	for _, sym := range in.candidates {
		if !sym.HasBody {
			continue
		}
		calls := in.idx.Calls(sym)
		if len(calls) != 1 {
			continue
		}
		body, err := in.idx.Body(sym)
		if err != nil {
			continue
		}
		sig := significantText(body)
		call, ok := parseCall(sig.masked)
		if !ok || !call.parens || call.callee != calls[0].Raw {
			continue
		}
		if call.has("throw") || call.has("raise") || call.has("new") || call.has("yield") {
			continue
		}
		if !forwards(call.args, sym.Params) {
			continue
		}
		target := ""
		for _, e := range in.outbound[sym.ID] {
			if e.Resolved && e.To != sym.ID {
				target = e.To
				break
			}
		}
		if target == "" {
			continue
		}
		found[sym.ID] = passThrough{sym: sym, target: target, callee: call.callee}
		order = append(order, sym.ID)
	}
	return found, order
}

// detectPassThrough reports every pass-through function with the full
// forwarding chain it starts.
func detectPassThrough(in *input) []Finding {
	found, order := in.findPassThroughs()
	var out []Finding
	for _, id := range order {
		pt := found[id]

		chain := []string{id}
		visited := map[string]bool{id: true}
		next := pt.target
		for {
			chain = append(chain, next)
			hop, ok := found[next]
			if !ok || visited[next] {
				break
			}
			visited[next] = true
			next = hop.target
		}
		names := make([]string, len(chain))
		for i, c := range chain {
			names[i] = in.name(c)
		}

		evidence := []string{
			fmt.Sprintf("body is a single call to %s", pt.callee),
			forwardedParams(pt.sym.Params),
			fmt.Sprintf("%s resolves to %s", pt.callee, pt.target),
		}
		if len(chain) > 2 {
			evidence = append(evidence, fmt.Sprintf("%s is itself a pass-through", names[1]))
		}

		var sites []string
		for _, e := range in.inbound[id] {
			sites = append(sites, in.site(e))
		}
		evidence = append(evidence, fmt.Sprintf("%d resolved call sites", len(sites)))

		out = append(out, Finding{
			Category: CategoryPassThrough,
			Severity: SeverityWarning,
			File:     pt.sym.FilePath,
			Line:     pt.sym.StartLine,
			Symbols:  chain,
			Chain:    strings.Join(names, " -> "),
			Evidence: evidence,
			Fix: &Fix{
				Kind:        FixInline,
				Target:      id,
				Sites:       sites,
				Description: fmt.Sprintf("call %s directly and remove %s", names[1], names[0]),
			},
		})
	}
	return out
}

func forwardedParams(params []string) string {
	if len(params) == 0 {
		return "takes no parameters and passes none"
	}
	return fmt.Sprintf("forwards parameters (%s) unchanged and in order", strings.Join(params, ", "))
}
