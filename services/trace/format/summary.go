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
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/audit"
	"github.com/AleutianAI/tracemap/services/trace/cfg"
	"github.com/AleutianAI/tracemap/services/trace/collect"
	"github.com/AleutianAI/tracemap/services/trace/graph"
	"github.com/AleutianAI/tracemap/services/trace/index"
)

// counts renders a count map as "a 3, b 1" in key order.
func counts[K ~string](m map[K]int) string {
	keys := make([]string, 0, len(m))
	for k, n := range m {
		if n > 0 {
			keys = append(keys, string(k))
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, m[K(k)])
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// WriteCollectSummary describes the files skipped during collection.
// Nothing is written when none were skipped.
func WriteCollectSummary(w io.Writer, s *Styler, res *collect.Result) error {
	p := &printer{w: w}
	for _, sk := range res.Skipped {
		// Unreadable files are reported as index errors.
		if sk.Reason == collect.SkipUnreadable {
			continue
		}
		p.printf("%s %s: %s %s\n", s.Warning("skipped"), sk.Path, sk.Reason, s.Muted(sk.Detail))
	}
	return p.err
}

// WriteIndexSummary writes the index statistics and per-file errors.
func WriteIndexSummary(w io.Writer, s *Styler, stats index.Stats, errs []index.FileError) error {
	p := &printer{w: w}
	p.printf("%s\n", s.Title("Index"))
	p.printf("  files     %d scanned, %d errored\n", stats.FilesScanned, stats.FilesErrored)
	p.printf("  symbols   %d (%s)\n", stats.Symbols, counts(stats.ByKind))
	p.printf("  languages %s\n", counts(stats.ByLanguage))
	if stats.Warnings > 0 {
		p.printf("  warnings  %d\n", stats.Warnings)
	}
	for _, fe := range errs {
		p.printf("  %s %s: %s\n", s.Failure("error"), fe.Path, fe.Message)
	}
	return p.err
}

// WriteReportSummary writes the statistics of a blueprint or call graph.
func WriteReportSummary(w io.Writer, s *Styler, r *graph.Report) error {
	p := &printer{w: w}
	title := "Blueprint"
	if r.Kind == graph.KindCall {
		title = "Call graph"
	}
	st := r.Stats
	p.printf("%s\n", s.Title(title))
	p.printf("  files     %d scanned, %d errored\n", st.FilesScanned, st.FilesErrored)
	p.printf("  nodes     %d (%s)\n", st.NodeCount, counts(st.ByLanguage))
	p.printf("  edges     %d emitted: %d resolved, %d unresolved", st.EdgeCount, st.ResolvedEdges, st.UnresolvedEdges)
	if st.DroppedUnresolved > 0 {
		p.printf(", %d unresolved dropped", st.DroppedUnresolved)
	}
	p.printf("\n")
	if st.TruncatedFunctions > 0 {
		p.printf("  %s %s had their call sites capped\n", s.Warning("truncated"), plural(st.TruncatedFunctions, "function"))
	}
	if len(st.Degree.Hubs) > 0 {
		p.printf("  hubs\n")
		for _, h := range st.Degree.Hubs {
			p.printf("    %s %s\n", s.Accent(h.ID), s.Muted(fmt.Sprintf("in %d, out %d", h.In, h.Out)))
		}
	}
	p.printf("  orphans   %d, sources %d, sinks %d\n", len(st.Degree.Orphans), len(st.Degree.Sources), len(st.Degree.Sinks))
	for _, fe := range r.Errors {
		p.printf("  %s %s: %s\n", s.Failure("error"), fe.Path, fe.Message)
	}
	if len(r.Warnings) > 0 {
		p.printf("  %s\n", s.Muted(plural(len(r.Warnings), "parse warning")))
	}
	return p.err
}

// WriteGraphSummary writes one line describing a control-flow graph
// followed by its warnings.
func WriteGraphSummary(w io.Writer, s *Styler, g *cfg.Graph) error {
	p := &printer{w: w}
	p.printf("%s %s: %s, %s, %s, %d unreachable\n",
		s.Title("CFG"), s.Accent(g.Function),
		plural(len(g.Nodes), "node"), plural(len(g.Edges), "edge"),
		plural(len(g.ExitSet), "exit"), len(g.Unreachable))
	for _, warn := range g.Warnings {
		p.printf("  %s %s:%d: %s\n", s.Warning("warning"), warn.Path, warn.Line, warn.Message)
	}
	return p.err
}

// WriteFindings lists audit findings with their evidence.
func WriteFindings(w io.Writer, s *Styler, f *audit.Findings) error {
	p := &printer{w: w}
	p.printf("%s %s\n", s.Title("Audit"), plural(len(f.Findings), "finding"))
	if len(f.Findings) == 0 {
		return p.err
	}
	p.printf("  %s\n", counts(f.Counts))
	for _, x := range f.Findings {
		severity := string(x.Severity)
		if x.Severity == audit.SeverityWarning {
			severity = s.Warning(severity)
		} else {
			severity = s.Muted(severity)
		}
		subject := ""
		if len(x.Symbols) > 0 {
			subject = x.Symbols[0]
		}
		if x.Chain != "" {
			subject = x.Chain
		}
		p.printf("\n%s %s %s:%d %s\n", severity, x.Category, x.File, x.Line, s.Accent(subject))
		for _, e := range x.Evidence {
			p.printf("    %s\n", s.Muted(e))
		}
		if x.Fix != nil {
			p.printf("    fix (%s): %s\n", x.Fix.Kind, x.Fix.Description)
		}
	}
	return p.err
}
