// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Command trace builds structural graphs of Rust, JavaScript, TypeScript
// and Python projects.
//
// It indexes declarations with lightweight lexical scanners, resolves
// imports and calls heuristically, and emits blueprint (file dependency)
// and call graph reports, per-function control-flow graphs, graph diffs
// with mapping enforcement, and audit findings.
//
// Usage:
//
//	trace index [root]
//	trace blueprint [root] -o blueprint.json
//	trace callgraph [root] --resolved-only --format ndjson
//	trace cfg app/service.py Service.run --mermaid
//	trace diff before.json after.json --mapping mapping.yaml --require-mapping
//	trace audit [root] --patch change.diff
//
// Exit codes:
//
//	0 success
//	1 failure
//	2 usage error or unsupported output format
//	3 removed nodes left unmapped under --require-mapping
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/tracemap/services/trace/config"
	"github.com/AleutianAI/tracemap/services/trace/graph"
)

const (
	exitOK             = 0
	exitFailure        = 1
	exitUsage          = 2
	exitMissingMapping = 3
)

// usageError marks errors caused by how the command was invoked.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns its exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := newApp(stdin, stdout, stderr)
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if closeErr := a.close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
		err = closeErr
	}
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "%s %v\n", a.styler().Failure("error:"), err)
	return exitCode(err)
}

func exitCode(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, graph.ErrMissingMapping):
		return exitMissingMapping
	case errors.As(err, &usage),
		errors.Is(err, graph.ErrUnsupportedFormat),
		errors.Is(err, config.ErrUnsupportedConfigFormat):
		return exitUsage
	default:
		return exitFailure
	}
}
