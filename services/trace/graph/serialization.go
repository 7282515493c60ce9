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

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/tracemap/services/trace/ast"
)

// Format selects how a report is serialized.
type Format string

const (
	// FormatJSON writes the report as one indented JSON document.
	FormatJSON Format = "json"

	// FormatNDJSON writes one JSON record per line.
	FormatNDJSON Format = "ndjson"
)

// ParseFormat validates an output format name.
//
// Outputs:
//
//	Format - The parsed format.
//	error - ErrUnsupportedFormat wrapped with the offending name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatNDJSON, "jsonl":
		return FormatNDJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Record types of the line-delimited format.
const (
	recordMeta    = "meta"
	recordNode    = "node"
	recordEdge    = "edge"
	recordError   = "error"
	recordWarning = "warning"
	recordStats   = "stats"
)

// ndjsonRecord is one line of the line-delimited format. Exactly one payload
// field is set, selected by Type.
type ndjsonRecord struct {
	Type          string       `json:"type"`
	SchemaVersion string       `json:"schema_version,omitempty"`
	Kind          Kind         `json:"kind,omitempty"`
	Root          string       `json:"root,omitempty"`
	Node          *Node        `json:"node,omitempty"`
	Edge          *Edge        `json:"edge,omitempty"`
	Error         *FileError   `json:"error,omitempty"`
	Warning       *ast.Warning `json:"warning,omitempty"`
	Stats         *Stats       `json:"stats,omitempty"`
}

// WriteReport serializes a report.
//
// Description:
//
//	FormatJSON writes a single document indented with two spaces.
//	FormatNDJSON writes a meta record, then one record per node, edge,
//	error and warning, and a closing stats record. The report's canonical
//	order is preserved, so output is byte-identical for identical reports.
//
// Inputs:
//
//	w - Destination writer.
//	r - The report. Must not be nil.
//	format - Output format.
//
// Outputs:
//
//	error - ErrUnsupportedFormat, ErrInvalidReport for a nil report, or a
//	        write error.
func WriteReport(w io.Writer, r *Report, format Format) error {
	if r == nil {
		return fmt.Errorf("%w: nil report", ErrInvalidReport)
	}
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	case FormatNDJSON:
		return writeNDJSON(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func writeNDJSON(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	records := make([]ndjsonRecord, 0, len(r.Nodes)+len(r.Edges)+len(r.Errors)+len(r.Warnings)+2)
	records = append(records, ndjsonRecord{
		Type:          recordMeta,
		SchemaVersion: r.SchemaVersion,
		Kind:          r.Kind,
		Root:          r.Root,
	})
	for i := range r.Nodes {
		records = append(records, ndjsonRecord{Type: recordNode, Node: &r.Nodes[i]})
	}
	for i := range r.Edges {
		records = append(records, ndjsonRecord{Type: recordEdge, Edge: &r.Edges[i]})
	}
	for i := range r.Errors {
		records = append(records, ndjsonRecord{Type: recordError, Error: &r.Errors[i]})
	}
	for i := range r.Warnings {
		records = append(records, ndjsonRecord{Type: recordWarning, Warning: &r.Warnings[i]})
	}
	stats := r.Stats
	records = append(records, ndjsonRecord{Type: recordStats, Stats: &stats})

	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding %s record: %w", rec.Type, err)
		}
	}
	return bw.Flush()
}

// ReadReport decodes a report written by WriteReport in either format.
//
// Description:
//
//	The format is detected from the first JSON value: a record with
//	"type": "meta" starts a line-delimited stream, anything else is decoded
//	as a single document. The schema version must equal SchemaVersion.
//
// Outputs:
//
//	*Report - The decoded report in canonical order.
//	error - ErrInvalidReport or ErrSchemaVersion, wrapped with detail.
func ReadReport(r io.Reader) (*Report, error) {
	dec := json.NewDecoder(r)

	var first json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(first, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	var report *Report
	var err error
	if probe.Type == recordMeta {
		report, err = readNDJSON(first, dec)
	} else {
		report, err = readDocument(first, dec)
	}
	if err != nil {
		return nil, err
	}
	if report.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %q (expected %q)", ErrSchemaVersion, report.SchemaVersion, SchemaVersion)
	}
	if report.Kind != KindBlueprint && report.Kind != KindCall {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidReport, report.Kind)
	}
	report.canonicalize()
	return report, nil
}

func readDocument(first json.RawMessage, dec *json.Decoder) (*Report, error) {
	var report Report
	strict := json.NewDecoder(bytes.NewReader(first))
	strict.DisallowUnknownFields()
	if err := strict.Decode(&report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after report document", ErrInvalidReport)
	}
	return &report, nil
}

func readNDJSON(first json.RawMessage, dec *json.Decoder) (*Report, error) {
	var meta ndjsonRecord
	if err := json.Unmarshal(first, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	report := &Report{
		SchemaVersion: meta.SchemaVersion,
		Kind:          meta.Kind,
		Root:          meta.Root,
	}

	sawStats := false
	for line := 2; ; line++ {
		var rec ndjsonRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidReport, line, err)
		}
		switch {
		case rec.Type == recordNode && rec.Node != nil:
			report.Nodes = append(report.Nodes, *rec.Node)
		case rec.Type == recordEdge && rec.Edge != nil:
			report.Edges = append(report.Edges, *rec.Edge)
		case rec.Type == recordError && rec.Error != nil:
			report.Errors = append(report.Errors, *rec.Error)
		case rec.Type == recordWarning && rec.Warning != nil:
			report.Warnings = append(report.Warnings, *rec.Warning)
		case rec.Type == recordStats && rec.Stats != nil:
			report.Stats = *rec.Stats
			sawStats = true
		default:
			return nil, fmt.Errorf("%w: record %d: unexpected %q record", ErrInvalidReport, line, rec.Type)
		}
	}
	if !sawStats {
		return nil, fmt.Errorf("%w: missing stats record", ErrInvalidReport)
	}
	return report, nil
}
