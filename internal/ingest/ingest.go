// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest implements prd001-ingest: loading per-source record
// exports from a directory into the unified RawRecord form, in the
// canonical order that downstream tie-breaking depends on.
//
// See docs/ARCHITECTURE § Ingestion for the stage contract.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Result carries everything ingestion produces. Records are ordered by
// source priority, then export-file name, then file position; record IDs
// ("pubmed-00042") number each source's records in that order, so a rerun
// over the same exports reproduces the same IDs.
type Result struct {
	Records   []types.RawRecord
	Skipped   []types.SkippedRecord
	PerSource map[types.SourceType]int
	Files     int
}

// exportRecord is the per-record shape shared by all source exports. Field
// presence varies by source; identifiers additionally vary in type, since
// some exports emit numeric PMIDs and years.
type exportRecord struct {
	Title    string     `json:"title" yaml:"title"`
	Abstract string     `json:"abstract" yaml:"abstract"`
	DOI      flexString `json:"doi" yaml:"doi"`
	PMID     flexString `json:"pmid" yaml:"pmid"`
	ArxivID  string     `json:"arxiv_id" yaml:"arxiv_id"`
	Year     flexString `json:"year" yaml:"year"`
	Venue    string     `json:"venue" yaml:"venue"`
	Journal  string     `json:"journal" yaml:"journal"`
}

// flexString accepts strings, numbers, and nulls where exports disagree.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	return fmt.Errorf("value %s is neither string nor number", data)
}

func (f *flexString) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*f = ""
		return nil
	}
	*f = flexString(value.Value)
	return nil
}

// LoadDir reads every *.json, *.yaml, and *.yml export under dir. A file
// is either a bare record array or an envelope with a records key; the
// source database comes from the envelope's source field when present,
// otherwise from the longest known source name prefixing the file name
// ("biorxiv_medrxiv_2026-02-06.json"). Records without a title and files
// whose source cannot be determined are skipped with a reason, never
// silently dropped.
func LoadDir(dir string, log zerolog.Logger) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("reading exports directory: %w", err)
	}

	res := Result{PerSource: make(map[types.SourceType]int)}
	bySource := make(map[types.SourceType][]types.RawRecord)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return Result{}, fmt.Errorf("reading export %s: %w", name, err)
		}

		envelopeSource, items, err := parseExport(data, ext)
		if err != nil {
			return Result{}, fmt.Errorf("parsing export %s: %w", name, err)
		}

		source, ok := detectSource(envelopeSource, name, ext)
		if !ok {
			log.Warn().Str("file", name).Msg("cannot determine source database, skipping file")
			res.Skipped = append(res.Skipped, types.SkippedRecord{
				File:   name,
				Reason: "cannot determine source database from envelope or file name",
			})
			continue
		}

		res.Files++
		loaded := len(bySource[source])
		for _, item := range items {
			rec, err := item.record()
			if err != nil {
				res.Skipped = append(res.Skipped, types.SkippedRecord{
					Source: source,
					File:   name,
					Reason: "malformed record: " + err.Error(),
				})
				continue
			}
			if strings.TrimSpace(rec.Title) == "" {
				res.Skipped = append(res.Skipped, types.SkippedRecord{
					Source: source,
					File:   name,
					Reason: "missing title",
				})
				continue
			}
			bySource[source] = append(bySource[source], toRawRecord(rec, item.raw, source))
		}

		log.Debug().Str("file", name).Str("source", string(source)).
			Int("records", len(bySource[source])-loaded).Msg("export loaded")
	}

	// Canonical order: sources by priority rank, records by load order
	// within each source. Representative tie-breaking depends on this.
	for _, source := range sourcesByPriority() {
		recs := bySource[source]
		for i := range recs {
			recs[i].ID = fmt.Sprintf("%s-%05d", source, i+1)
		}
		if len(recs) > 0 {
			res.PerSource[source] = len(recs)
			res.Records = append(res.Records, recs...)
		}
	}

	log.Info().Int("files", res.Files).Int("records", len(res.Records)).
		Int("skipped", len(res.Skipped)).Msg("ingestion complete")
	return res, nil
}

// exportItem pairs a parsed record with its raw payload for provenance.
type exportItem struct {
	decode func(any) error
	raw    json.RawMessage
}

func (it exportItem) record() (exportRecord, error) {
	var rec exportRecord
	err := it.decode(&rec)
	return rec, err
}

// parseExport splits a file into per-record items, accepting both the
// enveloped form ({"source": ..., "records": [...]}) and a bare array.
func parseExport(data []byte, ext string) (string, []exportItem, error) {
	if ext == ".json" {
		return parseJSONExport(data)
	}
	return parseYAMLExport(data)
}

func parseJSONExport(data []byte) (string, []exportItem, error) {
	trimmed := bytes.TrimSpace(data)
	var (
		source string
		raws   []json.RawMessage
	)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return "", nil, err
		}
	} else {
		var env struct {
			Source  string            `json:"source"`
			Records []json.RawMessage `json:"records"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return "", nil, err
		}
		source = env.Source
		raws = env.Records
	}

	items := make([]exportItem, len(raws))
	for i, raw := range raws {
		raw := raw // per-iteration copy: module now compiles as go1.21, pre-loopvar semantics
		items[i] = exportItem{
			decode: func(v any) error { return json.Unmarshal(raw, v) },
			raw:    raw,
		}
	}
	return source, items, nil
}

func parseYAMLExport(data []byte) (string, []exportItem, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return "", nil, err
	}
	if len(root.Content) == 0 {
		return "", nil, nil
	}

	var (
		source string
		nodes  []*yaml.Node
	)
	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		nodes = doc.Content
	case yaml.MappingNode:
		var env struct {
			Source  string      `yaml:"source"`
			Records []yaml.Node `yaml:"records"`
		}
		if err := doc.Decode(&env); err != nil {
			return "", nil, err
		}
		source = env.Source
		for i := range env.Records {
			nodes = append(nodes, &env.Records[i])
		}
	default:
		return "", nil, fmt.Errorf("unexpected document kind %d", doc.Kind)
	}

	items := make([]exportItem, len(nodes))
	for i, node := range nodes {
		node := node // per-iteration copy: module now compiles as go1.21, pre-loopvar semantics
		var raw json.RawMessage
		var generic map[string]any
		if err := node.Decode(&generic); err == nil {
			raw, _ = json.Marshal(generic)
		}
		items[i] = exportItem{
			decode: func(v any) error { return node.Decode(v) },
			raw:    raw,
		}
	}
	return source, items, nil
}

// detectSource resolves a file's source database: an envelope declaration
// wins, then the longest known source name that prefixes the file name.
func detectSource(envelopeSource, fileName, ext string) (types.SourceType, bool) {
	if envelopeSource != "" {
		source := types.SourceType(envelopeSource)
		if types.KnownSource(source) {
			return source, true
		}
		return "", false
	}

	base := strings.TrimSuffix(fileName, ext)
	var best types.SourceType
	for source := range types.DefaultSourcePriority {
		if strings.HasPrefix(base, string(source)) && len(source) > len(best) {
			best = source
		}
	}
	return best, best != ""
}

func toRawRecord(rec exportRecord, raw json.RawMessage, source types.SourceType) types.RawRecord {
	venue := rec.Venue
	if venue == "" {
		venue = rec.Journal
	}
	return types.RawRecord{
		Source:   source,
		Title:    rec.Title,
		Abstract: rec.Abstract,
		DOI:      string(rec.DOI),
		PMID:     string(rec.PMID),
		ArxivID:  rec.ArxivID,
		Year:     string(rec.Year),
		Venue:    venue,
		Raw:      raw,
	}
}

// sourcesByPriority lists the known sources in representative-priority
// order, name-sorted within equal ranks.
func sourcesByPriority() []types.SourceType {
	sources := make([]types.SourceType, 0, len(types.DefaultSourcePriority))
	for source := range types.DefaultSourcePriority {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool {
		ri, rj := types.DefaultSourcePriority[sources[i]], types.DefaultSourcePriority[sources[j]]
		if ri != rj {
			return ri < rj
		}
		return sources[i] < sources[j]
	})
	return sources
}
