// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package audit

import (
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pdiddy/corpus-engine/pkg/types"
)

// RenderSummaryTable formats a run summary for terminal display. Per-source
// and per-strategy breakdowns are indented under their totals, sorted by
// name so the layout is stable across runs.
func RenderSummaryTable(s types.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Value"})

	tw.AppendRow(table.Row{"run", s.RunID})
	tw.AppendRow(table.Row{"input records", s.InputRecords})
	for _, src := range sortedKeys(s.PerSourceInput) {
		tw.AppendRow(table.Row{"  " + src, s.PerSourceInput[src]})
	}
	tw.AppendRow(table.Row{"skipped at ingest", s.SkippedAtIngest})
	tw.AppendRow(table.Row{"clusters", s.Clusters})
	tw.AppendRow(table.Row{"duplicates removed", s.DuplicatesRemoved})
	for _, strategy := range sortedKeys(s.MergesByStrategy) {
		tw.AppendRow(table.Row{"  merged by " + strategy, s.MergesByStrategy[strategy]})
	}
	tw.AppendRow(table.Row{"preprint links", s.PreprintLinks})
	tw.AppendRow(table.Row{"abstracts from members", s.AbstractFromMembers})
	for _, src := range sortedKeys(s.RecoveredBySource) {
		tw.AppendRow(table.Row{"  recovered via " + src, s.RecoveredBySource[src]})
	}
	tw.AppendRow(table.Row{"excluded, no abstract", s.Excluded})
	tw.AppendRow(table.Row{"output records", s.Output})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
