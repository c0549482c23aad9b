package overlap

import (
	"sort"

	"pseudobulk/domain/core"
	"pseudobulk/domain/de"
)

// BuildTable computes combinatorial membership of one direction's gene sets
// across contrasts. Rows are the union of member genes; a row exists only if
// the gene belongs to at least one contrast's set, so no all-zero rows
// appear. Row order is sorted by symbol, column order follows the input
// sets.
//
// This table is the sole artifact feeding the combinatorial overlap
// visualization; rendering it is someone else's concern.
func BuildTable(direction de.Direction, sets []*de.GeneSet) *de.OverlapTable {
	contrasts := make([]string, len(sets))
	union := make(map[core.GeneSymbol]bool)
	for i, s := range sets {
		contrasts[i] = s.Contrast
		for _, sym := range s.Symbols() {
			union[sym] = true
		}
	}

	symbols := make([]core.GeneSymbol, 0, len(union))
	for sym := range union {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	rows := make([]de.OverlapRow, len(symbols))
	for i, sym := range symbols {
		flags := make([]int, len(sets))
		for j, s := range sets {
			if s.Contains(sym) {
				flags[j] = 1
			}
		}
		rows[i] = de.OverlapRow{Symbol: sym, Flags: flags}
	}

	return &de.OverlapTable{Direction: direction, Contrasts: contrasts, Rows: rows}
}
