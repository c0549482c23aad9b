package de

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"pseudobulk/domain/core"
	"pseudobulk/domain/expr"
)

// Direction classifies genes by the sign of their moderated fold change
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionChanged Direction = "changed" // union of up and down
)

// Directions lists the classification directions in report order
var Directions = []Direction{DirectionUp, DirectionDown, DirectionChanged}

// TestKind names the statistical test performed by the engine
type TestKind string

const (
	TestWald TestKind = "Wald"
	TestLRT  TestKind = "LRT"
)

// Contrast is one comparison design: a named set of cluster labels plus the
// pseudobulk columns relevant to it. The first contrast of a run spans all
// clusters of interest and is used for QC only, never for pairwise testing.
type Contrast struct {
	Name     string
	Clusters []core.ClusterID
	Columns  []expr.GroupKey
	Counts   *expr.PseudobulkMatrix // column subset owned by this contrast
	Full     bool                   // all-clusters QC design
}

// NewContrast validates the contrast invariants: at least two cluster levels,
// a non-empty column set, and every column's cluster inside the cluster set.
func NewContrast(name string, clusters []core.ClusterID, columns []expr.GroupKey, counts *expr.PseudobulkMatrix, full bool) (*Contrast, error) {
	if len(clusters) < 2 {
		return nil, fmt.Errorf("contrast %s needs at least two cluster levels, got %d", name, len(clusters))
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("contrast %s has an empty column set", name)
	}
	allowed := make(map[core.ClusterID]bool, len(clusters))
	for _, c := range clusters {
		allowed[c] = true
	}
	for _, col := range columns {
		if !allowed[col.Cluster] {
			return nil, fmt.Errorf("contrast %s column %s carries cluster %s outside the contrast", name, col.Label(), col.Cluster)
		}
	}
	return &Contrast{
		Name:     name,
		Clusters: clusters,
		Columns:  columns,
		Counts:   counts,
		Full:     full,
	}, nil
}

// Design renders the model formula used for this contrast. Cluster is the
// sole covariate and the model carries no intercept, so each cluster level
// gets its own coefficient.
func (c *Contrast) Design() string {
	return "~ 0 + cluster"
}

// ClusterLabels returns the per-column cluster assignment, aligned with Columns
func (c *Contrast) ClusterLabels() []core.ClusterID {
	labels := make([]core.ClusterID, len(c.Columns))
	for i, col := range c.Columns {
		labels[i] = col.Cluster
	}
	return labels
}

// ContrastName builds the canonical name for a cluster pairing
func ContrastName(clusters []core.ClusterID) string {
	parts := make([]string, len(clusters))
	for i, c := range clusters {
		parts[i] = "c" + string(c)
	}
	return strings.Join(parts, ".vs.")
}

// Result is the per-gene record produced by the engine for one contrast.
// Undefined p-values and adjusted p-values are carried as NaN: a designed
// outcome for low-count or high-influence genes, not an error.
type Result struct {
	Symbol         core.GeneSymbol `json:"symbol"`
	BaseMean       float64         `json:"base_mean"`
	Log2FoldChange float64         `json:"log2_fold_change"`
	LfcSE          float64         `json:"lfc_se"`
	Stat           float64         `json:"stat"`
	PValue         float64         `json:"p_value"`
	PAdj           float64         `json:"p_adj"`
}

// PValueDefined reports whether the raw p-value is defined
func (r Result) PValueDefined() bool {
	return !math.IsNaN(r.PValue)
}

// PAdjDefined reports whether the adjusted p-value is defined
func (r Result) PAdjDefined() bool {
	return !math.IsNaN(r.PAdj)
}

// ResultSet holds one contrast's per-gene results in stable gene order
type ResultSet struct {
	Contrast string
	Test     TestKind
	// FilterThreshold is the mean-count level below which adjusted
	// p-values were suppressed by independent filtering.
	FilterThreshold float64
	Results         []Result
}

// Get returns the result for a gene symbol
func (s *ResultSet) Get(symbol core.GeneSymbol) (Result, bool) {
	for _, r := range s.Results {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return Result{}, false
}

// GeneSet is a thresholded, direction-specific gene list for one contrast
type GeneSet struct {
	Contrast  string
	Direction Direction
	members   map[core.GeneSymbol]bool
}

// NewGeneSet builds a gene set from member symbols
func NewGeneSet(contrast string, direction Direction, symbols []core.GeneSymbol) *GeneSet {
	members := make(map[core.GeneSymbol]bool, len(symbols))
	for _, s := range symbols {
		members[s] = true
	}
	return &GeneSet{Contrast: contrast, Direction: direction, members: members}
}

// Contains reports set membership
func (g *GeneSet) Contains(symbol core.GeneSymbol) bool {
	return g.members[symbol]
}

// Len returns the set size
func (g *GeneSet) Len() int {
	return len(g.members)
}

// Symbols returns the members in sorted order
func (g *GeneSet) Symbols() []core.GeneSymbol {
	out := make([]core.GeneSymbol, 0, len(g.members))
	for s := range g.members {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ContrastSummary is one row of the run summary table
type ContrastSummary struct {
	Contrast     string   `json:"contrast"`
	Up           int      `json:"up"`
	Down         int      `json:"down"`
	NonZero      int      `json:"nonzero"`
	Total        int      `json:"total"`
	Alpha        float64  `json:"alpha"`
	LFCThreshold float64  `json:"lfc_threshold"`
	Outliers     int      `json:"outliers"`
	LowCounts    int      `json:"low_counts"`
	Design       string   `json:"design"`
	Test         TestKind `json:"test"`
}

// NonZeroVsTotal renders the "nonzero.vs.total" summary column
func (s ContrastSummary) NonZeroVsTotal() string {
	return fmt.Sprintf("%d.vs.%d", s.NonZero, s.Total)
}

// OverlapRow is one gene's membership indicator across contrasts
type OverlapRow struct {
	Symbol core.GeneSymbol
	Flags  []int // 0/1 per contrast, aligned with OverlapTable.Contrasts
}

// OverlapTable records combinatorial gene-set membership for one direction.
// Invariant: every row has at least one set flag.
type OverlapTable struct {
	Direction Direction
	Contrasts []string
	Rows      []OverlapRow
}
