package app

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"pseudobulk/adapters/report"
	"pseudobulk/adapters/sc"
	"pseudobulk/domain/core"
	"pseudobulk/domain/de"
	"pseudobulk/domain/expr"
	"pseudobulk/internal"
	"pseudobulk/internal/aggregate"
	"pseudobulk/internal/classify"
	"pseudobulk/internal/config"
	"pseudobulk/internal/contrast"
	"pseudobulk/internal/errors"
	"pseudobulk/internal/overlap"
	"pseudobulk/ports"
)

// Pipeline orchestrates a full run: read inputs, aggregate to pseudobulk,
// test every pairwise contrast, classify, and write the artifacts.
type Pipeline struct {
	config  *config.Config
	engine  ports.Engine
	results ports.ResultRepository // nil disables persistence
	logger  *internal.Logger
}

// NewPipeline creates a pipeline. Pass a nil repository to skip persistence.
func NewPipeline(cfg *config.Config, engine ports.Engine, results ports.ResultRepository, logger *internal.Logger) *Pipeline {
	return &Pipeline{
		config:  cfg,
		engine:  engine,
		results: results,
		logger:  logger,
	}
}

// RunResult summarizes a completed run
type RunResult struct {
	RunID      core.RunID
	OutputDir  string
	StartedAt  core.Timestamp
	FinishedAt core.Timestamp
	Summaries  []de.ContrastSummary
	Failed     []string
	RuntimeMs  int64
	Pseudobulk *expr.PseudobulkMatrix
}

// Run executes the whole pipeline. Input validation problems abort the run;
// a fitting failure on one contrast is logged and the remaining contrasts
// still complete.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	started := core.Now()
	runID := core.RunID(core.NewID())
	p.logger.Info("run %s starting", runID)

	pb, err := p.buildPseudobulk()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.config.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if _, err := report.WritePseudobulk(p.config.Output.Dir, pb); err != nil {
		return nil, errors.Wrap(err, "writing pseudobulk artifact")
	}

	contrasts, err := p.buildContrasts(pb)
	if err != nil {
		return nil, err
	}
	pairwise := contrast.PairwiseOnly(contrasts)
	p.logger.Info("run %s: %d columns, %d pairwise contrasts", runID, len(pb.Columns), len(pairwise))

	sets := p.testContrasts(ctx, pairwise)

	result, err := p.collectResults(ctx, runID, pb, pairwise, sets)
	if err != nil {
		return nil, err
	}
	finished := core.Now()
	result.StartedAt = started
	result.FinishedAt = finished
	result.RuntimeMs = finished.Time().Sub(started.Time()).Milliseconds()

	if _, _, err := report.WriteRunReport(p.config.Output.Dir, report.RunReport{
		RunID:        runID.String(),
		StartedAt:    started.Time(),
		FinishedAt:   finished.Time(),
		Pseudobulk:   pb,
		Summaries:    result.Summaries,
		Failed:       result.Failed,
		Alpha:        p.config.Analysis.Alpha,
		LFCThreshold: p.config.Analysis.LFCThreshold,
	}); err != nil {
		return nil, errors.Wrap(err, "writing run report")
	}

	p.logger.Info("run %s finished in %dms (%d contrasts, %d failed)",
		runID, result.RuntimeMs, len(result.Summaries), len(result.Failed))
	return result, nil
}

// AggregateOnly reads the inputs and writes just the pseudobulk artifact
func (p *Pipeline) AggregateOnly() (*expr.PseudobulkMatrix, error) {
	pb, err := p.buildPseudobulk()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.config.Output.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if _, err := report.WritePseudobulk(p.config.Output.Dir, pb); err != nil {
		return nil, errors.Wrap(err, "writing pseudobulk artifact")
	}
	return pb, nil
}

// buildPseudobulk reads and validates the inputs, then aggregates counts
// into the sample.cluster pseudobulk matrix.
func (p *Pipeline) buildPseudobulk() (*expr.PseudobulkMatrix, error) {
	counts, err := sc.ReadCounts(p.config.Input.CountsFile)
	if err != nil {
		return nil, err
	}
	cells, err := sc.ReadCellMeta(p.config.Input.CellMeta, p.config.Analysis.GroupColumn)
	if err != nil {
		return nil, err
	}

	if p.config.Input.SampleTable != "" {
		table, err := sc.ReadSampleTable(p.config.Input.SampleTable)
		if err != nil {
			return nil, err
		}
		if missing := table.Covers(cells.Samples()); len(missing) > 0 {
			return nil, errors.InputValidationf("sample table does not cover samples %v", missing)
		}
	}

	return aggregate.Aggregate(counts, cells)
}

func (p *Pipeline) buildContrasts(pb *expr.PseudobulkMatrix) ([]*de.Contrast, error) {
	if len(p.config.Analysis.Clusters) == 0 {
		return nil, errors.ConfigInvalid("DE_CLUSTERS must name at least two clusters")
	}
	clusters := make([]core.ClusterID, len(p.config.Analysis.Clusters))
	for i, c := range p.config.Analysis.Clusters {
		clusters[i] = core.ClusterID(c)
	}
	return contrast.Build(pb, clusters, core.SampleName(p.config.Analysis.OutlierSample))
}

// testContrasts fits and tests every pairwise contrast in parallel. Each
// contrast runs under its own timeout; a failed contrast is logged and
// leaves a nil slot in the result slice.
func (p *Pipeline) testContrasts(ctx context.Context, pairwise []*de.Contrast) []*de.ResultSet {
	sets := make([]*de.ResultSet, len(pairwise))

	var g errgroup.Group
	g.SetLimit(p.config.Run.Workers)
	for i, c := range pairwise {
		i, c := i, c
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, p.config.Run.ContrastTimeout)
			defer cancel()

			set, err := p.testContrast(cctx, c)
			if err != nil {
				p.logger.Warn("%v", errors.FittingFailure(c.Name, err))
				return nil
			}
			sets[i] = set
			p.logger.Debug("contrast %s tested: %d genes", c.Name, len(set.Results))
			return nil
		})
	}
	g.Wait()
	return sets
}

func (p *Pipeline) testContrast(ctx context.Context, c *de.Contrast) (*de.ResultSet, error) {
	model, err := p.engine.Fit(ctx, c, p.config.Analysis.FitMethod)
	if err != nil {
		return nil, err
	}
	set, err := p.engine.Test(ctx, model)
	if err != nil {
		return nil, err
	}
	return p.engine.Shrink(ctx, model, set, "normal")
}

// collectResults classifies each tested contrast, writes the per-contrast
// and cross-contrast artifacts, and persists results when a repository is
// configured.
func (p *Pipeline) collectResults(ctx context.Context, runID core.RunID, pb *expr.PseudobulkMatrix, pairwise []*de.Contrast, sets []*de.ResultSet) (*RunResult, error) {
	alpha := p.config.Analysis.Alpha
	tau := p.config.Analysis.LFCThreshold

	var summaries []de.ContrastSummary
	var failed []string
	var tested []*de.ResultSet
	geneSets := make(map[de.Direction][]*de.GeneSet, len(de.Directions))

	for i, set := range sets {
		if set == nil {
			failed = append(failed, pairwise[i].Name)
			continue
		}
		tested = append(tested, set)

		cls := classify.Classify(set, alpha, tau)
		summary := classify.Summarize(pairwise[i], set, cls, alpha, tau)
		summaries = append(summaries, summary)
		for _, d := range de.Directions {
			geneSets[d] = append(geneSets[d], cls.Set(d))
		}

		if _, err := report.WriteResults(p.config.Output.Dir, set); err != nil {
			return nil, errors.Wrap(err, "writing DE table")
		}

		if p.results != nil {
			if err := p.results.SaveResults(ctx, runID, set); err != nil {
				return nil, err
			}
			if err := p.results.SaveSummary(ctx, runID, summary); err != nil {
				return nil, err
			}
		}
	}

	if len(tested) == 0 && len(failed) > 0 {
		return nil, errors.InternalError(fmt.Sprintf("all %d contrasts failed", len(failed)))
	}

	for _, d := range de.Directions {
		table := overlap.BuildTable(d, geneSets[d])
		if _, err := report.WriteOverlap(p.config.Output.Dir, table); err != nil {
			return nil, errors.Wrap(err, "writing overlap table")
		}
	}

	if _, err := report.WriteSummary(p.config.Output.Dir, summaries); err != nil {
		return nil, errors.Wrap(err, "writing summary table")
	}
	if _, err := report.WriteWorkbook(p.config.Output.Dir, summaries, tested); err != nil {
		return nil, errors.Wrap(err, "writing workbook")
	}

	return &RunResult{
		RunID:      runID,
		OutputDir:  p.config.Output.Dir,
		Summaries:  summaries,
		Failed:     failed,
		Pseudobulk: pb,
	}, nil
}
