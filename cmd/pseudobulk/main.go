package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pseudobulk/adapters/api"
	"pseudobulk/adapters/nbinom"
	"pseudobulk/adapters/postgres"
	"pseudobulk/app"
	"pseudobulk/internal"
	"pseudobulk/internal/config"
	"pseudobulk/ports"
)

func main() {
	// .env is optional; environment variables win
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "pseudobulk",
		Short: "Pseudobulk differential expression pipeline for clustered single-cell data",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newAggregateCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Aggregate counts and test every pairwise cluster contrast",
		Long: `Run the full pipeline: aggregate the gene x cell counts into sample.cluster
pseudobulk columns, build the contrast set, fit and test each pairwise
contrast, and write the result artifacts to the output directory.

Inputs and parameters come from the environment (or a .env file):
DE_COUNTS, DE_CELL_META, DE_SAMPLE_TABLE, DE_CLUSTERS, DE_OUT_DIR,
DE_ALPHA, DE_LFC_THRESHOLD, DE_OUTLIER_SAMPLE, DE_WORKERS.
Set DATABASE_URL to also persist results to PostgreSQL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			var repo ports.ResultRepository
			if cfg.Database.URL != "" {
				db, err := postgres.Connect(cfg.Database.URL)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := postgres.EnsureSchema(cmd.Context(), db); err != nil {
					return err
				}
				repo = postgres.NewResultRepository(db)
			}

			pipeline := app.NewPipeline(cfg, nbinom.New(nbinom.DefaultConfig()), repo, logger)
			result, err := pipeline.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("run %s complete: %d contrasts tested, %d failed, artifacts in %s\n",
				result.RunID, len(result.Summaries), len(result.Failed), result.OutputDir)
			for _, s := range result.Summaries {
				fmt.Printf("  %s: %d up, %d down (%s nonzero)\n", s.Contrast, s.Up, s.Down, s.NonZeroVsTotal())
			}
			for _, name := range result.Failed {
				fmt.Printf("  %s: FAILED\n", name)
			}
			return nil
		},
	}
}

func newAggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate counts to pseudobulk and stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			pipeline := app.NewPipeline(cfg, nbinom.New(nbinom.DefaultConfig()), nil, logger)
			pb, err := pipeline.AggregateOnly()
			if err != nil {
				return err
			}

			fmt.Printf("aggregated %d genes into %d sample.cluster columns, artifact in %s\n",
				len(pb.Genes), len(pb.Columns), cfg.Output.Dir)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the artifacts of a finished run over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			server := api.NewServer(cfg.Output.Dir, logger)
			return server.ListenAndServe(cfg.Server.Port)
		},
	}
}

func bootstrap() (*config.Config, *internal.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, internal.NewDefaultLogger(), nil
}
