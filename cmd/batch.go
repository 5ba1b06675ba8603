package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/index"
)

func newBatchCmd() *cobra.Command {
	var (
		indexPath string
		chunks    int
		dataset   string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scan the cluster index and publish candidate batches",
		Long: `Reads the cluster index, fetches each referenced CDX chunk, keeps
records captured with status 200 and English content, and publishes them
in fixed-size batches to the work queue.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if indexPath == "" {
				indexPath = cfg.Index.Path
			}
			if chunks < 0 {
				chunks = cfg.Index.MaxChunks
			}
			if dataset == "" {
				dataset = cfg.Index.Dataset
			}

			loc, err := index.Open(indexPath)
			if err != nil {
				return err
			}
			defer func() { _ = loc.Close() }()

			producer, err := appInstance.NewProducer(cmd.Context(), dataset)
			if err != nil {
				return fmt.Errorf("init producer: %w", err)
			}
			if err := producer.Run(cmd.Context(), loc.Limit(chunks)); err != nil {
				return fmt.Errorf("run batcher: %w", err)
			}
			stats := producer.Stats()
			appInstance.Logger().Info("batch command finished",
				zap.String("dataset", dataset),
				zap.Int("batches", stats.Batches),
				zap.Int("passed", stats.Passed),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&indexPath, "index", "", "path to cluster.idx (defaults to index.path)")
	cmd.Flags().IntVar(&chunks, "chunks", -1, "maximum index rows to process, 0 for all (defaults to index.max_chunks)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "crawl identifier such as CC-MAIN-2024-30 (defaults to index.dataset)")
	return cmd
}
