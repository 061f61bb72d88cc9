package ashareinsight

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/vectorize"
)

var (
	vectorizeRebuildAll bool
	vectorizeCompany    string
)

var vectorizeCmd = &cobra.Command{
	Use:   "vectorize",
	Short: "Embed business concepts that are missing or stale vectors",
	Long: `Vectorize runs C8: batches active concepts through the embedding
provider and writes their vectors back, resuming from a checkpoint if a
prior run was interrupted. By default it processes only concepts with no
embedding yet; --rebuild-all re-embeds every active concept.`,
	Args: cobra.NoArgs,
	RunE: runVectorize,
}

func init() {
	vectorizeCmd.Flags().BoolVar(&vectorizeRebuildAll, "rebuild-all", false, "re-embed every active concept, not just unvectorized ones")
	vectorizeCmd.Flags().StringVar(&vectorizeCompany, "company-code", "", "restrict the run to a single company")
	rootCmd.AddCommand(vectorizeCmd)
}

func runVectorize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	mode := vectorize.ModeIncremental
	if vectorizeRebuildAll {
		mode = vectorize.ModeFullRebuild
	}

	processed, failed, err := a.vectorize.Run(ctx, mode, vectorizeCompany)
	a.log.Info("vectorize run complete", "mode", mode, "processed", processed, "failed", failed)
	if err != nil {
		return fmt.Errorf("vectorize run: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d concepts failed to embed", apperr.ErrPartialFailure, failed)
	}
	return nil
}
