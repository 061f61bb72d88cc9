package ashareinsight

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

var fuseCmd = &cobra.Command{
	Use:   "fuse <doc_id | all-unfused>",
	Short: "Replay C7 fusion for an already-archived document",
	Long: `Fuse re-parses a source document's persisted raw_llm_output back into
concepts and re-runs fusion against it, without touching the extractor. Pass
a specific doc_id to replay one document, or "all-unfused" to replay every
document currently in the failed state.`,
	Args: cobra.ExactArgs(1),
	RunE: runFuse,
}

func init() {
	rootCmd.AddCommand(fuseCmd)
}

func runFuse(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	var docs []types.SourceDocument
	if args[0] == "all-unfused" {
		docs, err = a.store.ListDocumentsByStatus(ctx, types.StatusFailed)
		if err != nil {
			return fmt.Errorf("list failed documents: %w", err)
		}
		if len(docs) == 0 {
			a.log.Info("no failed documents to replay")
			return nil
		}
	} else {
		doc, err := a.store.GetDocument(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get document %s: %w", args[0], err)
		}
		docs = []types.SourceDocument{*doc}
	}

	var replayed, failed int
	for _, doc := range docs {
		if err := replayFusion(ctx, a, doc); err != nil {
			a.log.Error("fuse replay failed", "doc_id", doc.DocID, "error", err)
			failed++
			continue
		}
		a.log.Info("fuse replayed", "doc_id", doc.DocID, "company_code", doc.CompanyCode)
		replayed++
	}

	a.log.Info("fuse run complete", "replayed", replayed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d documents failed to replay", apperr.ErrPartialFailure, failed, len(docs))
	}
	return nil
}

// replayFusion re-parses doc.RawLLMOutput back into concepts and re-runs
// fusion, then updates the document's status to reflect the outcome.
func replayFusion(ctx context.Context, a *app, doc types.SourceDocument) error {
	extraction, err := parseExtraction(doc.RawLLMOutput)
	if err != nil {
		return fmt.Errorf("decode raw_llm_output: %w", err)
	}

	fuseErr := a.fusion.FuseDocument(ctx, doc.CompanyCode, doc.DocID, extraction.Concepts)
	if fuseErr != nil {
		if err := a.store.UpdateDocumentStatus(ctx, doc.DocID, types.StatusFailed, fuseErr.Error()); err != nil {
			return fmt.Errorf("record failed replay: %w", err)
		}
		return fuseErr
	}
	return a.store.UpdateDocumentStatus(ctx, doc.DocID, types.StatusCompleted, "")
}
