package ashareinsight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/archival"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <path-or-dir>",
	Short: "Archive completed LLM extractions into the concept store",
	Long: `Archive reads one or more extractor-output JSON files (the structured
result of the out-of-scope LLM extraction step) and runs C6: idempotent
insertion of the document plus fusion of its business concepts into the
concept store.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

// extractionFile is the on-disk JSON shape an out-of-scope extractor writes,
// mapping directly onto types.Extraction plus the raw model output bytes.
type extractionFile struct {
	Company struct {
		CompanyCode string `json:"company_code"`
		FullName    string `json:"full_name"`
		ShortName   string `json:"short_name"`
		Exchange    string `json:"exchange"`
	} `json:"company"`
	Concepts []struct {
		ConceptName      string                `json:"concept_name"`
		ConceptCategory  types.ConceptCategory `json:"concept_category"`
		ImportanceScore  float64               `json:"importance_score"`
		DevelopmentStage string                `json:"development_stage"`
		Details          types.ConceptDetails  `json:"details"`
	} `json:"concepts"`
	DocType       types.DocType `json:"doc_type"`
	PublishedDate string        `json:"published_date"`
	Title         string        `json:"title"`
	Metadata      struct {
		ModelID       string `json:"model_id"`
		PromptVersion string `json:"prompt_version"`
		PromptTokens  int    `json:"prompt_tokens"`
		OutputTokens  int    `json:"output_tokens"`
	} `json:"metadata"`
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	files, err := listExtractionFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found under %s", args[0])
	}

	var archived, skipped, failed int
	for _, path := range files {
		extraction, err := loadExtraction(path)
		if err != nil {
			a.log.Error("failed to load extraction file", "path", path, "error", err)
			failed++
			continue
		}

		res, err := a.archival.Archive(ctx, extraction)
		if err != nil {
			if errors.Is(err, archival.ErrSkippedNoAnnualReport) {
				a.log.Warn("archive skipped", "path", path, "company_code", extraction.Company.CompanyCode)
				skipped++
				continue
			}
			a.log.Error("archive failed", "path", path, "error", err)
			failed++
			continue
		}
		a.log.Info("archived", "path", path, "doc_id", res.DocID, "already_existed", res.AlreadyExisted)
		archived++
	}

	a.log.Info("archive run complete", "archived", archived, "skipped", skipped, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files failed to archive", apperr.ErrPartialFailure, failed, len(files))
	}
	return nil
}

func listExtractionFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func parsePublishedDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func loadExtraction(path string) (types.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Extraction{}, err
	}
	extraction, err := parseExtraction(data)
	if err != nil {
		return types.Extraction{}, fmt.Errorf("parse %s: %w", path, err)
	}
	extraction.FilePath = path
	return extraction, nil
}

// parseExtraction decodes extractionFile JSON bytes into a types.Extraction,
// stamping FileHash from the bytes themselves and preserving them verbatim
// as RawLLMOutput so a document archived from this call is later replayable
// by fuse (§4.6) without needing the original file on disk.
func parseExtraction(data []byte) (types.Extraction, error) {
	var f extractionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return types.Extraction{}, err
	}

	sum := sha256.Sum256(data)
	extraction := types.Extraction{
		Company: types.CompanyExtraction{
			CompanyCode: f.Company.CompanyCode,
			FullName:    f.Company.FullName,
			ShortName:   f.Company.ShortName,
			Exchange:    f.Company.Exchange,
		},
		DocType:       f.DocType,
		PublishedDate: parsePublishedDate(f.PublishedDate),
		Title:         f.Title,
		FileHash:      hex.EncodeToString(sum[:]),
		RawLLMOutput:  data,
		Metadata: types.ExtractionMetadata{
			ModelID:       f.Metadata.ModelID,
			PromptVersion: f.Metadata.PromptVersion,
			PromptTokens:  f.Metadata.PromptTokens,
			OutputTokens:  f.Metadata.OutputTokens,
		},
	}
	for _, c := range f.Concepts {
		extraction.Concepts = append(extraction.Concepts, types.ConceptExtraction{
			ConceptName:      c.ConceptName,
			ConceptCategory:  c.ConceptCategory,
			ImportanceScore:  c.ImportanceScore,
			DevelopmentStage: c.DevelopmentStage,
			Details:          c.Details,
		})
	}
	return extraction, nil
}
