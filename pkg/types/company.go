package types

import "time"

// Company identifies a listed A-share company. CompanyCode is the exchange
// ticker and the global primary identifier; it is never reused or deleted.
type Company struct {
	CompanyCode string    `json:"company_code"`
	FullName    string    `json:"full_name"`
	ShortName   string    `json:"short_name"`
	Exchange    string    `json:"exchange"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocType distinguishes the two extractor inputs. They share a schema and
// are indistinguishable to the concept store beyond this tag.
type DocType string

const (
	DocTypeAnnualReport   DocType = "annual_report"
	DocTypeResearchReport DocType = "research_report"
)

// ProcessingStatus is SourceDocument's lifecycle state. Both terminal states
// are persistent; a failed document is replayable from RawLLMOutput.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// SourceDocument is an immutable record of one completed LLM extraction,
// except for Status/ErrorText which track replay outcome.
type SourceDocument struct {
	DocID         string
	CompanyCode   string
	DocType       DocType
	PublishedDate time.Time
	Title         string
	FilePath      string
	FileHash      string
	RawLLMOutput  []byte
	Extraction    ExtractionMetadata
	Status        ProcessingStatus
	ErrorText     string
	CreatedAt     time.Time
}

// DisplayName returns the short name the retrieval response shows a user,
// falling back to the full legal name when no short name is on file.
func (c *Company) DisplayName() string {
	if c.ShortName != "" {
		return c.ShortName
	}
	return c.FullName
}

// ExtractionMetadata records provenance of the LLM extraction that produced
// a SourceDocument, for audit and reproducibility.
type ExtractionMetadata struct {
	ModelID       string        `json:"model_id"`
	PromptVersion string        `json:"prompt_version"`
	PromptTokens  int           `json:"prompt_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	WallClock     time.Duration `json:"wall_clock"`
}
