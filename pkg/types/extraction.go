package types

import "time"

// CompanyExtraction is the company-metadata portion of a completed LLM
// extraction, as produced by the out-of-scope extractor collaborator (§6.3).
type CompanyExtraction struct {
	CompanyCode string
	FullName    string
	ShortName   string
	Exchange    string
}

// ConceptExtraction is one business concept as produced by the extractor,
// before it has been matched/merged into the master set by Fusion.
type ConceptExtraction struct {
	ConceptName      string
	ConceptCategory  ConceptCategory
	ImportanceScore  float64
	DevelopmentStage string
	Details          ConceptDetails
}

// Extraction is the full input to the Archival use-case (§4.5): a completed
// extraction result plus the document-level metadata needed to persist a
// SourceDocument.
type Extraction struct {
	Company       CompanyExtraction
	Concepts      []ConceptExtraction
	DocType       DocType
	PublishedDate time.Time
	Title         string
	FilePath      string
	FileHash      string
	RawLLMOutput  []byte
	Metadata      ExtractionMetadata
}
