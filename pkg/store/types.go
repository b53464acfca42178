package store

import (
	"time"

	"github.com/google/uuid"
)

// Queue item lifecycle.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// Claim lifecycle.
const (
	ClaimStatusDraft      = "draft"
	ClaimStatusActive     = "active"
	ClaimStatusDeprecated = "deprecated"
)

// Embedding lifecycle.
const (
	EmbeddingPending    = "pending"
	EmbeddingProcessing = "processing"
	EmbeddingCompleted  = "completed"
	EmbeddingFailed     = "failed"
)

// Relationship types.
const (
	RelContradicts = "contradicts"
	RelSupports    = "supports"
	RelRelated     = "related"
)

// Source types for queue items.
const (
	SourcePubMed     = "pubmed"
	SourceCrossRef   = "crossref"
	SourceRSSFeed    = "rss_feed"
	SourceWebScrape  = "web_scrape"
	SourcePerplexity = "perplexity"
)

// QueueItem is a candidate paper awaiting claim extraction.
type QueueItem struct {
	ID              uuid.UUID
	Title           string
	Authors         []string
	Abstract        *string
	DOI             *string
	URL             *string
	PublicationDate *time.Time
	SourceType      string
	Status          string
	Priority        int
	RawData         map[string]any
	ErrorMessage    *string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}

// Claim is a distilled scientific assertion.
type Claim struct {
	ID                  uuid.UUID
	Claim               string
	ClaimSummary        *string
	Category            string
	EvidenceLevel       int
	ConfidenceScore     float64
	Status              string
	SourceDOI           *string
	SourceURL           *string
	SourceTitle         *string
	SourceAuthors       []string
	PublicationDate     *time.Time
	SampleSize          *int
	StudyDesign         *string
	Population          *string
	EffectSize          *string
	KeyFindings         []string
	Limitations         *string
	ConflictingEvidence bool
	AutoValidated       bool
	ValidationScore     *float64
	TrustedSource       bool
	EmbeddingStatus     string
	EmbeddingError      *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ClaimPatch is a partial update applied to a claim. Nil fields are left
// untouched.
type ClaimPatch struct {
	Status              *string
	ConfidenceScore     *float64
	ConflictingEvidence *bool
	AutoValidated       *bool
	ValidationScore     *float64
	TrustedSource       *bool
}

// SimilarClaim is a semantic neighbor returned by FindSimilar.
type SimilarClaim struct {
	ID            uuid.UUID
	Claim         string
	Similarity    float64
	EvidenceLevel int
	StudyDesign   *string
	Category      string
}

// Relationship is a directed typed edge between two claims.
type Relationship struct {
	ID            uuid.UUID
	SourceClaimID uuid.UUID
	TargetClaimID uuid.UUID
	Type          string
	Confidence    float64
	Notes         *string
	CreatedAt     time.Time
}

// PromptVersion is one generation of a category's system prompt.
type PromptVersion struct {
	ID                uuid.UUID
	Category          string
	PromptText        string
	Version           int
	KnowledgeSnapshot map[string]any
	PerformanceScore  *float64
	IsActive          bool
	Metadata          map[string]any
	CreatedAt         time.Time
}

// TrustedSource maps a normalized author or journal name to a priority boost.
type TrustedSource struct {
	Name          string
	PriorityBoost int
}
