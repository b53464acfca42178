package llm

import "context"

// ExtractedClaim is a single scientific claim pulled out of a paper abstract.
type ExtractedClaim struct {
	Claim         string   `json:"claim"`
	ClaimSummary  string   `json:"claim_summary"`
	EvidenceLevel int      `json:"evidence_level"`
	SampleSize    *int     `json:"sample_size"`
	EffectSize    *string  `json:"effect_size"`
	StudyDesign   string   `json:"study_design"`
	Population    *string  `json:"population"`
	KeyFindings   []string `json:"key_findings"`
	Limitations   *string  `json:"limitations"`
	Category      string   `json:"category"`
	Confidence    float64  `json:"confidence"`
}

// ValidationRequest carries a claim and its context to the validation prompt.
type ValidationRequest struct {
	Claim         string
	Category      string
	EvidenceLevel int
	StudyDesign   string
	SampleSize    *int
	EffectSize    *string
	SimilarClaims []SimilarClaim
}

// SimilarClaim is an existing knowledge entry shown to the validator for
// duplicate and conflict detection.
type SimilarClaim struct {
	ID    string
	Claim string
}

// ValidationResult is the validator's verdict on a claim.
type ValidationResult struct {
	IsValid               bool     `json:"is_valid"`
	ValidationScore       float64  `json:"validation_score"`
	RejectionReasons      []string `json:"rejection_reasons"`
	SuggestedImprovements []string `json:"suggested_improvements"`
	DuplicateOf           *string  `json:"duplicate_of"`
	ConflictsWith         []string `json:"conflicts_with"`
}

// ClaimSide is one side of a pairwise conflict comparison.
type ClaimSide struct {
	Claim         string
	EvidenceLevel int
	StudyDesign   string
}

// ConflictResult is the outcome of comparing two claims.
type ConflictResult struct {
	ConflictDetected     bool    `json:"conflict_detected"`
	ConflictType         string  `json:"conflict_type"`
	Confidence           float64 `json:"confidence"`
	Explanation          string  `json:"explanation"`
	ResolutionSuggestion *string `json:"resolution_suggestion"`
}

// Service is the language-model capability consumed by the agents.
type Service interface {
	ExtractClaims(ctx context.Context, title string, authors []string, abstract string) ([]ExtractedClaim, error)
	ValidateClaim(ctx context.Context, req ValidationRequest) (*ValidationResult, error)
	DetectConflict(ctx context.Context, a, b ClaimSide) (*ConflictResult, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DegradedValidation is the pass-through verdict used when the validator
// cannot be reached. Claims are let through with a note rather than rejected,
// so a provider outage does not silently drain the queue into rejections.
func DegradedValidation(reason string) *ValidationResult {
	return &ValidationResult{
		IsValid:               true,
		ValidationScore:       0.5,
		SuggestedImprovements: []string{"validator unavailable: " + reason},
	}
}

// NoConflict is the neutral verdict used when conflict detection fails.
func NoConflict(explanation string) *ConflictResult {
	return &ConflictResult{
		ConflictDetected: false,
		ConflictType:     "none",
		Confidence:       0,
		Explanation:      explanation,
	}
}
