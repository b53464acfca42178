package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitsci/curator/pkg/llm"
	"github.com/fitsci/curator/pkg/store"
)

// Study designs that qualify a draft for auto-validation.
var autoValidateDesigns = map[string]bool{
	"meta_analysis":     true,
	"systematic_review": true,
}

const autoValidateMinEvidence = 4

// ValidationStore is the slice of the persistence contract the validation
// agent consumes.
type ValidationStore interface {
	ListDrafts(ctx context.Context, limit int) ([]store.Claim, error)
	UpdateClaim(ctx context.Context, id uuid.UUID, patch store.ClaimPatch) error
	FindSimilar(ctx context.Context, embedding []float32, threshold float64, limit int, category *string, minEvidence *int) ([]store.SimilarClaim, error)
	AddRelationship(ctx context.Context, source, target uuid.UUID, relType string, confidence float64, notes *string) error
	ListTrustedJournals(ctx context.Context) ([]store.TrustedSource, error)
}

// ValidationConfig tunes the validation gates.
type ValidationConfig struct {
	BatchSize            int
	SimilarityThreshold  float64
	MinEvidenceLevel     int
	EnableAutoValidation bool
}

// verdict is the outcome of validating one draft.
type verdict struct {
	valid         bool
	score         float64
	reasons       []string
	duplicateOf   *uuid.UUID
	conflictsWith []uuid.UUID
	auto          bool
}

// ValidationAgent gates draft claims on evidence level, duplication, and
// contradiction, approving them into the active knowledge base or
// deprecating them.
type ValidationAgent struct {
	*Base
	store ValidationStore
	llm   llm.Service
	cfg   ValidationConfig

	trustedJournals []string
}

// NewValidationAgent creates the validation agent.
func NewValidationAgent(st ValidationStore, svc llm.Service, cfg ValidationConfig) *ValidationAgent {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	if cfg.MinEvidenceLevel <= 0 {
		cfg.MinEvidenceLevel = 2
	}
	return &ValidationAgent{
		Base:  NewBase("validation"),
		store: st,
		llm:   svc,
		cfg:   cfg,
	}
}

// Process validates one batch of draft claims.
func (a *ValidationAgent) Process(ctx context.Context) (res Result, err error) {
	defer func(start time.Time) { a.observe(start, err) }(time.Now())

	a.loadTrustedJournals(ctx)

	drafts, err := a.store.ListDrafts(ctx, a.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return Result{"validated": 0, "approved": 0, "rejected": 0, "auto_validated": 0}, nil
	}
	a.logger.Info("Validating draft claims", "count", len(drafts))

	validated, approved, rejected, autoValidated := 0, 0, 0, 0
	for i := range drafts {
		claim := &drafts[i]
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var v verdict
		if a.autoValidatable(claim) {
			v = verdict{valid: true, score: 0.95, auto: true}
		} else {
			v = a.validate(ctx, claim)
		}

		var uerr error
		if v.valid {
			uerr = a.approve(ctx, claim, v)
			if uerr == nil {
				approved++
				if v.auto {
					autoValidated++
				}
			}
		} else {
			uerr = a.reject(ctx, claim, v)
			if uerr == nil {
				rejected++
			}
		}
		if uerr != nil {
			a.logger.Error("Failed to update claim", "claim_id", claim.ID, "error", uerr)
			continue
		}
		validated++
	}

	a.addStat("claims_validated", validated)
	a.addStat("claims_approved", approved)
	a.addStat("claims_rejected", rejected)
	a.addStat("claims_auto_validated", autoValidated)
	a.logger.Info("Validation complete",
		"validated", validated, "approved", approved,
		"auto_validated", autoValidated, "rejected", rejected)
	return Result{
		"validated":      validated,
		"approved":       approved,
		"rejected":       rejected,
		"auto_validated": autoValidated,
	}, nil
}

func (a *ValidationAgent) loadTrustedJournals(ctx context.Context) {
	a.trustedJournals = a.trustedJournals[:0]
	journals, err := a.store.ListTrustedJournals(ctx)
	if err != nil {
		a.logger.Warn("Failed to load trusted journals", "error", err)
		return
	}
	for _, j := range journals {
		if name := normalizeJournalName(j.Name); name != "" {
			a.trustedJournals = append(a.trustedJournals, name)
		}
	}
}

// autoValidatable short-circuits validation for verifiable high-evidence
// syntheses published in trusted journals.
func (a *ValidationAgent) autoValidatable(claim *store.Claim) bool {
	if !a.cfg.EnableAutoValidation {
		return false
	}
	if claim.SourceDOI == nil || *claim.SourceDOI == "" {
		return false
	}
	if claim.EvidenceLevel < autoValidateMinEvidence {
		return false
	}
	if claim.StudyDesign == nil || !autoValidateDesigns[*claim.StudyDesign] {
		return false
	}
	if claim.SourceTitle == nil {
		return false
	}
	title := strings.ToLower(*claim.SourceTitle)
	for _, journal := range a.trustedJournals {
		if strings.Contains(title, journal) {
			return true
		}
	}
	return false
}

func (a *ValidationAgent) validate(ctx context.Context, claim *store.Claim) verdict {
	var v verdict

	if claim.EvidenceLevel < a.cfg.MinEvidenceLevel {
		v.reasons = append(v.reasons, fmt.Sprintf(
			"evidence level %d below minimum %d", claim.EvidenceLevel, a.cfg.MinEvidenceLevel))
	}

	neighbors := a.findSimilar(ctx, claim)
	for _, n := range neighbors {
		if n.Similarity > 0.95 {
			id := n.ID
			v.duplicateOf = &id
			v.reasons = append(v.reasons, "duplicate of claim "+id.String())
			break
		}
		if n.Similarity > a.cfg.SimilarityThreshold && a.conflictsWithNeighbor(ctx, claim, &n) {
			v.conflictsWith = appendUnique(v.conflictsWith, n.ID)
		}
	}

	if a.llm != nil && v.duplicateOf == nil {
		a.mergeLLMValidation(ctx, claim, neighbors, &v)
	}

	v.score = validationScore(claim, len(v.reasons), len(neighbors))
	v.valid = len(v.reasons) == 0 && v.score >= 0.6 && v.duplicateOf == nil
	return v
}

// findSimilar queries the vector index with a slightly lower threshold than
// the conflict gate so near misses still reach the validator prompt.
func (a *ValidationAgent) findSimilar(ctx context.Context, claim *store.Claim) []store.SimilarClaim {
	if a.llm == nil {
		return nil
	}
	embedding, err := a.llm.Embed(ctx, claim.Claim)
	if err != nil || len(embedding) == 0 {
		if err != nil {
			a.logger.Warn("Embedding for similarity search failed", "claim_id", claim.ID, "error", err)
		}
		return nil
	}
	similar, err := a.store.FindSimilar(ctx, embedding, a.cfg.SimilarityThreshold-0.1, 5, nil, nil)
	if err != nil {
		a.logger.Warn("Similarity search failed", "claim_id", claim.ID, "error", err)
		return nil
	}
	out := similar[:0]
	for _, s := range similar {
		if s.ID != claim.ID {
			out = append(out, s)
		}
	}
	return out
}

// conflictsWithNeighbor asks the model whether two near-identical claims
// contradict. Neighbors only exist when embeddings are available, so the
// model is always configured here.
func (a *ValidationAgent) conflictsWithNeighbor(ctx context.Context, claim *store.Claim, n *store.SimilarClaim) bool {
	result, err := a.llm.DetectConflict(ctx,
		llm.ClaimSide{Claim: claim.Claim, EvidenceLevel: claim.EvidenceLevel, StudyDesign: designOf(claim.StudyDesign)},
		llm.ClaimSide{Claim: n.Claim, EvidenceLevel: n.EvidenceLevel, StudyDesign: designOf(n.StudyDesign)})
	if err != nil {
		a.logger.Warn("Conflict check failed", "claim_id", claim.ID, "error", err)
		return false
	}
	return result.ConflictDetected
}

func (a *ValidationAgent) mergeLLMValidation(ctx context.Context, claim *store.Claim, neighbors []store.SimilarClaim, v *verdict) {
	req := llm.ValidationRequest{
		Claim:         claim.Claim,
		Category:      claim.Category,
		EvidenceLevel: claim.EvidenceLevel,
		StudyDesign:   designOf(claim.StudyDesign),
		SampleSize:    claim.SampleSize,
		EffectSize:    claim.EffectSize,
	}
	for _, n := range neighbors {
		req.SimilarClaims = append(req.SimilarClaims, llm.SimilarClaim{ID: n.ID.String(), Claim: n.Claim})
	}

	result, err := a.llm.ValidateClaim(ctx, req)
	if err != nil {
		a.logger.Warn("LLM validation failed", "claim_id", claim.ID, "error", err)
		return
	}
	if !result.IsValid {
		v.reasons = append(v.reasons, result.RejectionReasons...)
	}
	if result.DuplicateOf != nil {
		if id, perr := uuid.Parse(*result.DuplicateOf); perr == nil {
			v.duplicateOf = &id
			v.reasons = append(v.reasons, "duplicate of claim "+id.String())
		}
	}
	for _, raw := range result.ConflictsWith {
		if id, perr := uuid.Parse(raw); perr == nil {
			v.conflictsWith = appendUnique(v.conflictsWith, id)
		}
	}
}

// validationScore blends extractor confidence with evidence strength and
// penalties for rejections and crowded semantic neighborhoods.
func validationScore(claim *store.Claim, rejections, neighbors int) float64 {
	score := claim.ConfidenceScore
	score += float64(claim.EvidenceLevel-1) * 0.05
	if claim.SampleSize != nil {
		switch {
		case *claim.SampleSize >= 100:
			score += 0.1
		case *claim.SampleSize >= 50:
			score += 0.05
		}
	}
	score -= float64(rejections) * 0.2
	score -= float64(neighbors) * 0.05
	return min(1.0, max(0.0, score))
}

func (a *ValidationAgent) approve(ctx context.Context, claim *store.Claim, v verdict) error {
	status := store.ClaimStatusActive
	conflicting := len(v.conflictsWith) > 0
	patch := store.ClaimPatch{
		Status:              &status,
		ConfidenceScore:     &v.score,
		ValidationScore:     &v.score,
		ConflictingEvidence: &conflicting,
	}
	if v.auto {
		yes := true
		patch.AutoValidated = &yes
		patch.TrustedSource = &yes
	}
	if err := a.store.UpdateClaim(ctx, claim.ID, patch); err != nil {
		return err
	}

	note := "Detected during validation"
	for _, conflictID := range v.conflictsWith {
		if err := a.store.AddRelationship(ctx, claim.ID, conflictID, store.RelContradicts, 0.7, &note); err != nil {
			a.logger.Error("Failed to record conflict relationship",
				"claim_id", claim.ID, "target", conflictID, "error", err)
		}
	}
	return nil
}

func (a *ValidationAgent) reject(ctx context.Context, claim *store.Claim, v verdict) error {
	status := store.ClaimStatusDeprecated
	return a.store.UpdateClaim(ctx, claim.ID, store.ClaimPatch{
		Status:          &status,
		ConfidenceScore: &v.score,
		ValidationScore: &v.score,
	})
}

func designOf(d *string) string {
	if d == nil || *d == "" {
		return "unknown"
	}
	return *d
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
