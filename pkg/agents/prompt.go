package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitsci/curator/pkg/store"
)

// PromptCategories are the knowledge areas the agent maintains system
// prompts for.
var PromptCategories = []string{
	"hypertrophy",
	"strength",
	"endurance",
	"nutrition",
	"recovery",
	"injury_prevention",
	"technique",
	"programming",
	"supplements",
	"general",
}

// promptTemplates hold the per-category prompt bodies. The evidence section
// is rendered from the live knowledge base at generation time; categories
// without a dedicated template fall back to the general one.
var promptTemplates = map[string]string{
	"strength": `You are an evidence-based strength training advisor. Your recommendations are grounded in peer-reviewed research on maximal strength development.

Current knowledge base:
{evidence_section}

Guidelines:
- Prioritize recommendations backed by meta-analyses and systematic reviews
- State evidence levels when giving specific protocols
- Acknowledge uncertainty where the research is mixed
- Account for training age and individual response variability`,

	"hypertrophy": `You are an evidence-based muscle growth advisor. Your recommendations are grounded in peer-reviewed research on hypertrophy training.

Current knowledge base:
{evidence_section}

Guidelines:
- Emphasize training volume, proximity to failure, and progressive overload as primary drivers
- Cite evidence levels when recommending specific set and rep schemes
- Distinguish between acute responses and long-term adaptations
- Flag areas where the literature is still contested`,

	"nutrition": `You are an evidence-based sports nutrition advisor. Your recommendations are grounded in peer-reviewed research on nutrition for training and performance.

Current knowledge base:
{evidence_section}

Guidelines:
- Anchor intake recommendations to body mass where the research does
- Separate well-established findings from emerging evidence
- Note effect sizes, not just statistical significance
- Avoid recommendations outside the scope of the evidence base`,

	"recovery": `You are an evidence-based recovery and adaptation advisor. Your recommendations are grounded in peer-reviewed research on recovery from training.

Current knowledge base:
{evidence_section}

Guidelines:
- Treat sleep as the foundation of recovery before any modality
- Distinguish perceived recovery from measured physiological recovery
- Weigh evidence levels when comparing recovery modalities
- Acknowledge where popular interventions lack scientific support`,

	"endurance": `You are an evidence-based endurance training advisor. Your recommendations are grounded in peer-reviewed research on aerobic development and endurance performance.

Current knowledge base:
{evidence_section}

Guidelines:
- Ground intensity distribution advice in the published literature
- State evidence levels for specific training protocols
- Distinguish findings in trained athletes from untrained populations
- Flag contested areas such as concurrent training interference`,

	"general": `You are an evidence-based exercise science advisor. Your recommendations are grounded in peer-reviewed scientific research.

Current knowledge base:
{evidence_section}

Guidelines:
- Prioritize findings from higher evidence levels
- Communicate uncertainty honestly where research is limited or mixed
- Prefer effect sizes and practical significance over p-values
- Stay within the bounds of the available evidence`,
}

const (
	promptMinLength       = 100
	promptMaxLength       = 8000
	promptGrowthFactor    = 1.2
	promptEvidenceDrift   = 0.5
	promptMaxAge          = 7 * 24 * time.Hour
	promptClaimLimit      = 50
	promptMinEvidence     = 2
	promptMinConfidence   = 0.7
	promptGeneratorVersion = "1.0"
)

// KnowledgeSummary is the aggregate view of one category's active claims
// that prompt generation is based on.
type KnowledgeSummary struct {
	Category         string
	TotalClaims      int
	AvgEvidenceLevel float64
	AvgConfidence    float64
	TopClaims        []store.Claim
	ConflictingAreas []string
	KnowledgeGaps    []string
}

// PromptStore is the slice of the persistence contract the prompt
// engineering agent consumes.
type PromptStore interface {
	ListByCategoryFiltered(ctx context.Context, category string, minEvidence int, minConfidence float64, limit int) ([]store.Claim, error)
	ActivePrompt(ctx context.Context, category string) (*store.PromptVersion, error)
	LatestPromptVersion(ctx context.Context, category string) (*store.PromptVersion, error)
	SavePromptVersion(ctx context.Context, v *store.PromptVersion) (*store.PromptVersion, error)
	ActivatePromptVersion(ctx context.Context, id uuid.UUID) error
}

// PromptEngineeringAgent regenerates per-category system prompts whenever
// the knowledge base has moved enough to make the active prompt stale.
type PromptEngineeringAgent struct {
	*Base
	store PromptStore
}

// NewPromptEngineeringAgent creates the prompt engineering agent.
func NewPromptEngineeringAgent(st PromptStore) *PromptEngineeringAgent {
	return &PromptEngineeringAgent{
		Base:  NewBase("prompt_engineering"),
		store: st,
	}
}

// Process reviews every category and regenerates prompts that drifted from
// the current state of the knowledge base.
func (a *PromptEngineeringAgent) Process(ctx context.Context) (res Result, err error) {
	defer func(start time.Time) { a.observe(start, err) }(time.Now())

	reviewed, generated, activated := 0, 0, 0
	for _, category := range PromptCategories {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		summary, serr := a.analyzeCategory(ctx, category)
		if serr != nil {
			a.logger.Error("Knowledge analysis failed", "category", category, "error", serr)
			continue
		}
		reviewed++
		if summary.TotalClaims == 0 {
			continue
		}

		stale, why := a.shouldUpdate(ctx, summary)
		if !stale {
			continue
		}
		a.logger.Info("Regenerating prompt", "category", category, "trigger", why)

		version, gerr := a.generatePrompt(ctx, summary)
		if gerr != nil {
			a.logger.Error("Prompt generation failed", "category", category, "error", gerr)
			continue
		}
		generated++

		if a.shouldActivate(ctx, version) {
			if aerr := a.store.ActivatePromptVersion(ctx, version.ID); aerr != nil {
				a.logger.Error("Prompt activation failed", "category", category, "error", aerr)
				continue
			}
			activated++
			a.logger.Info("Prompt activated",
				"category", category, "version", version.Version)
		}
	}

	a.addStat("prompts_generated", generated)
	a.addStat("prompts_activated", activated)
	return Result{
		"categories_reviewed": reviewed,
		"prompts_generated":   generated,
		"prompts_activated":   activated,
	}, nil
}

// analyzeCategory summarizes a category's qualifying active claims.
func (a *PromptEngineeringAgent) analyzeCategory(ctx context.Context, category string) (*KnowledgeSummary, error) {
	claims, err := a.store.ListByCategoryFiltered(ctx, category, promptMinEvidence, promptMinConfidence, promptClaimLimit)
	if err != nil {
		return nil, err
	}

	summary := &KnowledgeSummary{Category: category, TotalClaims: len(claims)}
	if len(claims) == 0 {
		summary.KnowledgeGaps = []string{"No validated research available yet"}
		return summary, nil
	}

	evidenceSum, confidenceSum := 0, 0.0
	for i := range claims {
		evidenceSum += claims[i].EvidenceLevel
		confidenceSum += claims[i].ConfidenceScore
		if claims[i].ConflictingEvidence && len(summary.ConflictingAreas) < 5 {
			summary.ConflictingAreas = append(summary.ConflictingAreas, claimHeadline(&claims[i]))
		}
	}
	summary.AvgEvidenceLevel = float64(evidenceSum) / float64(len(claims))
	summary.AvgConfidence = confidenceSum / float64(len(claims))

	sort.SliceStable(claims, func(i, j int) bool {
		if claims[i].EvidenceLevel != claims[j].EvidenceLevel {
			return claims[i].EvidenceLevel > claims[j].EvidenceLevel
		}
		return claims[i].ConfidenceScore > claims[j].ConfidenceScore
	})
	summary.TopClaims = claims[:min(10, len(claims))]

	if summary.TotalClaims < 10 {
		summary.KnowledgeGaps = append(summary.KnowledgeGaps,
			fmt.Sprintf("Limited research available (%d claims)", summary.TotalClaims))
	}
	if summary.AvgEvidenceLevel < 3 {
		summary.KnowledgeGaps = append(summary.KnowledgeGaps,
			"Most evidence is from lower-quality studies")
	}
	return summary, nil
}

// claimHeadline is the short label used for a claim in conflict listings.
func claimHeadline(claim *store.Claim) string {
	if claim.ClaimSummary != nil && *claim.ClaimSummary != "" {
		return *claim.ClaimSummary
	}
	text := claim.Claim
	if len(text) > 100 {
		text = text[:100]
	}
	return text
}

// shouldUpdate decides whether the category's active prompt is stale and
// returns the trigger for logging.
func (a *PromptEngineeringAgent) shouldUpdate(ctx context.Context, summary *KnowledgeSummary) (bool, string) {
	active, err := a.store.ActivePrompt(ctx, summary.Category)
	if err != nil {
		a.logger.Warn("Failed to load active prompt", "category", summary.Category, "error", err)
		return false, ""
	}
	if active == nil {
		return true, "no active prompt"
	}

	snapTotal := snapshotInt(active.KnowledgeSnapshot, "total_claims")
	if float64(summary.TotalClaims) > float64(snapTotal)*promptGrowthFactor {
		return true, "knowledge base grew"
	}

	snapEvidence := snapshotFloat(active.KnowledgeSnapshot, "avg_evidence_level")
	if drift := summary.AvgEvidenceLevel - snapEvidence; drift > promptEvidenceDrift || drift < -promptEvidenceDrift {
		return true, "evidence quality shifted"
	}

	if len(summary.ConflictingAreas) > snapshotInt(active.KnowledgeSnapshot, "conflicting_areas") {
		return true, "new conflicts detected"
	}

	if time.Since(active.CreatedAt) > promptMaxAge {
		return true, "prompt aged out"
	}
	return false, ""
}

// generatePrompt renders, validates, and persists the next prompt version.
func (a *PromptEngineeringAgent) generatePrompt(ctx context.Context, summary *KnowledgeSummary) (*store.PromptVersion, error) {
	template, ok := promptTemplates[summary.Category]
	if !ok {
		template = promptTemplates["general"]
	}
	text := strings.ReplaceAll(template, "{evidence_section}", renderEvidenceSection(summary))

	if err := validatePromptText(text); err != nil {
		return nil, err
	}

	version := 1
	if latest, err := a.store.LatestPromptVersion(ctx, summary.Category); err != nil {
		return nil, err
	} else if latest != nil {
		version = latest.Version + 1
	}

	return a.store.SavePromptVersion(ctx, &store.PromptVersion{
		Category:   summary.Category,
		PromptText: text,
		Version:    version,
		KnowledgeSnapshot: map[string]any{
			"total_claims":       summary.TotalClaims,
			"avg_evidence_level": summary.AvgEvidenceLevel,
			"avg_confidence":     summary.AvgConfidence,
			"conflicting_areas":  len(summary.ConflictingAreas),
			"generated_at":       time.Now().UTC().Format(time.RFC3339),
		},
		Metadata: map[string]any{
			"generator_version": promptGeneratorVersion,
			"template_used":     templateName(summary.Category),
		},
	})
}

func templateName(category string) string {
	if _, ok := promptTemplates[category]; ok {
		return category
	}
	return "general"
}

// renderEvidenceSection formats the knowledge summary for embedding in a
// prompt template.
func renderEvidenceSection(summary *KnowledgeSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total scientific claims: %d\n", summary.TotalClaims)
	fmt.Fprintf(&b, "Average evidence level: %.1f/5\n", summary.AvgEvidenceLevel)
	fmt.Fprintf(&b, "Average confidence: %.1f%%\n", summary.AvgConfidence*100)

	if len(summary.TopClaims) > 0 {
		b.WriteString("\nKey findings (highest evidence):\n")
		for i, claim := range summary.TopClaims[:min(5, len(summary.TopClaims))] {
			fmt.Fprintf(&b, "%d. [%d/5] %s (confidence: %.0f%%)\n",
				i+1, claim.EvidenceLevel, claimHeadline(&claim), claim.ConfidenceScore*100)
		}
	}

	if len(summary.ConflictingAreas) > 0 {
		b.WriteString("\n\nAreas of Active Research/Debate:\n")
		for _, area := range summary.ConflictingAreas {
			b.WriteString("- " + area + "\n")
		}
	}
	if len(summary.KnowledgeGaps) > 0 {
		b.WriteString("\n\nCurrent Knowledge Limitations:\n")
		for _, gap := range summary.KnowledgeGaps {
			b.WriteString("- " + gap + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// validatePromptText rejects prompts that are too short, too long, or lost
// their evidence grounding during rendering.
func validatePromptText(text string) error {
	if len(text) < promptMinLength {
		return fmt.Errorf("prompt too short: %d chars", len(text))
	}
	if len(text) > promptMaxLength {
		return fmt.Errorf("prompt too long: %d chars", len(text))
	}
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "evidence") || !strings.Contains(lower, "scientific") {
		return fmt.Errorf("prompt lost evidence grounding")
	}
	return nil
}

// Snapshots round-trip through jsonb, so numbers come back as float64.
func snapshotInt(snapshot map[string]any, key string) int {
	switch v := snapshot[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func snapshotFloat(snapshot map[string]any, key string) float64 {
	switch v := snapshot[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// shouldActivate promotes the first version, fills a missing active slot,
// and otherwise only replaces older versions.
func (a *PromptEngineeringAgent) shouldActivate(ctx context.Context, version *store.PromptVersion) bool {
	if version.Version == 1 {
		return true
	}
	active, err := a.store.ActivePrompt(ctx, version.Category)
	if err != nil {
		a.logger.Warn("Failed to load active prompt", "category", version.Category, "error", err)
		return false
	}
	return active == nil || version.Version > active.Version
}
