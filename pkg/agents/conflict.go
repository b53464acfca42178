package agents

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitsci/curator/pkg/llm"
	"github.com/fitsci/curator/pkg/store"
)

// negationWords flag a claim as asserting an absence of effect.
var negationWords = []string{"not", "no", "never", "without"}

// ConflictStore is the slice of the persistence contract the conflict agent
// consumes.
type ConflictStore interface {
	ListRecentUnflagged(ctx context.Context, within time.Duration, limit int) ([]store.Claim, error)
	FindSimilar(ctx context.Context, embedding []float32, threshold float64, limit int, category *string, minEvidence *int) ([]store.SimilarClaim, error)
	ListByCategoryFiltered(ctx context.Context, category string, minEvidence int, minConfidence float64, limit int) ([]store.Claim, error)
	AddRelationship(ctx context.Context, source, target uuid.UUID, relType string, confidence float64, notes *string) error
	UpdateClaim(ctx context.Context, id uuid.UUID, patch store.ClaimPatch) error
	ListConflicted(ctx context.Context, limit int) ([]store.Claim, error)
	RelationshipsFor(ctx context.Context, claimID uuid.UUID) ([]store.Relationship, error)
}

// ConflictConfig tunes the conflict scan.
type ConflictConfig struct {
	BatchSize           int
	SimilarityThreshold float64
	RecentWindow        time.Duration
}

// conflictHit is one detected contradiction against an existing claim.
type conflictHit struct {
	id         uuid.UUID
	confidence float64
	kind       string
}

// ConflictAgent scans recently approved claims for contradictions with
// prior knowledge, records contradicts relationships, and flags the claims.
type ConflictAgent struct {
	*Base
	store ConflictStore
	llm   llm.Service
	cfg   ConflictConfig
}

// NewConflictAgent creates the conflict agent.
func NewConflictAgent(st ConflictStore, svc llm.Service, cfg ConflictConfig) *ConflictAgent {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.75
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 30 * 24 * time.Hour
	}
	return &ConflictAgent{
		Base:  NewBase("conflict"),
		store: st,
		llm:   svc,
		cfg:   cfg,
	}
}

// Process checks one batch of recent unflagged claims for contradictions.
func (a *ConflictAgent) Process(ctx context.Context) (res Result, err error) {
	defer func(start time.Time) { a.observe(start, err) }(time.Now())

	claims, err := a.store.ListRecentUnflagged(ctx, a.cfg.RecentWindow, a.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return Result{"checked": 0, "conflicts_found": 0, "relationships_created": 0}, nil
	}
	a.logger.Info("Checking claims for conflicts", "count", len(claims))

	checked, conflictsFound, relationshipsCreated, flagged := 0, 0, 0, 0
	for i := range claims {
		claim := &claims[i]
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		hits := a.findConflicts(ctx, claim)
		checked++
		if len(hits) == 0 {
			continue
		}

		for _, hit := range hits {
			note := "Detected conflict: " + hit.kind
			if rerr := a.store.AddRelationship(ctx, claim.ID, hit.id, store.RelContradicts, hit.confidence, &note); rerr != nil {
				a.logger.Error("Failed to record conflict relationship",
					"claim_id", claim.ID, "target", hit.id, "error", rerr)
				continue
			}
			relationshipsCreated++
		}

		yes := true
		if uerr := a.store.UpdateClaim(ctx, claim.ID, store.ClaimPatch{ConflictingEvidence: &yes}); uerr != nil {
			a.logger.Error("Failed to flag claim", "claim_id", claim.ID, "error", uerr)
		} else {
			flagged++
		}
		conflictsFound += len(hits)
	}

	a.addStat("conflicts_detected", conflictsFound)
	a.addStat("relationships_created", relationshipsCreated)
	a.addStat("claims_flagged", flagged)
	a.logger.Info("Conflict detection complete",
		"checked", checked, "conflicts_found", conflictsFound,
		"relationships_created", relationshipsCreated)
	return Result{
		"checked":               checked,
		"conflicts_found":       conflictsFound,
		"relationships_created": relationshipsCreated,
		"claims_flagged":        flagged,
	}, nil
}

func (a *ConflictAgent) findConflicts(ctx context.Context, claim *store.Claim) []conflictHit {
	var hits []conflictHit
	seen := map[uuid.UUID]bool{}

	for _, n := range a.semanticNeighbors(ctx, claim) {
		// Matching evidence levels usually mean replication, not conflict.
		if n.EvidenceLevel == claim.EvidenceLevel {
			continue
		}
		if !a.analyzeConflict(ctx, claim, &n) {
			continue
		}
		if !seen[n.ID] {
			seen[n.ID] = true
			hits = append(hits, conflictHit{id: n.ID, confidence: n.Similarity, kind: "semantic_conflict"})
		}
	}

	for _, hit := range a.evidenceConflicts(ctx, claim) {
		if !seen[hit.id] {
			seen[hit.id] = true
			hits = append(hits, hit)
		}
	}
	return hits
}

func (a *ConflictAgent) semanticNeighbors(ctx context.Context, claim *store.Claim) []store.SimilarClaim {
	if a.llm == nil {
		return nil
	}
	embedding, err := a.llm.Embed(ctx, claim.Claim)
	if err != nil || len(embedding) == 0 {
		if err != nil {
			a.logger.Warn("Embedding for conflict scan failed", "claim_id", claim.ID, "error", err)
		}
		return nil
	}
	similar, err := a.store.FindSimilar(ctx, embedding, a.cfg.SimilarityThreshold, 10, nil, nil)
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

func (a *ConflictAgent) analyzeConflict(ctx context.Context, claim *store.Claim, n *store.SimilarClaim) bool {
	if a.llm == nil {
		return heuristicConflict(claim.Claim, n.Claim)
	}
	result, err := a.llm.DetectConflict(ctx,
		llm.ClaimSide{Claim: claim.Claim, EvidenceLevel: claim.EvidenceLevel, StudyDesign: designOf(claim.StudyDesign)},
		llm.ClaimSide{Claim: n.Claim, EvidenceLevel: n.EvidenceLevel, StudyDesign: designOf(n.StudyDesign)})
	if err != nil {
		a.logger.Warn("Conflict analysis failed", "claim_id", claim.ID, "error", err)
		return false
	}
	return result.ConflictDetected
}

// heuristicConflict fires when two claims about the same thing disagree on
// polarity: they share at least three tokens and exactly one of them
// contains a negation word.
func heuristicConflict(first, second string) bool {
	firstLower := strings.ToLower(first)
	secondLower := strings.ToLower(second)
	if hasNegation(firstLower) == hasNegation(secondLower) {
		return false
	}
	return sharedTokens(firstLower, secondLower) >= 3
}

func hasNegation(lower string) bool {
	for _, word := range negationWords {
		for _, token := range strings.Fields(lower) {
			if token == word {
				return true
			}
		}
	}
	return false
}

func sharedTokens(first, second string) int {
	words := map[string]bool{}
	for _, w := range strings.Fields(first) {
		words[w] = true
	}
	shared := 0
	for _, w := range strings.Fields(second) {
		if words[w] {
			shared++
			delete(words, w)
		}
	}
	return shared
}

// evidenceConflicts surfaces same-category claims with strictly higher
// evidence that talk about the same subject.
func (a *ConflictAgent) evidenceConflicts(ctx context.Context, claim *store.Claim) []conflictHit {
	others, err := a.store.ListByCategoryFiltered(ctx, claim.Category, 1, 0, 100)
	if err != nil {
		a.logger.Warn("Category scan failed", "claim_id", claim.ID, "error", err)
		return nil
	}

	var hits []conflictHit
	for i := range others {
		other := &others[i]
		if other.ID == claim.ID || other.EvidenceLevel <= claim.EvidenceLevel {
			continue
		}
		if sharedTokens(strings.ToLower(claim.Claim), strings.ToLower(other.Claim)) >= 2 {
			hits = append(hits, conflictHit{id: other.ID, confidence: 0.6, kind: "evidence_conflict"})
		}
	}
	return hits
}

// AnalyzeNetwork is a diagnostic over the contradicts graph: aggregate
// counts plus the five most-contradicted claims.
func (a *ConflictAgent) AnalyzeNetwork(ctx context.Context) (Result, error) {
	claims, err := a.store.ListConflicted(ctx, 1000)
	if err != nil {
		return nil, err
	}

	type node struct {
		id    uuid.UUID
		count int
	}
	var nodes []node
	totalEdges := 0
	for i := range claims {
		rels, rerr := a.store.RelationshipsFor(ctx, claims[i].ID)
		if rerr != nil {
			a.logger.Warn("Failed to load relationships", "claim_id", claims[i].ID, "error", rerr)
			continue
		}
		count := 0
		for _, rel := range rels {
			if rel.Type == store.RelContradicts {
				count++
			}
		}
		if count > 0 {
			nodes = append(nodes, node{id: claims[i].ID, count: count})
			totalEdges += count
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].count > nodes[j].count })
	top := nodes[:min(5, len(nodes))]
	mostConflicted := make([]Result, 0, len(top))
	for _, n := range top {
		mostConflicted = append(mostConflicted, Result{"claim_id": n.id.String(), "conflict_count": n.count})
	}

	return Result{
		"total_conflicting_claims":     len(nodes),
		"total_conflict_relationships": totalEdges / 2,
		"most_conflicted_claims":       mostConflicted,
	}, nil
}
