package agents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fitsci/curator/pkg/llm"
	"github.com/fitsci/curator/pkg/store"
)

// KnowledgeStore is the slice of the persistence contract the knowledge-base
// agent consumes.
type KnowledgeStore interface {
	ListPendingEmbeddings(ctx context.Context, limit int) ([]store.Claim, error)
	UpdateEmbedding(ctx context.Context, id uuid.UUID, vec []float32, status string, embeddingError *string) error
	UpsertEvidence(ctx context.Context, topic, category string, totalScore float64) error
	ResetEmbeddings(ctx context.Context) (int, error)
}

// KnowledgeBaseAgent gives approved claims semantic recall by computing
// their embeddings, and keeps the per-category evidence aggregate current.
type KnowledgeBaseAgent struct {
	*Base
	store     KnowledgeStore
	llm       llm.Service
	batchSize int
}

// NewKnowledgeBaseAgent creates the knowledge-base agent.
func NewKnowledgeBaseAgent(st KnowledgeStore, svc llm.Service, batchSize int) *KnowledgeBaseAgent {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &KnowledgeBaseAgent{
		Base:      NewBase("knowledge_base"),
		store:     st,
		llm:       svc,
		batchSize: batchSize,
	}
}

// Process embeds one batch of claims atomically claimed from the store and
// folds each into the evidence hierarchy.
func (a *KnowledgeBaseAgent) Process(ctx context.Context) (res Result, err error) {
	defer func(start time.Time) { a.observe(start, err) }(time.Now())

	claims, err := a.store.ListPendingEmbeddings(ctx, a.batchSize)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return Result{"processed": 0, "embeddings": 0, "hierarchy_updates": 0}, nil
	}
	a.logger.Info("Integrating claims", "count", len(claims))

	embedded, hierarchyUpdates, failed := 0, 0, 0
	for i := range claims {
		claim := &claims[i]
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if a.embedClaim(ctx, claim) {
			embedded++
		} else {
			failed++
		}

		score := hierarchyScore(claim)
		if uerr := a.store.UpsertEvidence(ctx, claim.Category, claim.Category, score); uerr != nil {
			a.logger.Error("Failed to update evidence hierarchy", "claim_id", claim.ID, "error", uerr)
		} else {
			hierarchyUpdates++
		}
	}

	a.addStat("claims_processed", len(claims))
	a.addStat("embeddings_generated", embedded)
	a.addStat("hierarchy_updated", hierarchyUpdates)
	a.logger.Info("Knowledge base integration complete",
		"processed", len(claims), "embeddings", embedded,
		"hierarchy_updates", hierarchyUpdates, "failed", failed)
	return Result{
		"processed":         len(claims),
		"embeddings":        embedded,
		"hierarchy_updates": hierarchyUpdates,
		"failed":            failed,
	}, nil
}

// embedClaim computes and stores the claim's vector, or records the failure
// so the rebuild path can retry it later.
func (a *KnowledgeBaseAgent) embedClaim(ctx context.Context, claim *store.Claim) bool {
	if a.llm == nil {
		a.markFailed(ctx, claim.ID, errLLMUnavailable.Error())
		return false
	}

	vec, err := a.llm.Embed(ctx, claim.Claim)
	if err != nil {
		a.markFailed(ctx, claim.ID, err.Error())
		return false
	}
	if len(vec) == 0 {
		a.markFailed(ctx, claim.ID, "empty embedding generated")
		return false
	}

	if err := a.store.UpdateEmbedding(ctx, claim.ID, vec, store.EmbeddingCompleted, nil); err != nil {
		a.logger.Error("Failed to store embedding", "claim_id", claim.ID, "error", err)
		a.markFailed(ctx, claim.ID, "failed to store embedding")
		return false
	}
	return true
}

func (a *KnowledgeBaseAgent) markFailed(ctx context.Context, id uuid.UUID, reason string) {
	if err := a.store.UpdateEmbedding(ctx, id, nil, store.EmbeddingFailed, &reason); err != nil {
		a.logger.Error("Failed to mark embedding failed", "claim_id", id, "error", err)
	}
}

// hierarchyScore is the claim's contribution to its category's evidence
// density.
func hierarchyScore(claim *store.Claim) float64 {
	score := 0.2 * float64(claim.EvidenceLevel) * claim.ConfidenceScore
	if claim.SampleSize != nil {
		switch {
		case *claim.SampleSize >= 1000:
			score *= 1.2
		case *claim.SampleSize >= 100:
			score *= 1.1
		}
	}
	if claim.ConflictingEvidence {
		score *= 0.8
	}
	return min(1.0, score)
}

// RebuildEmbeddings is the maintenance path: it flips every active claim
// back to pending and re-embeds them batch by batch.
func (a *KnowledgeBaseAgent) RebuildEmbeddings(ctx context.Context) (Result, error) {
	reset, err := a.store.ResetEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Rebuilding embeddings", "claims", reset)

	succeeded, failed := 0, 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		claims, err := a.store.ListPendingEmbeddings(ctx, a.batchSize)
		if err != nil {
			return nil, err
		}
		if len(claims) == 0 {
			break
		}
		for i := range claims {
			if a.embedClaim(ctx, &claims[i]) {
				succeeded++
			} else {
				failed++
			}
		}
	}

	a.logger.Info("Embedding rebuild complete", "success", succeeded, "failed", failed)
	return Result{"total": reset, "success": succeeded, "failed": failed}, nil
}
