package agents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fitsci/curator/pkg/llm"
	"github.com/fitsci/curator/pkg/store"
)

// ExtractionStore is the slice of the persistence contract the extraction
// agent consumes.
type ExtractionStore interface {
	ClaimPending(ctx context.Context, limit int) ([]store.QueueItem, error)
	SetQueueStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error
	InsertDraft(ctx context.Context, c *store.Claim) (uuid.UUID, error)
}

// ExtractionAgent lifts pending queue items, elicits structured claims from
// the LLM, and persists them as drafts for validation.
type ExtractionAgent struct {
	*Base
	store     ExtractionStore
	llm       llm.Service
	batchSize int
}

// NewExtractionAgent creates the extraction agent. The LLM service may be
// nil; items then fail with an explanatory message instead of blocking the
// queue.
func NewExtractionAgent(st ExtractionStore, svc llm.Service, batchSize int) *ExtractionAgent {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &ExtractionAgent{
		Base:      NewBase("extraction"),
		store:     st,
		llm:       svc,
		batchSize: batchSize,
	}
}

// Process claims one batch of pending items and extracts claims from each.
func (a *ExtractionAgent) Process(ctx context.Context) (res Result, err error) {
	defer func(start time.Time) { a.observe(start, err) }(time.Now())

	items, err := a.store.ClaimPending(ctx, a.batchSize)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return Result{"processed": 0, "claims_found": 0, "errors": 0}, nil
	}
	a.logger.Info("Extracting claims", "items", len(items))

	processed, claimsFound, failed := 0, 0, 0
	for i := range items {
		item := &items[i]
		if ctx.Err() != nil {
			// Interrupted items stay in processing and are retried by the
			// next maintenance sweep.
			return nil, ctx.Err()
		}

		n, perr := a.extractItem(ctx, item)
		if perr != nil {
			a.logger.Error("Extraction failed", "item_id", item.ID, "error", perr)
			a.failItem(ctx, item.ID, perr)
			failed++
			continue
		}
		processed++
		claimsFound += n
	}

	a.addStat("papers_processed", processed)
	a.addStat("claims_extracted", claimsFound)
	a.logger.Info("Extraction complete",
		"processed", processed, "claims_found", claimsFound, "errors", failed)
	return Result{"processed": processed, "claims_found": claimsFound, "errors": failed}, nil
}

// extractItem runs one queue item to a terminal status and returns the
// number of drafts written.
func (a *ExtractionAgent) extractItem(ctx context.Context, item *store.QueueItem) (int, error) {
	if item.Abstract == nil || *item.Abstract == "" {
		// No abstract means nothing to distill; that is completion, not
		// failure.
		return 0, a.store.SetQueueStatus(ctx, item.ID, store.QueueStatusCompleted, nil)
	}
	if a.llm == nil {
		return 0, errLLMUnavailable
	}

	claims, err := a.llm.ExtractClaims(ctx, item.Title, item.Authors, *item.Abstract)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range claims {
		if _, err := a.store.InsertDraft(ctx, draftFrom(item, &claims[i])); err != nil {
			a.logger.Error("Failed to store draft claim", "item_id", item.ID, "error", err)
			continue
		}
		written++
	}

	if err := a.store.SetQueueStatus(ctx, item.ID, store.QueueStatusCompleted, nil); err != nil {
		return written, err
	}
	return written, nil
}

func (a *ExtractionAgent) failItem(ctx context.Context, id uuid.UUID, cause error) {
	msg := cause.Error()
	if err := a.store.SetQueueStatus(ctx, id, store.QueueStatusFailed, &msg); err != nil {
		a.logger.Error("Failed to mark item failed", "item_id", id, "error", err)
	}
}

// draftFrom copies provenance from the queue item onto an extracted claim.
func draftFrom(item *store.QueueItem, c *llm.ExtractedClaim) *store.Claim {
	draft := &store.Claim{
		Claim:           c.Claim,
		Category:        c.Category,
		EvidenceLevel:   c.EvidenceLevel,
		ConfidenceScore: c.Confidence * 0.8,
		Status:          store.ClaimStatusDraft,
		SourceDOI:       item.DOI,
		SourceURL:       item.URL,
		SourceTitle:     &item.Title,
		SourceAuthors:   item.Authors,
		PublicationDate: item.PublicationDate,
		SampleSize:      c.SampleSize,
		Population:      c.Population,
		EffectSize:      c.EffectSize,
		KeyFindings:     c.KeyFindings,
		Limitations:     c.Limitations,
	}
	if c.ClaimSummary != "" {
		summary := c.ClaimSummary
		draft.ClaimSummary = &summary
	}
	if c.StudyDesign != "" {
		design := c.StudyDesign
		draft.StudyDesign = &design
	}
	return draft
}
