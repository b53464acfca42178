package store

import (
	"context"
	"fmt"
)

// UpsertEvidence writes the evidence score for a (topic, category) pair,
// replacing any prior value.
func (s *Store) UpsertEvidence(ctx context.Context, topic, category string, totalScore float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO evidence_hierarchy (topic, category, total_score)
		VALUES ($1, $2, $3)
		ON CONFLICT (topic, category)
		DO UPDATE SET total_score = EXCLUDED.total_score, updated_at = now()`,
		topic, category, totalScore)
	if err != nil {
		return fmt.Errorf("upserting evidence for %s/%s: %w", topic, category, err)
	}
	return nil
}
