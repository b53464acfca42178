package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AddRelationship records a directed typed edge between two claims. Adding
// an edge that already exists (same endpoints and type) is a no-op.
func (s *Store) AddRelationship(ctx context.Context, source, target uuid.UUID, relType string, confidence float64, notes *string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO knowledge_relationships
			(source_claim_id, target_claim_id, relationship_type, confidence, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_claim_id, target_claim_id, relationship_type) DO NOTHING`,
		source, target, relType, confidence, notes)
	if err != nil {
		return fmt.Errorf("adding %s relationship %s -> %s: %w", relType, source, target, err)
	}
	return nil
}

// RelationshipsFor returns every edge touching the given claim, either end.
func (s *Store) RelationshipsFor(ctx context.Context, claimID uuid.UUID) ([]Relationship, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_claim_id, target_claim_id, relationship_type, confidence, notes, created_at
		FROM knowledge_relationships
		WHERE source_claim_id = $1 OR target_claim_id = $1
		ORDER BY created_at ASC`, claimID)
	if err != nil {
		return nil, fmt.Errorf("listing relationships for claim %s: %w", claimID, err)
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.SourceClaimID, &r.TargetClaimID, &r.Type, &r.Confidence, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}
