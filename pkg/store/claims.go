package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const claimColumns = `id, claim, claim_summary, category, evidence_level, confidence_score,
	status, source_doi, source_url, source_title, source_authors, publication_date,
	sample_size, study_design, population, effect_size, key_findings, limitations,
	conflicting_evidence, auto_validated, validation_score, trusted_source,
	embedding_status, embedding_error, created_at, updated_at`

// InsertDraft persists a new claim in draft state with a pending embedding
// and returns its id.
func (s *Store) InsertDraft(ctx context.Context, c *Claim) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scientific_knowledge
			(claim, claim_summary, category, evidence_level, confidence_score, status,
			 source_doi, source_url, source_title, source_authors, publication_date,
			 sample_size, study_design, population, effect_size, key_findings, limitations)
		VALUES ($1, $2, $3, $4, $5, 'draft',
		        $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16)
		RETURNING id`,
		c.Claim, c.ClaimSummary, c.Category, c.EvidenceLevel, c.ConfidenceScore,
		c.SourceDOI, c.SourceURL, c.SourceTitle, c.SourceAuthors, c.PublicationDate,
		c.SampleSize, c.StudyDesign, c.Population, c.EffectSize, c.KeyFindings, c.Limitations,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting draft claim: %w", err)
	}
	return id, nil
}

// GetClaim fetches a single claim by id. Returns (nil, nil) when absent.
func (s *Store) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+claimColumns+` FROM scientific_knowledge WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("fetching claim %s: %w", id, err)
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, nil
	}
	return &claims[0], nil
}

// UpdateClaim applies a partial update. Nil patch fields are untouched.
func (s *Store) UpdateClaim(ctx context.Context, id uuid.UUID, patch ClaimPatch) error {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.ConfidenceScore != nil {
		add("confidence_score", *patch.ConfidenceScore)
	}
	if patch.ConflictingEvidence != nil {
		add("conflicting_evidence", *patch.ConflictingEvidence)
	}
	if patch.AutoValidated != nil {
		add("auto_validated", *patch.AutoValidated)
	}
	if patch.ValidationScore != nil {
		add("validation_score", *patch.ValidationScore)
	}
	if patch.TrustedSource != nil {
		add("trusted_source", *patch.TrustedSource)
	}

	query := fmt.Sprintf("UPDATE scientific_knowledge SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("updating claim %s: %w", id, err)
	}
	return nil
}

// ListDrafts returns up to limit draft claims, oldest first.
func (s *Store) ListDrafts(ctx context.Context, limit int) ([]Claim, error) {
	return s.listClaims(ctx, `
		SELECT `+claimColumns+` FROM scientific_knowledge
		WHERE status = 'draft'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
}

// ListByCategoryFiltered returns active claims in a category at or above the
// given evidence and confidence floors, strongest first.
func (s *Store) ListByCategoryFiltered(ctx context.Context, category string, minEvidence int, minConfidence float64, limit int) ([]Claim, error) {
	return s.listClaims(ctx, `
		SELECT `+claimColumns+` FROM scientific_knowledge
		WHERE status = 'active'
		  AND category = $1
		  AND evidence_level >= $2
		  AND confidence_score >= $3
		ORDER BY evidence_level DESC, confidence_score DESC
		LIMIT $4`, category, minEvidence, minConfidence, limit)
}

// ListAllActive returns up to limit active claims, newest first.
func (s *Store) ListAllActive(ctx context.Context, limit int) ([]Claim, error) {
	return s.listClaims(ctx, `
		SELECT `+claimColumns+` FROM scientific_knowledge
		WHERE status = 'active'
		ORDER BY created_at DESC
		LIMIT $1`, limit)
}

// ListRecentUnflagged returns active claims created within the window whose
// conflicting_evidence flag is still false.
func (s *Store) ListRecentUnflagged(ctx context.Context, within time.Duration, limit int) ([]Claim, error) {
	return s.listClaims(ctx, `
		SELECT `+claimColumns+` FROM scientific_knowledge
		WHERE status = 'active'
		  AND conflicting_evidence = FALSE
		  AND created_at > now() - $1::interval
		ORDER BY created_at DESC
		LIMIT $2`, within, limit)
}

// ListConflicted returns active claims flagged with conflicting evidence.
func (s *Store) ListConflicted(ctx context.Context, limit int) ([]Claim, error) {
	return s.listClaims(ctx, `
		SELECT `+claimColumns+` FROM scientific_knowledge
		WHERE status = 'active' AND conflicting_evidence = TRUE
		ORDER BY created_at DESC
		LIMIT $1`, limit)
}

// ListPendingEmbeddings atomically claims up to limit active claims awaiting
// an embedding, flipping them to processing so concurrent workers skip them.
func (s *Store) ListPendingEmbeddings(ctx context.Context, limit int) ([]Claim, error) {
	return s.listClaims(ctx, `
		UPDATE scientific_knowledge
		SET embedding_status = 'processing'
		WHERE id IN (
			SELECT id FROM scientific_knowledge
			WHERE status = 'active' AND embedding_status = 'pending'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+claimColumns, limit)
}

// ResetEmbeddings marks every active claim's embedding as pending again.
// Used by the rebuild maintenance path.
func (s *Store) ResetEmbeddings(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scientific_knowledge
		SET embedding_status = 'pending', embedding_error = NULL, updated_at = now()
		WHERE status = 'active'`)
	if err != nil {
		return 0, fmt.Errorf("resetting embeddings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateEmbedding writes a claim's embedding outcome. A completed status
// requires a vector; failed stores the error text and drops any vector.
func (s *Store) UpdateEmbedding(ctx context.Context, id uuid.UUID, vec []float32, status string, embeddingError *string) error {
	if status == EmbeddingCompleted && len(vec) == 0 {
		return errors.New("completed embedding requires a vector")
	}

	var literal *string
	if len(vec) > 0 {
		v := encodeVector(vec)
		literal = &v
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE scientific_knowledge
		SET embedding = $2::vector,
		    embedding_status = $3,
		    embedding_error = $4,
		    updated_at = now()
		WHERE id = $1`,
		id, literal, status, embeddingError)
	if err != nil {
		return fmt.Errorf("updating embedding for claim %s: %w", id, err)
	}
	return nil
}

// FindSimilar returns claims whose embedding cosine similarity with the given
// vector is at least threshold, most similar first. Category and evidence
// filters are optional.
func (s *Store) FindSimilar(ctx context.Context, embedding []float32, threshold float64, limit int, category *string, minEvidence *int) ([]SimilarClaim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, claim, 1 - (embedding <=> $1::vector) AS similarity,
		       evidence_level, study_design, category
		FROM scientific_knowledge
		WHERE status = 'active'
		  AND embedding_status = 'completed'
		  AND 1 - (embedding <=> $1::vector) >= $2
		  AND ($4::text IS NULL OR category = $4)
		  AND ($5::int IS NULL OR evidence_level >= $5)
		ORDER BY embedding <=> $1::vector
		LIMIT $3`,
		encodeVector(embedding), threshold, limit, category, minEvidence)
	if err != nil {
		return nil, fmt.Errorf("searching similar claims: %w", err)
	}
	defer rows.Close()

	var out []SimilarClaim
	for rows.Next() {
		var sc SimilarClaim
		if err := rows.Scan(&sc.ID, &sc.Claim, &sc.Similarity, &sc.EvidenceLevel, &sc.StudyDesign, &sc.Category); err != nil {
			return nil, fmt.Errorf("scanning similar claim: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) listClaims(ctx context.Context, query string, args ...any) ([]Claim, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing claims: %w", err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

func scanClaims(rows pgx.Rows) ([]Claim, error) {
	var claims []Claim
	for rows.Next() {
		var c Claim
		if err := rows.Scan(
			&c.ID, &c.Claim, &c.ClaimSummary, &c.Category, &c.EvidenceLevel, &c.ConfidenceScore,
			&c.Status, &c.SourceDOI, &c.SourceURL, &c.SourceTitle, &c.SourceAuthors, &c.PublicationDate,
			&c.SampleSize, &c.StudyDesign, &c.Population, &c.EffectSize, &c.KeyFindings, &c.Limitations,
			&c.ConflictingEvidence, &c.AutoValidated, &c.ValidationScore, &c.TrustedSource,
			&c.EmbeddingStatus, &c.EmbeddingError, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
