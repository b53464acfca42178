package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const promptColumns = `id, category, prompt_text, version, knowledge_snapshot,
	performance_score, is_active, metadata, created_at`

// ActivePrompt returns the category's active prompt, or nil when none is.
func (s *Store) ActivePrompt(ctx context.Context, category string) (*PromptVersion, error) {
	return s.getPrompt(ctx, `
		SELECT `+promptColumns+` FROM system_prompt_versions
		WHERE category = $1 AND is_active`, category)
}

// LatestPromptVersion returns the highest-numbered prompt for the category,
// active or not, or nil when the category has none.
func (s *Store) LatestPromptVersion(ctx context.Context, category string) (*PromptVersion, error) {
	return s.getPrompt(ctx, `
		SELECT `+promptColumns+` FROM system_prompt_versions
		WHERE category = $1
		ORDER BY version DESC
		LIMIT 1`, category)
}

// SavePromptVersion persists a new prompt version and returns it with its
// generated id and timestamp.
func (s *Store) SavePromptVersion(ctx context.Context, v *PromptVersion) (*PromptVersion, error) {
	snapshot := v.KnowledgeSnapshot
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	metadata := v.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	saved := *v
	err := s.pool.QueryRow(ctx, `
		INSERT INTO system_prompt_versions
			(category, prompt_text, version, knowledge_snapshot, performance_score, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		v.Category, v.PromptText, v.Version, snapshot, v.PerformanceScore, metadata,
	).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("saving prompt version %d for %s: %w", v.Version, v.Category, err)
	}
	return &saved, nil
}

// ActivatePromptVersion atomically makes the given version the category's
// only active prompt.
func (s *Store) ActivatePromptVersion(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning activation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var category string
	if err := tx.QueryRow(ctx,
		`SELECT category FROM system_prompt_versions WHERE id = $1`, id,
	).Scan(&category); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("prompt version %s not found", id)
		}
		return fmt.Errorf("looking up prompt version %s: %w", id, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE system_prompt_versions SET is_active = FALSE WHERE category = $1 AND is_active`,
		category); err != nil {
		return fmt.Errorf("deactivating prior prompt for %s: %w", category, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE system_prompt_versions SET is_active = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("activating prompt version %s: %w", id, err)
	}

	return tx.Commit(ctx)
}

func (s *Store) getPrompt(ctx context.Context, query string, args ...any) (*PromptVersion, error) {
	var p PromptVersion
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.Category, &p.PromptText, &p.Version, &p.KnowledgeSnapshot,
		&p.PerformanceScore, &p.IsActive, &p.Metadata, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching prompt version: %w", err)
	}
	return &p, nil
}
