package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EnqueueCandidate inserts a research queue item unless a row with the same
// DOI or URL already exists. Returns true if a new row was inserted.
func (s *Store) EnqueueCandidate(ctx context.Context, item *QueueItem) (bool, error) {
	if item.DOI != nil || item.URL != nil {
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM research_queue
				WHERE (doi = $1 AND $1 IS NOT NULL)
				   OR (url = $2 AND $2 IS NOT NULL)
			)`, item.DOI, item.URL).Scan(&exists)
		if err != nil {
			return false, fmt.Errorf("checking for duplicate candidate: %w", err)
		}
		if exists {
			return false, nil
		}
	}

	raw := item.RawData
	if raw == nil {
		raw = map[string]any{}
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO research_queue
			(title, authors, abstract, doi, url, publication_date, source_type, priority, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`,
		item.Title, item.Authors, item.Abstract, item.DOI, item.URL,
		item.PublicationDate, item.SourceType, item.Priority, raw)
	if err != nil {
		return false, fmt.Errorf("enqueueing candidate: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimPending atomically claims up to limit pending queue items, flipping
// them to processing. Concurrent workers never receive the same item.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]QueueItem, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE research_queue
		SET status = 'processing'
		WHERE id IN (
			SELECT id FROM research_queue
			WHERE status = 'pending'
			ORDER BY priority ASC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, title, authors, abstract, doi, url, publication_date,
			source_type, status, priority, raw_data, error_message, created_at, processed_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claiming pending queue items: %w", err)
	}
	defer rows.Close()

	return scanQueueItems(rows)
}

// SetQueueStatus moves a queue item to a new status, recording the error
// message and processing timestamp for terminal states.
func (s *Store) SetQueueStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE research_queue
		SET status = $2,
		    error_message = $3,
		    processed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE processed_at END
		WHERE id = $1`,
		id, status, errorMessage)
	if err != nil {
		return fmt.Errorf("updating queue item %s to %s: %w", id, status, err)
	}
	return nil
}

func scanQueueItems(rows pgx.Rows) ([]QueueItem, error) {
	var items []QueueItem
	for rows.Next() {
		var it QueueItem
		if err := rows.Scan(
			&it.ID, &it.Title, &it.Authors, &it.Abstract, &it.DOI, &it.URL,
			&it.PublicationDate, &it.SourceType, &it.Status, &it.Priority,
			&it.RawData, &it.ErrorMessage, &it.CreatedAt, &it.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
