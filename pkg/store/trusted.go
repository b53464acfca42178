package store

import (
	"context"
	"fmt"
)

// ListTrustedAuthors returns the active author registry.
func (s *Store) ListTrustedAuthors(ctx context.Context) ([]TrustedSource, error) {
	return s.listTrusted(ctx, "trusted_authors")
}

// ListTrustedJournals returns the active journal registry.
func (s *Store) ListTrustedJournals(ctx context.Context) ([]TrustedSource, error) {
	return s.listTrusted(ctx, "trusted_journals")
}

func (s *Store) listTrusted(ctx context.Context, table string) ([]TrustedSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, priority_boost FROM `+table+` WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []TrustedSource
	for rows.Next() {
		var t TrustedSource
		if err := rows.Scan(&t.Name, &t.PriorityBoost); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
