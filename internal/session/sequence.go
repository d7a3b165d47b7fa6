package session

import (
	"context"
	"fmt"
)

// dbSequences allocates identities from the shared sequence table. The single
// upsert-and-return statement is portable across the postgres and sqlite
// dialects.
type dbSequences struct {
	session *Context
}

func (d *dbSequences) Next(ctx context.Context, entity string) (int64, error) {
	query := d.session.db.Rebind(
		"INSERT INTO docstore_sequences (entity, value) VALUES (?, 1) " +
			"ON CONFLICT (entity) DO UPDATE SET value = docstore_sequences.value + 1 RETURNING value")
	var next int64
	if err := d.session.db.QueryRowContext(ctx, query, entity).Scan(&next); err != nil {
		return 0, fmt.Errorf("next sequence value for %s: %w", entity, err)
	}
	return next, nil
}
