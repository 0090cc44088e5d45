package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGOutboxRepository struct {
	db *pgxpool.Pool
}

func NewOutboxRepository(db *pgxpool.Pool) OutboxRepository {
	return &PGOutboxRepository{db: db}
}

// Dispatch uses SKIP LOCKED so several workers can drain the outbox without
// handing the same row to two publishers.
func (r *PGOutboxRepository) Dispatch(ctx context.Context, limit int, publish PublishFunc) (int, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id, topic, message_key, payload, headers, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox: %w", err)
	}

	msgs := make([]OutboxMessage, 0, limit)
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.Payload, &m.Headers, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox: %w", err)
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	sent, pubErr := publish(ctx, msgs)
	if sent > 0 {
		ids := make([]int64, 0, sent)
		for _, m := range msgs[:sent] {
			ids = append(ids, m.ID)
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at=now() WHERE id = ANY($1)`, ids); err != nil {
			return 0, fmt.Errorf("mark outbox published: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("commit outbox: %w", err)
		}
	}
	return sent, pubErr
}

var _ OutboxRepository = (*PGOutboxRepository)(nil)
