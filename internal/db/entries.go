package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coinbot/internal/economy"
)

var entryColumns = []string{"id", "user_id", "action", "delta_micros", "item", "quantity", "at"}

// EntryStore appends ledger entries to coinbot.ledger_entries. It is
// write-only: the process never reads its state back.
type EntryStore struct {
	pool *pgxpool.Pool
}

func NewEntryStore(pool *pgxpool.Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

func (s *EntryStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS coinbot;
		CREATE TABLE IF NOT EXISTS coinbot.ledger_entries (
			id           uuid PRIMARY KEY,
			user_id      text        NOT NULL,
			action       text        NOT NULL,
			delta_micros bigint      NOT NULL,
			item         text        NOT NULL DEFAULT '',
			quantity     bigint      NOT NULL DEFAULT 0,
			at           timestamptz NOT NULL
		);
		CREATE INDEX IF NOT EXISTS ledger_entries_user_at_idx ON coinbot.ledger_entries (user_id, at);
	`)
	if err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

func (s *EntryStore) Write(ctx context.Context, entries []economy.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"coinbot", "ledger_entries"},
		entryColumns,
		pgx.CopyFromRows(entryRows(entries)),
	)
	if err != nil {
		return fmt.Errorf("copy ledger entries: %w", err)
	}
	if int(n) != len(entries) {
		return fmt.Errorf("copy ledger entries: wrote %d of %d", n, len(entries))
	}
	return nil
}

func entryRows(entries []economy.Entry) [][]any {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{e.ID, e.UserID, e.Action, e.DeltaMicros, e.Item, e.Quantity, e.At})
	}
	return rows
}
