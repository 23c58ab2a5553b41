package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"binScope/internal/model"
	"binScope/internal/storage"
)

//go:embed schema.sql
var schema string

var (
	_ storage.Journal = (*Store)(nil)
	_ storage.History = (*Store)(nil)
)

// Store provides Postgres persistence for the operation journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the journal table and index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutOperationBatch inserts or updates operation records.
func (s *Store) PutOperationBatch(ctx context.Context, records []model.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("parse created_at of %s: %w", r.ID, err)
		}
		batch.Queue(`
			INSERT INTO position_operations (
				id, operation, position, lb_pair, owner, side, amount, bin_ids,
				lower_shard, upper_shard, from_state, to_state, signature, status, error, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (id)
			DO UPDATE SET
				to_state = EXCLUDED.to_state,
				signature = EXCLUDED.signature,
				status = EXCLUDED.status,
				error = EXCLUDED.error
		`,
			r.ID,
			r.Operation,
			r.Position,
			r.LbPair,
			r.Owner,
			r.Side,
			int64(r.Amount),
			r.BinIDs,
			r.LowerShard,
			r.UpperShard,
			r.FromState,
			r.ToState,
			r.Signature,
			r.Status,
			r.Error,
			createdAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LastOperation returns the most recent record for a position.
func (s *Store) LastOperation(ctx context.Context, position string) (model.OperationRecord, bool, error) {
	if position == "" {
		return model.OperationRecord{}, false, fmt.Errorf("position required")
	}
	var (
		rec       model.OperationRecord
		amount    int64
		createdAt time.Time
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, operation, position, lb_pair, owner, side, amount, bin_ids,
			lower_shard, upper_shard, from_state, to_state, signature, status, error, created_at
		FROM position_operations
		WHERE position = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, position)
	if err := row.Scan(
		&rec.ID, &rec.Operation, &rec.Position, &rec.LbPair, &rec.Owner, &rec.Side, &amount, &rec.BinIDs,
		&rec.LowerShard, &rec.UpperShard, &rec.FromState, &rec.ToState, &rec.Signature, &rec.Status, &rec.Error, &createdAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.OperationRecord{}, false, nil
		}
		return model.OperationRecord{}, false, err
	}
	rec.Amount = uint64(amount)
	rec.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	return rec, true, nil
}
