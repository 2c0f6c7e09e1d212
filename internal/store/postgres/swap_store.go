package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// SwapStore implements domain.SwapStore on the swap_history table.
type SwapStore struct {
	pool *pgxpool.Pool
}

// NewSwapStore creates a SwapStore backed by pool.
func NewSwapStore(pool *pgxpool.Pool) *SwapStore {
	return &SwapStore{pool: pool}
}

const swapSelectCols = `id, bot_id, input_mint, output_mint, in_amount, out_amount, signature, executed_at`

func scanSwapRows(rows pgx.Rows) ([]domain.SwapRecord, error) {
	var out []domain.SwapRecord
	for rows.Next() {
		var r domain.SwapRecord
		if err := rows.Scan(
			&r.ID, &r.BotID, &r.InputMint, &r.OutputMint,
			&r.InAmount, &r.OutAmount, &r.Signature, &r.ExecutedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert appends a swap record. A repeated id or signature is reported as
// domain.ErrAlreadyExists.
func (s *SwapStore) Insert(ctx context.Context, rec domain.SwapRecord) error {
	const query = `
		INSERT INTO swap_history (` + swapSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.BotID, rec.InputMint, rec.OutputMint,
		rec.InAmount, rec.OutAmount, rec.Signature, rec.ExecutedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert swap %s: %w", rec.Signature, err)
	}
	return nil
}

// ListByBot returns a bot's swaps newest first.
func (s *SwapStore) ListByBot(ctx context.Context, id domain.BotID, opts domain.ListOpts) ([]domain.SwapRecord, error) {
	return s.list(ctx, "bot_id = $1", []any{id}, opts)
}

// ListRecent returns swaps across all bots newest first.
func (s *SwapStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.SwapRecord, error) {
	return s.list(ctx, "TRUE", nil, opts)
}

// ListBefore returns swaps executed before the cutoff, oldest first.
func (s *SwapStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SwapRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+swapSelectCols+` FROM swap_history WHERE executed_at < $1 ORDER BY executed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list swaps before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	out, err := scanSwapRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan swaps: %w", err)
	}
	return out, nil
}

// DeleteBefore removes swaps executed before the cutoff and reports how many
// rows went.
func (s *SwapStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM swap_history WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete swaps before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *SwapStore) list(ctx context.Context, where string, args []any, opts domain.ListOpts) ([]domain.SwapRecord, error) {
	query, args := windowed(`SELECT `+swapSelectCols+` FROM swap_history WHERE `+where, "executed_at", args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list swaps: %w", err)
	}
	defer rows.Close()

	out, err := scanSwapRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan swaps: %w", err)
	}
	return out, nil
}

var _ domain.SwapStore = (*SwapStore)(nil)
