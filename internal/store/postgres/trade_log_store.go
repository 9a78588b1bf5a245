package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rehan1020/tgbot/internal/domain"
)

// TradeLogStore implements domain.TradeLogStore using PostgreSQL.
type TradeLogStore struct {
	pool *pgxpool.Pool
}

// NewTradeLogStore creates a TradeLogStore backed by the given connection pool.
func NewTradeLogStore(pool *pgxpool.Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

const tradeSelectCols = `id, position_id, side, chain, token_addr, pair_name,
	amount_in, amount_out, price, tx_hash, dry_run, created_at`

// Insert appends a journal entry for an executed swap.
func (s *TradeLogStore) Insert(ctx context.Context, entry domain.TradeLogEntry) error {
	const query = `
		INSERT INTO trade_log (
			position_id, side, chain, token_addr, pair_name,
			amount_in, amount_out, price, tx_hash, dry_run
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		entry.PositionID, string(entry.Side), string(entry.Chain),
		entry.TokenAddr, entry.PairName,
		entry.AmountIn, entry.AmountOut, entry.Price,
		entry.TxHash, entry.DryRun,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade for position %d: %w", entry.PositionID, err)
	}
	return nil
}

// ListRecent returns the newest journal entries, newest first.
func (s *TradeLogStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trade_log
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	return scanTradeRows(rows)
}

// ListBefore returns journal entries recorded strictly before the cutoff,
// oldest first. Used by the archiver to export cold rows.
func (s *TradeLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trade_log
		 WHERE created_at < $1
		 ORDER BY created_at ASC, id ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanTradeRows(rows)
}

func scanTradeRows(rows pgx.Rows) ([]domain.TradeLogEntry, error) {
	var entries []domain.TradeLogEntry
	for rows.Next() {
		var e domain.TradeLogEntry
		var side, chain string

		if err := rows.Scan(
			&e.ID, &e.PositionID, &side, &chain, &e.TokenAddr, &e.PairName,
			&e.AmountIn, &e.AmountOut, &e.Price, &e.TxHash, &e.DryRun, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		e.Side = domain.TradeSide(side)
		e.Chain = domain.Chain(chain)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: trade rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.TradeLogStore = (*TradeLogStore)(nil)
