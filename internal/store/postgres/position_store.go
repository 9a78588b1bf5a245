package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rehan1020/tgbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, chain, token_address, pair_name, quote_token,
	target_entry_price, take_profit_price, stop_loss_price, status,
	entry_amount_quote, entry_amount_token, actual_entry_price,
	created_at, opened_at, closed_at, entry_tx_hash, exit_tx_hash,
	exit_price, pnl_percent, pnl_absolute, raw_signal`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var chain, status string

	err := row.Scan(
		&p.ID, &chain, &p.TokenAddress, &p.PairName, &p.QuoteToken,
		&p.TargetEntryPrice, &p.TakeProfitPrice, &p.StopLossPrice, &status,
		&p.EntryAmountQuote, &p.EntryAmountToken, &p.ActualEntryPrice,
		&p.CreatedAt, &p.OpenedAt, &p.ClosedAt, &p.EntryTxHash, &p.ExitTxHash,
		&p.ExitPrice, &p.PnLPercent, &p.PnLAbsolute, &p.RawSignal,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Chain = domain.Chain(chain)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position and assigns its generated ID.
func (s *PositionStore) Create(ctx context.Context, p *domain.Position) error {
	const query = `
		INSERT INTO positions (
			chain, token_address, pair_name, quote_token,
			target_entry_price, take_profit_price, stop_loss_price, status,
			entry_amount_quote, entry_amount_token, actual_entry_price,
			created_at, raw_signal, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, NOW()
		) RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		string(p.Chain), p.TokenAddress, p.PairName, p.QuoteToken,
		p.TargetEntryPrice, p.TakeProfitPrice, p.StopLossPrice, string(p.Status),
		p.EntryAmountQuote, p.EntryAmountToken, p.ActualEntryPrice,
		p.CreatedAt, p.RawSignal,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("postgres: create position for %s: %w", p.PairName, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			status             = $2,
			entry_amount_quote = $3,
			entry_amount_token = $4,
			actual_entry_price = $5,
			opened_at          = $6,
			closed_at          = $7,
			entry_tx_hash      = $8,
			exit_tx_hash       = $9,
			exit_price         = $10,
			pnl_percent        = $11,
			pnl_absolute       = $12,
			updated_at         = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, string(p.Status),
		p.EntryAmountQuote, p.EntryAmountToken, p.ActualEntryPrice,
		p.OpenedAt, p.ClosedAt, p.EntryTxHash, p.ExitTxHash,
		p.ExitPrice, p.PnLPercent, p.PnLAbsolute,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position.
func (s *PositionStore) GetByID(ctx context.Context, id int64) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", id, err)
	}
	return p, nil
}

// ListOpen returns pending and active positions, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status IN ('pending', 'active')
		 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// CountOpen counts pending and active positions.
func (s *PositionStore) CountOpen(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM positions WHERE status IN ('pending', 'active')`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open positions: %w", err)
	}
	return count, nil
}

// ListRecent returns positions newest first with pagination.
func (s *PositionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent positions: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns terminal positions closed strictly before the
// cutoff, oldest first, for archival.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE closed_at IS NOT NULL AND closed_at < $1
		 ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// Stats aggregates the table by status with realized PnL summed across
// closed rows.
func (s *PositionStore) Stats(ctx context.Context) (domain.PositionStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(pnl_absolute), 0)
		 FROM positions GROUP BY status`)
	if err != nil {
		return domain.PositionStats{}, fmt.Errorf("postgres: position stats: %w", err)
	}
	defer rows.Close()

	stats := domain.PositionStats{ByStatus: make(map[domain.PositionStatus]int)}
	for rows.Next() {
		var status string
		var count int
		var pnl float64
		if err := rows.Scan(&status, &count, &pnl); err != nil {
			return domain.PositionStats{}, fmt.Errorf("postgres: scan position stats: %w", err)
		}
		stats.ByStatus[domain.PositionStatus(status)] = count
		stats.TotalPnL += pnl
	}
	if err := rows.Err(); err != nil {
		return domain.PositionStats{}, fmt.Errorf("postgres: position stats rows: %w", err)
	}
	return stats, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
