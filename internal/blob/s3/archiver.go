package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
)

// Narrow store views for the archiver: it only needs the time-ranged
// query methods, not the full store interfaces. The Postgres stores
// satisfy these implicitly.

// PositionArchiveStore reads closed positions for archival.
type PositionArchiveStore interface {
	// ListClosedBefore returns terminal positions closed strictly before
	// the cutoff.
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error)
}

// TradeArchiveStore reads trade journal entries for archival.
type TradeArchiveStore interface {
	// ListBefore returns entries recorded strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeLogEntry, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, and uploading the result to object
// storage.
//
// Archived rows are NOT deleted from the primary store here; pruning is
// a separate, explicit step once an archive has been verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	positions PositionArchiveStore
	trades    TradeArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates an ArchiveImpl over the given writer and stores.
func NewArchiver(
	writer domain.BlobWriter,
	positions PositionArchiveStore,
	trades TradeArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		positions: positions,
		trades:    trades,
		audit:     audit,
	}
}

// ArchivePositions queries positions closed before the cutoff, uploads
// them as JSONL at archive/positions/YYYY-MM.jsonl, records the event in
// the audit log, and returns the archived record count.
func (a *ArchiveImpl) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	positions, err := a.positions.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path := archivePath("positions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	count := int64(len(positions))

	if err := a.audit.Log(ctx, "archive.positions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive positions audit log: %w", err)
	}

	return count, nil
}

// ArchiveTrades queries trade journal entries before the cutoff, uploads
// them as JSONL at archive/trades/YYYY-MM.jsonl, records the event in
// the audit log, and returns the archived record count.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by
// the year-month of the cutoff time:
//
//	archive/positions/2025-01.jsonl
//	archive/trades/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
