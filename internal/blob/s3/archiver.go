package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avendale/tradepost/internal/domain"
)

// ArchiveImpl implements domain.Archiver. The audit log is the ledger's
// durable event history; rows older than the retention cutoff are exported
// to object storage as JSONL and only pruned from Postgres after their
// object landed, so a failed upload never loses a row.
type ArchiveImpl struct {
	writer domain.BlobWriter
	audit  domain.AuditStore

	// batchSize bounds how many rows one exported object holds.
	batchSize int
}

// NewArchiver creates a new ArchiveImpl draining the given audit store.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, batchSize int) *ArchiveImpl {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &ArchiveImpl{
		writer:    writer,
		audit:     audit,
		batchSize: batchSize,
	}
}

// ArchiveAudit exports every audit row created strictly before the cutoff to
// archive/audit/YYYY-MM/ as JSONL, batch by batch, pruning each batch after
// its object is uploaded. It returns the number of rows archived.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for seq := 0; ; seq++ {
		entries, err := a.audit.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		buf, err := marshalJSONL(entries)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit marshal: %w", err)
		}

		path := archivePath(before, seq, entries[len(entries)-1].ID)
		if err := a.upload(ctx, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: archive audit upload: %w", err)
		}

		// ListBefore returns oldest rows first, so pruning up to the last
		// exported row's timestamp cannot touch a row that was not uploaded.
		prune := entries[len(entries)-1].CreatedAt.Add(time.Nanosecond)
		if prune.After(before) {
			prune = before
		}
		removed, err := a.audit.DeleteBefore(ctx, prune)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit prune: %w", err)
		}
		total += removed

		if len(entries) < a.batchSize {
			break
		}
	}

	if total > 0 {
		if err := a.audit.Log(ctx, "audit_archived", map[string]any{
			"count":  total,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return total, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return total, nil
}

// multipartCutover is the batch size above which exported objects go through
// the multipart uploader instead of a single PutObject.
const multipartCutover = 32 * 1024 * 1024

// upload sends one exported batch to object storage. Oversized batches (a
// busy month with a large batch_size setting) switch to the multipart path.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartCutover {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), int64(len(buf)/4))
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the S3 key for one exported batch, partitioned by the
// year-month of the cutoff. The sequence and last row id keep keys unique
// when a sweep needs more than one object.
//
//	archive/audit/2026-08/20260801T000000Z-000-91234.jsonl
func archivePath(before time.Time, seq int, lastID int64) string {
	return fmt.Sprintf("%s%s/%s-%03d-%d.jsonl", domain.AuditArchivePrefix,
		before.Format("2006-01"), before.UTC().Format("20060102T150405Z"), seq, lastID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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

var _ domain.Archiver = (*ArchiveImpl)(nil)
