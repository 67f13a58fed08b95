package domain

import (
	"context"
	"io"
	"time"
)

// AuditArchivePrefix is the object-store tree holding exported audit
// batches, partitioned by year-month below it.
const AuditArchivePrefix = "archive/audit/"

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports aged audit rows to cold storage and prunes them from the
// primary store once the export landed.
type Archiver interface {
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
