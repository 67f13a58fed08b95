package s3blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/avendale/tradepost/internal/domain"
)

type memWriter struct {
	objects    map[string]string
	multiparts []string
}

func (m *memWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = make(map[string]string)
	}
	m.objects[path] = string(b)
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	m.multiparts = append(m.multiparts, path)
	return m.Put(ctx, path, data, "")
}

type memAudit struct {
	entries []domain.AuditEntry
	nextID  int64
}

func (m *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	m.nextID++
	m.entries = append(m.entries, domain.AuditEntry{
		ID: m.nextID, Event: event, Detail: detail, CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return append([]domain.AuditEntry(nil), m.entries...), nil
}

func (m *memAudit) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memAudit) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.AuditEntry
	var removed int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}

func seedAudit(t *testing.T, audit *memAudit, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		audit.nextID++
		audit.entries = append(audit.entries, domain.AuditEntry{
			ID:        audit.nextID,
			Event:     "item_sold",
			Detail:    map[string]any{"unit_id": i},
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		})
	}
}

func TestArchiveAuditExportsAndPrunes(t *testing.T) {
	ctx := context.Background()
	audit := &memAudit{}
	old := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	seedAudit(t, audit, 7, old)
	seedAudit(t, audit, 3, time.Now().UTC().Add(time.Hour))

	w := &memWriter{}
	arch := NewArchiver(w, audit, 3)

	n, err := arch.ArchiveAudit(ctx, old.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("ArchiveAudit: %v", err)
	}
	if n != 7 {
		t.Fatalf("archived %d rows, want 7", n)
	}
	if len(w.objects) != 3 {
		t.Fatalf("uploaded %d objects, want 3 batches of size <=3", len(w.objects))
	}

	var lines int
	for path, body := range w.objects {
		if !strings.HasPrefix(path, "archive/audit/2026-06/") {
			t.Errorf("object path %q not partitioned by cutoff month", path)
		}
		lines += strings.Count(body, "\n")
	}
	if lines != 7 {
		t.Fatalf("exported %d JSONL lines, want 7", lines)
	}

	// Recent rows survive, plus the audit_archived marker written last.
	remaining, _ := audit.List(ctx, domain.ListOpts{})
	if len(remaining) != 4 {
		t.Fatalf("store holds %d rows after prune, want 3 recent + 1 marker", len(remaining))
	}
	if remaining[len(remaining)-1].Event != "audit_archived" {
		t.Fatalf("last row is %q, want audit_archived marker", remaining[len(remaining)-1].Event)
	}
}

func TestUploadSwitchesToMultipartForLargeBatches(t *testing.T) {
	ctx := context.Background()
	w := &memWriter{}
	arch := NewArchiver(w, &memAudit{}, 100)

	if err := arch.upload(ctx, "archive/audit/2026-08/small.jsonl", []byte("{}\n")); err != nil {
		t.Fatalf("upload small: %v", err)
	}
	if len(w.multiparts) != 0 {
		t.Fatalf("small batch used multipart upload")
	}

	big := make([]byte, multipartCutover)
	if err := arch.upload(ctx, "archive/audit/2026-08/big.jsonl", big); err != nil {
		t.Fatalf("upload big: %v", err)
	}
	if len(w.multiparts) != 1 || w.multiparts[0] != "archive/audit/2026-08/big.jsonl" {
		t.Fatalf("multipart uploads = %v, want the oversized batch", w.multiparts)
	}
}

func TestArchiveAuditNothingToDo(t *testing.T) {
	w := &memWriter{}
	arch := NewArchiver(w, &memAudit{}, 100)

	n, err := arch.ArchiveAudit(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveAudit: %v", err)
	}
	if n != 0 || len(w.objects) != 0 {
		t.Fatalf("empty store archived %d rows, %d objects; want none", n, len(w.objects))
	}
}
