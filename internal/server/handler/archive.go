package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avendale/tradepost/internal/domain"
)

// ArchiveHandler serves the exported audit batches in cold storage:
// operators list what the archiver wrote and pull a batch back without
// touching the bucket directly.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: logHandler(logger, "archive"),
	}
}

// archiveView is the JSON shape of one exported batch object.
type archiveView struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List enumerates exported audit batches, optionally narrowed to one
// year-month partition.
// GET /api/admin/archives?month=2026-08
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}

	prefix := domain.AuditArchivePrefix
	if month := r.URL.Query().Get("month"); month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		prefix += month + "/"
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive list failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	views := make([]archiveView, 0, len(infos))
	for _, info := range infos {
		views = append(views, archiveView{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": views})
}

// Download streams one exported batch back as JSONL. The key is relative to
// the audit archive tree; path traversal out of it is rejected.
// GET /api/admin/archives/{key...}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}

	key := pathParam(r, "key")
	if key == "" || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive key")
		return
	}
	path := domain.AuditArchivePrefix + key

	ok, err := h.reader.Exists(r.Context(), path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive head failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to check archive")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	body, err := h.reader.Get(r.Context(), path)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
