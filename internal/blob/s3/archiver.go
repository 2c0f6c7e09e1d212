package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// multipartThreshold is the encoded size above which archives are uploaded
// in parts.
const multipartThreshold = 16 << 20

// SwapSource is the slice of the swap store the archiver needs.
type SwapSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.SwapRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BlobStore is the object storage the archiver writes to and verifies from.
type BlobStore interface {
	domain.BlobWriter
	domain.BlobReader
}

// ArchiverConfig controls where archives go and whether archived rows are
// removed from the primary store.
type ArchiverConfig struct {
	Prefix      string
	DeleteAfter bool
}

// Archiver implements domain.Archiver. Swaps older than the cutoff are
// written as one JSONL object per run. Rows are deleted from the store only
// after the object has been read back and its record count matches.
type Archiver struct {
	blobs  BlobStore
	swaps  SwapSource
	audit  domain.AuditStore
	cfg    ArchiverConfig
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(blobs BlobStore, swaps SwapSource, audit domain.AuditStore, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "archive"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		blobs:  blobs,
		swaps:  swaps,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSwaps exports swaps executed before the cutoff and returns how many
// were archived.
func (a *Archiver) ArchiveSwaps(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.swaps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive swaps query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive swaps marshal: %w", err)
	}

	key := a.archivePath(before)
	exists, err := a.blobs.Exists(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive swaps: %w", err)
	}
	if exists {
		return 0, fmt.Errorf("s3blob: archive %s: %w", key, domain.ErrAlreadyExists)
	}

	if len(buf) > multipartThreshold {
		err = a.blobs.PutMultipart(ctx, key, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.blobs.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive swaps upload: %w", err)
	}

	count := int64(len(records))
	detail := map[string]any{
		"path":   key,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}

	if a.cfg.DeleteAfter {
		if err := a.verify(ctx, key, count); err != nil {
			return count, err
		}
		deleted, err := a.swaps.DeleteBefore(ctx, before)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive swaps delete: %w", err)
		}
		detail["deleted"] = deleted
	}

	a.logger.InfoContext(ctx, "swaps archived", slog.String("path", key), slog.Int64("count", count))
	if a.audit != nil {
		if err := a.audit.Log(ctx, domain.AuditSwapsArchived, detail); err != nil {
			return count, fmt.Errorf("s3blob: archive swaps audit log: %w", err)
		}
	}
	return count, nil
}

// List returns the archives written so far.
func (a *Archiver) List(ctx context.Context) ([]domain.BlobInfo, error) {
	return a.blobs.List(ctx, path.Join(a.cfg.Prefix, "swaps")+"/")
}

// verify reads the archive back and checks it holds want records.
func (a *Archiver) verify(ctx context.Context, key string, want int64) error {
	body, err := a.blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("s3blob: verify %s: %w", key, err)
	}
	defer body.Close()

	var n int64
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("s3blob: verify %s: %w", key, err)
	}
	if n != want {
		return fmt.Errorf("s3blob: verify %s: wrote %d records, read back %d", key, want, n)
	}
	return nil
}

// archivePath partitions archives by cutoff date:
//
//	archive/swaps/2025/01/2025-01-31T000000Z.jsonl
func (a *Archiver) archivePath(before time.Time) string {
	before = before.UTC()
	return path.Join(a.cfg.Prefix, "swaps", before.Format("2006"), before.Format("01"),
		before.Format("2006-01-02T150405Z")+".jsonl")
}

// marshalJSONL encodes records as newline-delimited JSON.
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

var _ domain.Archiver = (*Archiver)(nil)
