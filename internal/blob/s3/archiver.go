package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// multipartThreshold is the payload size above which the multipart uploader
// is used instead of a single PutObject.
const multipartThreshold = 5 * 1024 * 1024

// jsonlContentType labels archive objects as newline-delimited JSON.
const jsonlContentType = "application/x-ndjson"

// ActivityArchiveStore provides the read side the archiver needs: all
// processed activities observed strictly before the cutoff.
type ActivityArchiveStore interface {
	ListProcessedBefore(ctx context.Context, before time.Time) ([]domain.Activity, error)
}

// ActivityArchiver serialises processed activities to JSONL and uploads them
// to S3 under archive/activities/YYYY-MM.jsonl, verifying the object exists
// afterwards. Deleting the archived rows from the primary store is the
// caller's explicit follow-up step, gated on this method succeeding.
type ActivityArchiver struct {
	writer *Writer
	reader *Reader
	store  ActivityArchiveStore
}

// NewActivityArchiver creates a new ActivityArchiver.
func NewActivityArchiver(writer *Writer, reader *Reader, store ActivityArchiveStore) *ActivityArchiver {
	return &ActivityArchiver{
		writer: writer,
		reader: reader,
		store:  store,
	}
}

// ArchiveActivities uploads all processed activities before the cutoff and
// returns how many records the archive holds. A zero count with nil error
// means there was nothing to archive and no object was written.
func (a *ActivityArchiver) ArchiveActivities(ctx context.Context, before time.Time) (int64, error) {
	activities, err := a.store.ListProcessedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activities query: %w", err)
	}
	if len(activities) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(activities)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activities marshal: %w", err)
	}

	path := archivePath("activities", before)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), jsonlContentType, multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activities upload: %w", err)
	}

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activities verify: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("s3blob: archive activities verify: object %s missing after upload", path)
	}

	return int64(len(activities)), nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/activities/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
