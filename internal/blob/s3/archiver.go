package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

// multipartThreshold is the payload size above which the multipart uploader
// is used instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.Archiver by serializing resolved-market
// snapshots to JSONL and uploading the batch to the configured bucket.
//
// Deleting the archived rows from the read model is intentionally not done
// here; that is a separate step taken after the archive is verified.
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver writing through the given blob writer.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveResolved uploads the given markets as one JSONL object and returns
// the object key. An empty batch uploads nothing and returns an empty key.
func (a *Archiver) ArchiveResolved(ctx context.Context, markets []domain.Market) (string, error) {
	if len(markets) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(markets)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}

	path := archivePath(time.Now().UTC())
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive markets upload: %w", err)
	}
	return path, nil
}

// archivePath builds the object key for one archive batch, partitioned by
// day with a unique suffix so concurrent batches never collide.
//
//	archive/markets/2026-08-31/6f1c....jsonl
func archivePath(now time.Time) string {
	return fmt.Sprintf("archive/markets/%s/%s.jsonl",
		now.Format("2006-01-02"), uuid.NewString())
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
var _ domain.Archiver = (*Archiver)(nil)
