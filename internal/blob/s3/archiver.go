package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

// SessionArchiver implements domain.Archiver by serializing a finished
// session's artifacts to JSON/JSONL and uploading them to object storage.
//
// Layout under the bucket:
//
//	sessions/ES/2026-08-28/summary.json
//	sessions/ES/2026-08-28/bars.jsonl
//	sessions/ES/2026-08-28/intents.jsonl
type SessionArchiver struct {
	writer domain.BlobWriter
}

// NewSessionArchiver creates a SessionArchiver uploading through the given
// blob writer.
func NewSessionArchiver(writer domain.BlobWriter) *SessionArchiver {
	return &SessionArchiver{writer: writer}
}

// ArchiveSession uploads the summary, the session's bar record, and its
// intent log, and returns the common key prefix. Bars and intents are
// newline-delimited JSON so downstream replay tooling can stream them.
func (a *SessionArchiver) ArchiveSession(ctx context.Context, summary domain.SessionSummary, bars []domain.Bar, intents []domain.Intent) (string, error) {
	prefix := fmt.Sprintf("sessions/%s/%s", summary.Symbol, summary.Date)

	sumBuf, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal session summary: %w", err)
	}
	if err := a.writer.Put(ctx, prefix+"/summary.json", sumBuf, "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive summary: %w", err)
	}

	barBuf, err := marshalJSONL(bars)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal bars: %w", err)
	}
	if err := a.writer.Put(ctx, prefix+"/bars.jsonl", barBuf, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive bars: %w", err)
	}

	intentBuf, err := marshalJSONL(intents)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal intents: %w", err)
	}
	if err := a.writer.Put(ctx, prefix+"/intents.jsonl", intentBuf, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive intents: %w", err)
	}

	return prefix, nil
}

// marshalJSONL serialises a slice as newline-delimited JSON, one compact
// line per element.
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

var _ domain.Archiver = (*SessionArchiver)(nil)
