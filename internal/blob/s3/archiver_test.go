package s3blob

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/ibfadebot/internal/domain"
)

type fakeWriter struct {
	puts map[string][]byte
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{puts: make(map[string][]byte)}
}

func (w *fakeWriter) Put(ctx context.Context, path string, data []byte, contentType string) error {
	w.puts[path] = data
	return nil
}

func TestArchiveSessionUploadsAllArtifacts(t *testing.T) {
	writer := newFakeWriter()
	arch := NewSessionArchiver(writer)

	summary := domain.SessionSummary{
		Symbol:      "MES",
		Date:        "2026-08-28",
		FinalPOC:    4490.25,
		TradesTaken: 2,
		RealizedR:   1.4,
	}
	bars := []domain.Bar{
		{Timestamp: time.Date(2026, 8, 28, 13, 30, 0, 0, time.UTC), Open: 4488, High: 4490, Low: 4487, Close: 4489, Volume: 500},
		{Timestamp: time.Date(2026, 8, 28, 13, 31, 0, 0, time.UTC), Elapsed: time.Minute, Open: 4489, High: 4491, Low: 4488, Close: 4490, Volume: 420},
	}
	intents := []domain.Intent{
		{ID: "i1", Type: domain.IntentEnter, Symbol: "MES", Direction: domain.Long, Price: 4466},
	}

	prefix, err := arch.ArchiveSession(context.Background(), summary, bars, intents)
	if err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
	if prefix != "sessions/MES/2026-08-28" {
		t.Fatalf("prefix = %q, want sessions/MES/2026-08-28", prefix)
	}

	for _, key := range []string{
		prefix + "/summary.json",
		prefix + "/bars.jsonl",
		prefix + "/intents.jsonl",
	} {
		if _, ok := writer.puts[key]; !ok {
			t.Errorf("missing upload %s", key)
		}
	}

	barLines := strings.Count(string(writer.puts[prefix+"/bars.jsonl"]), "\n")
	if barLines != len(bars) {
		t.Errorf("bars.jsonl has %d lines, want %d", barLines, len(bars))
	}
	if !strings.Contains(string(writer.puts[prefix+"/intents.jsonl"]), `"id":"i1"`) {
		t.Errorf("intents.jsonl missing intent payload: %s", writer.puts[prefix+"/intents.jsonl"])
	}
}

func TestMarshalJSONLEmptySlice(t *testing.T) {
	buf, err := marshalJSONL([]domain.Bar{})
	if err != nil {
		t.Fatalf("marshalJSONL: %v", err)
	}
	if len(buf) != 0 {
		t.Fatalf("expected empty output, got %q", buf)
	}
}
