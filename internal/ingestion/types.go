// Package ingestion defines the document and index events exchanged over
// Kafka and the JSONL reader used for file-driven indexing passes.
package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// IngestEvent is one document to index.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	IngestedAt time.Time `json:"ingested_at"`
}

// IndexBuiltEvent is published once an indexing pass has written its segment.
type IndexBuiltEvent struct {
	BaseName      string    `json:"base_name"`
	SegmentPath   string    `json:"segment_path"`
	Documents     int       `json:"documents"`
	Terms         int       `json:"terms"`
	TransformSize int       `json:"transform_size"`
	CaseAnchors   int       `json:"case_anchors"`
	BuiltAt       time.Time `json:"built_at"`
}

const maxLineSize = 4 << 20

// ReadJSONL decodes one IngestEvent per non-empty line of r and passes it to
// fn, stopping at the first error.
func ReadJSONL(r io.Reader, fn func(IngestEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var event IngestEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("line %d: decoding document: %w", line, err)
		}
		if err := fn(event); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading documents: %w", err)
	}
	return nil
}
