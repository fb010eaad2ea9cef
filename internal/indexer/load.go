package indexer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
)

// LoadResult counts what LoadJSONL did with each line.
type LoadResult struct {
	Indexed    int `json:"indexed"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
}

// LoadJSONL indexes every ingest event read from r, one JSON object per
// line. Invalid and duplicate documents are skipped and counted; a malformed
// line aborts the load.
func (e *Engine) LoadJSONL(r io.Reader) (LoadResult, error) {
	var res LoadResult
	err := ingestion.ReadJSONL(r, func(event ingestion.IngestEvent) error {
		if err := validator.ValidateEvent(&event); err != nil {
			res.Invalid++
			e.logger.Warn("skipping invalid document", "doc_id", event.DocumentID, "error", err)
			return nil
		}
		err := e.IndexDocument(event.DocumentID, event.Title, event.Body)
		if errors.Is(err, apperrors.ErrDocumentExists) {
			res.Duplicates++
			e.logger.Warn("skipping duplicate document", "doc_id", event.DocumentID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}
		res.Indexed++
		return nil
	})
	return res, err
}

// BuiltEvent describes ix for the index-complete topic.
func (ix *Index) BuiltEvent() ingestion.IndexBuiltEvent {
	st := ix.Stats()
	return ingestion.IndexBuiltEvent{
		BaseName:      st.BaseName,
		SegmentPath:   ix.Segment.Path(),
		Documents:     st.Documents,
		Terms:         st.Terms,
		TransformSize: st.TransformSize,
		CaseAnchors:   st.CaseAnchors,
		BuiltAt:       time.Now().UTC(),
	}
}
