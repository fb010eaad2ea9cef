// Package validator checks ingest events before they are indexed or
// published. It enforces id, title and body length constraints and returns
// per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion"
)

const (
	maxDocumentIDLength = 255
	maxTitleLength      = 1024
	maxBodyLength       = 1048576
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateEvent checks that the event has an id and that the title and body
// are within length limits. An empty title is allowed; an empty body is not
// unless a title is present.
func ValidateEvent(event *ingestion.IngestEvent) error {
	errs := make(map[string]string)

	id := strings.TrimSpace(event.DocumentID)
	if id == "" {
		errs["document_id"] = "document_id is required"
	} else if len(id) > maxDocumentIDLength {
		errs["document_id"] = fmt.Sprintf("document_id must be at most %d characters", maxDocumentIDLength)
	}
	title := strings.TrimSpace(event.Title)
	if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	body := strings.TrimSpace(event.Body)
	if body == "" && title == "" {
		errs["body"] = "body or title is required"
	} else if len(body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d characters", maxBodyLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
