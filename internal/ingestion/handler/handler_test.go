package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
)

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, events ...kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func post(t *testing.T, h *Handler, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)
	return rec
}

func TestIngestSingle(t *testing.T) {
	prod := &fakeProducer{}
	rec := post(t, New(prod), "application/json", `{"document_id":"pmid-1","title":"APC","body":"kinase pathway"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, prod.events, 1)
	assert.Equal(t, "pmid-1", prod.events[0].Key)
}

func TestIngestSingleInvalid(t *testing.T) {
	prod := &fakeProducer{}
	rec := post(t, New(prod), "application/json", `{"document_id":"","body":"text"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body.Fields, "document_id")
	assert.Empty(t, prod.events)

	rec = post(t, New(prod), "application/json", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestBatch(t *testing.T) {
	prod := &fakeProducer{}
	batch := `{"document_id":"a","body":"kinase"}
{"document_id":"","body":"missing id"}

{"document_id":"b","body":"pathway"}
`
	rec := post(t, New(prod), "application/x-ndjson; charset=utf-8", batch)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp ingestResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, ingestResponse{Published: 2, Rejected: 1}, resp)
	assert.Len(t, prod.events, 2)
}

func TestIngestProducerFailure(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	rec := post(t, New(prod), "application/json", `{"document_id":"a","body":"kinase"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngestBatchMalformedLine(t *testing.T) {
	prod := &fakeProducer{}
	rec := post(t, New(prod), "application/x-ndjson", "{\"document_id\":\"a\",\"body\":\"x\"}\nnot json\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "line 2")
	assert.Empty(t, prod.events)
}
