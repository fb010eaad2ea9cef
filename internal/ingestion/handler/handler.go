// Package handler serves the HTTP document-ingest endpoint that feeds the
// indexer's Kafka topic.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/logger"
)

const maxBodyBytes = 64 << 20

type Handler struct {
	producer publisher.EventPublisher
	logger   *slog.Logger
}

func New(producer publisher.EventPublisher) *Handler {
	return &Handler{
		producer: producer,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

type ingestResponse struct {
	Published int `json:"published"`
	Rejected  int `json:"rejected"`
}

// Ingest accepts a single JSON document, or one document per line when the
// content type is application/x-ndjson. A single invalid document is
// answered with 400 and its field errors; invalid lines of a batch are
// skipped and counted.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	pub := publisher.New(h.producer)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-ndjson" {
		err := ingestion.ReadJSONL(r.Body, func(event ingestion.IngestEvent) error {
			return pub.Add(ctx, event)
		})
		if err == nil {
			err = pub.Flush(ctx)
		}
		published, rejected := pub.Counts()
		if err != nil {
			status := batchStatus(err)
			log.Error("batch ingestion failed", "published", published, "status_code", status, "error", err)
			message := "ingestion failed"
			if status < http.StatusInternalServerError {
				message = err.Error()
			}
			h.writeError(w, status, message)
			return
		}
		log.Info("documents ingested", "published", published, "rejected", rejected)
		h.writeJSON(w, http.StatusAccepted, ingestResponse{Published: published, Rejected: rejected})
		return
	}

	var event ingestion.IngestEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateEvent(&event); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := pub.Add(ctx, event); err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), "ingestion failed")
		return
	}
	if err := pub.Flush(ctx); err != nil {
		log.Error("ingestion failed", "doc_id", event.DocumentID, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "ingestion failed")
		return
	}
	log.Info("document ingested", "doc_id", event.DocumentID)
	h.writeJSON(w, http.StatusAccepted, ingestResponse{Published: 1})
}

// batchStatus maps a batch failure to 400 for bad input, 413 for an
// oversized body and the error's own status otherwise.
func batchStatus(err error) int {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var sizeErr *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return http.StatusBadRequest
	case errors.As(err, &sizeErr):
		return http.StatusRequestEntityTooLarge
	}
	return apperrors.HTTPStatusCode(err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
