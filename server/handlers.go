package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jupark12/docshift/models"
	"github.com/jupark12/docshift/store"
	"github.com/jupark12/docshift/worker"
)

// multipartAllowance covers the multipart framing around the uploaded file so
// that the upload limit applies to the file itself.
const multipartAllowance = 1 << 20

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// handleConvert accepts a multipart upload, records a pending document and
// queues it for conversion.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	bodyLimit := s.maxUploadBytes + multipartAllowance
	if r.ContentLength > bodyLimit {
		s.rejectTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.rejectTooLarge(w)
		default:
			writeError(w, http.StatusBadRequest, "No file uploaded")
		}
		return
	}
	defer file.Close()

	if header.Size > s.maxUploadBytes {
		s.rejectTooLarge(w)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	doc, err := s.pipeline.Create(r.Context(), filepath.Base(header.Filename))
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "Unsupported file format")
			return
		}
		s.logger.Error().Err(err).Msg("failed to create document")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), worker.Job{Document: doc, Data: data}); err != nil {
		s.logger.Error().Err(err).Int64("document_id", doc.ID).Msg("failed to queue document")
		s.abandon(r.Context(), doc.ID, err)
		writeError(w, http.StatusServiceUnavailable, "Conversion service unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (s *Server) rejectTooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte limit", s.maxUploadBytes))
}

// abandon moves a document that never reached a worker to error.
func (s *Server) abandon(ctx context.Context, id int64, cause error) {
	doc, err := s.store.MarkError(context.WithoutCancel(ctx), id, "failed to queue document: "+cause.Error())
	if err != nil {
		s.logger.Error().Err(err).Int64("document_id", id).Msg("failed to record queue failure")
		return
	}
	s.notify(*doc)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusNotFound, "Document not found")
		return nil, false
	}

	doc, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return nil, false
		}
		s.logger.Error().Err(err).Int64("document_id", id).Msg("failed to load document")
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return doc, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleListDocuments returns every document, or those in the status given by
// the status query parameter.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	status := models.DocumentStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusPending, models.StatusCompleted, models.StatusError:
	default:
		writeError(w, http.StatusBadRequest, "Unknown status "+strconv.Quote(string(status)))
		return
	}

	docs, err := s.store.List(r.Context(), status)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list documents")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if doc.Status != models.StatusCompleted {
		writeError(w, http.StatusNotFound, "Converted document not available")
		return
	}

	payload, err := s.store.GetPayload(r.Context(), doc.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Converted document not available")
			return
		}
		s.logger.Error().Err(err).Int64("document_id", doc.ID).Msg("failed to load payload")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", doc.ConvertedFormat.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": doc.DownloadFilename(),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
