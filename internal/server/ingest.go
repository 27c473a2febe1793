// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/glimpse/internal/ingest"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
)

// uploadField is the multipart field carrying image files.
const uploadField = "files"

func (s *Server) registerIngestRoute() {
	s.router.Post("/api/v1/images", s.handleIngest)

	// Multipart uploads need the raw request, so the route is served by chi
	// and documented here by hand.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "ingest-images",
		Method:      http.MethodPost,
		Path:        "/api/v1/images",
		Summary:     "Ingest uploaded images as one batch",
		Description: "Stores every uploaded file, extracts tags and embeddings, commits, and reloads the index. Disabled unless server.allow_ingest is set.",
		Tags:        []string{"images"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"multipart/form-data": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{uploadField},
						Properties: map[string]*huma.Schema{
							uploadField: {
								Type:        "array",
								Description: "Image files",
								Items:       &huma.Schema{Type: "string", Format: "binary"},
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {Description: "Batch report with per-file status and hash"},
			"400": {Description: "No files in the request"},
			"408": {Description: "Request cancelled; the batch was rolled back"},
			"413": {Description: "Upload exceeds the configured limit"},
			"501": {Description: "Ingestion is disabled"},
		},
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ingester := s.services.Ingester()
	if !s.cfg.AllowIngest || ingester == nil {
		s.writeError(w, sigilerr.New(sigilerr.CodeServerNotImplemented, "ingestion is disabled on this server"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "upload exceeds the configured limit")
			return
		}
		s.writeError(w, sigilerr.Wrap(err, sigilerr.CodeServerRequestInvalid, "parsing multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		s.writeError(w, sigilerr.New(sigilerr.CodeServerRequestInvalid, "no files in field \""+uploadField+"\""))
		return
	}

	items := make([]ingest.Item, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, sigilerr.Wrap(err, sigilerr.CodeServerRequestInvalid, "opening upload"))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			s.writeError(w, sigilerr.Wrap(err, sigilerr.CodeServerRequestInvalid, "reading upload"))
			return
		}
		items = append(items, ingest.Item{Name: fh.Filename, Data: data})
	}

	// One batch at a time: batches share the store's pending transaction.
	s.ingestMu.Lock()
	report, err := ingester.Process(r.Context(), items)
	s.ingestMu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := s.services.Searcher().Reload(r.Context()); err != nil {
		s.logger.Warn("index reload after ingest failed", "batch", report.ID, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Warn("writing ingest response", "error", err)
	}
}

// writeError writes err as an RFC 9457 problem document, matching the
// bodies huma produces for registered operations.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := sigilerr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusNotImplemented {
		s.logger.Error("request failed", "code", sigilerr.CodeOf(err), "error", err)
		msg = "ingest failed"
	}
	writeProblem(w, status, msg)
}

func writeProblem(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&huma.ErrorModel{
		Title:  http.StatusText(status),
		Status: status,
		Detail: msg,
	})
}
