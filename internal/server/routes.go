// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"mime"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/glimpse/internal/search"
	"github.com/sigil-dev/glimpse/internal/store"
	sigilerr "github.com/sigil-dev/glimpse/pkg/errors"
	"github.com/sigil-dev/glimpse/pkg/health"
)

const immutableCache = "public, max-age=31536000, immutable"

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Search images by tags, text, or an example image",
		Tags:        []string{"search"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/images/{hash}",
		Summary:     "Get original image bytes",
		Tags:        []string{"images"},
	}, s.handleGetImage)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-preview",
		Method:      http.MethodGet,
		Path:        "/api/v1/images/{hash}/preview",
		Summary:     "Get image preview, or the original when none was stored",
		Tags:        []string{"images"},
	}, s.handleGetPreview)

	huma.Register(s.api, huma.Operation{
		OperationID: "reload-index",
		Method:      http.MethodPost,
		Path:        "/api/v1/index/reload",
		Summary:     "Rebuild the retrieval index from the store",
		Tags:        []string{"index"},
	}, s.handleReload)

	huma.Register(s.api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Store and index statistics",
		Tags:        []string{"system"},
	}, s.handleStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-tags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags usable in queries",
		Tags:        []string{"search"},
	}, s.handleTags)
}

// --- Request/Response types for huma ---

// HealthBody is the JSON body of the health endpoint.
type HealthBody struct {
	Status      string                    `json:"status" example:"ok" doc:"ok, or degraded when the index is not loaded or an extractor is cooling down"`
	IndexLoaded bool                      `json:"index_loaded" doc:"Whether a retrieval index is loaded"`
	Extractors  map[string]health.Metrics `json:"extractors" doc:"Health of each configured extractor"`
}

type healthOutput struct {
	Body HealthBody
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Tags  []string `json:"tags,omitempty" maxItems:"64" doc:"Query tags; filtered by the tag vocabulary"`
	Text  string   `json:"text,omitempty" maxLength:"2048" doc:"Free-text query, embedded with the text encoder"`
	Image []byte   `json:"image,omitempty" doc:"Base64-encoded example image"`
	K     int      `json:"k,omitempty" maximum:"1000" doc:"Result count; 0 uses the server default"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	Hash       string  `json:"hash" doc:"Content hash"`
	Score      float64 `json:"score" doc:"Similarity score"`
	ImageURL   string  `json:"image_url" doc:"Original image"`
	PreviewURL string  `json:"preview_url" doc:"Preview image"`
}

type searchInput struct {
	Body SearchRequest
}

type searchOutput struct {
	Body struct {
		Mode    string      `json:"mode" enum:"tags,embedding,combined" doc:"Scoring mode used"`
		Tags    []string    `json:"tags" doc:"Tags the query was scored with"`
		Results []SearchHit `json:"results"`
	}
}

type hashInput struct {
	Hash string `path:"hash" doc:"40-character hex content hash"`
}

type blobOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	ETag         string `header:"ETag"`
	Body         []byte
}

type reloadOutput struct {
	Body struct {
		Rows int `json:"rows" doc:"Images in the new index"`
		Dim  int `json:"dim" doc:"Embedding width"`
	}
}

type statsOutput struct {
	Body search.Stats
}

type tagsOutput struct {
	Body struct {
		Tags []string `json:"tags"`
	}
}

// --- Handlers ---

func (s *Server) handleHealth(ctx context.Context, _ *struct{}) (*healthOutput, error) {
	svc := s.services.Searcher()
	out := &healthOutput{}
	out.Body.Extractors = svc.Health()
	if st, err := svc.Stats(ctx); err == nil {
		out.Body.IndexLoaded = st.IndexLoaded
	}
	out.Body.Status = "ok"
	if !out.Body.IndexLoaded || health.Degraded(out.Body.Extractors) {
		out.Body.Status = "degraded"
	}
	return out, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	resp, err := s.services.Searcher().Search(ctx, search.Request{
		Image: input.Body.Image,
		Text:  input.Body.Text,
		Tags:  input.Body.Tags,
		K:     input.Body.K,
	})
	if err != nil {
		return nil, s.apiError("searching", err)
	}

	out := &searchOutput{}
	out.Body.Mode = string(resp.Mode)
	out.Body.Tags = resp.Tags
	out.Body.Results = make([]SearchHit, len(resp.Results))
	for i, r := range resp.Results {
		h := r.ID.String()
		out.Body.Results[i] = SearchHit{
			Hash:       h,
			Score:      r.Score,
			ImageURL:   "/api/v1/images/" + h,
			PreviewURL: "/api/v1/images/" + h + "/preview",
		}
	}
	return out, nil
}

func (s *Server) handleGetImage(ctx context.Context, input *hashInput) (*blobOutput, error) {
	blob, err := s.services.Searcher().Image(ctx, input.Hash)
	if err != nil {
		return nil, s.apiError("retrieving image", err)
	}
	return newBlobOutput(input.Hash, blob), nil
}

func (s *Server) handleGetPreview(ctx context.Context, input *hashInput) (*blobOutput, error) {
	blob, err := s.services.Searcher().Preview(ctx, input.Hash)
	if err != nil {
		return nil, s.apiError("retrieving preview", err)
	}
	return newBlobOutput(input.Hash, blob), nil
}

func (s *Server) handleReload(ctx context.Context, _ *struct{}) (*reloadOutput, error) {
	idx, err := s.services.Searcher().Reload(ctx)
	if err != nil {
		return nil, s.apiError("reloading index", err)
	}
	out := &reloadOutput{}
	out.Body.Rows = idx.Len()
	out.Body.Dim = idx.Dim()
	return out, nil
}

func (s *Server) handleStats(ctx context.Context, _ *struct{}) (*statsOutput, error) {
	st, err := s.services.Searcher().Stats(ctx)
	if err != nil {
		return nil, s.apiError("reading stats", err)
	}
	return &statsOutput{Body: st}, nil
}

func (s *Server) handleTags(_ context.Context, _ *struct{}) (*tagsOutput, error) {
	out := &tagsOutput{}
	out.Body.Tags = s.services.Searcher().Tags()
	return out, nil
}

func newBlobOutput(hash string, blob store.Blob) *blobOutput {
	ct := mime.TypeByExtension(blob.Extension)
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &blobOutput{
		ContentType:  ct,
		CacheControl: immutableCache,
		ETag:         `"` + hash + `"`,
		Body:         blob.Data,
	}
}

// apiError maps a coded error to a huma error with the matching status.
// Server-side failures are logged and their detail withheld.
func (s *Server) apiError(op string, err error) error {
	status := sigilerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error("request failed", "op", op, "code", sigilerr.CodeOf(err), "error", err)
		return huma.NewError(status, op+" failed")
	}
	return huma.NewError(status, err.Error())
}
