package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/staticsnack/server/internal/auth"
	"github.com/staticsnack/server/internal/pipeline"
	"github.com/staticsnack/server/internal/snackerr"
	"github.com/staticsnack/server/internal/store"
)

// Pipeline is the commit pipeline surface the handlers need.
// Implemented by *pipeline.Service; inject a fake in tests.
type Pipeline interface {
	CommitBatch(ctx context.Context, siteID string, req pipeline.BatchRequest) (*pipeline.BatchResult, error)
	WriteAsset(ctx context.Context, siteID string, req pipeline.WriteRequest) (*pipeline.WriteResult, error)
	GuestUpload(ctx context.Context, req pipeline.GuestUploadRequest) (*pipeline.WriteResult, error)
	CreateShare(ctx context.Context, siteID string, req pipeline.CreateShareRequest) (*pipeline.CreatedShare, error)
	Activity(ctx context.Context, siteID string, limit int) ([]store.ActivityLogEntry, error)
}

// Authorizer answers "is this user a member of this site". Membership
// lives in the identity layer, outside this service; AllowAll is for
// deployments where the gateway already enforces it.
type Authorizer interface {
	Member(ctx context.Context, siteID, userID string) error
}

type allowAll struct{}

func (allowAll) Member(context.Context, string, string) error { return nil }

func AllowAll() Authorizer { return allowAll{} }

type Handler struct {
	pipe  Pipeline
	authz Authorizer
}

func NewHandler(pipe Pipeline, authz Authorizer) *Handler {
	if authz == nil {
		authz = AllowAll()
	}
	return &Handler{pipe: pipe, authz: authz}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	kind := snackerr.KindOf(err)
	status := httpStatus(kind)
	if status >= http.StatusInternalServerError {
		log.Printf("[snack] request failed: %v", err)
	}
	respondJSON(w, status, ErrorResponse{Error: ErrorBody{Kind: string(kind), Message: userMessage(err)}})
}

// userMessage exposes the structured message; anything unclassified
// stays generic so internals never leak to the UI.
func userMessage(err error) string {
	var se *snackerr.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}

func httpStatus(kind snackerr.Kind) int {
	switch kind {
	case snackerr.KindInvalidPath, snackerr.KindInvalidEncoding, snackerr.KindFileTooLarge,
		snackerr.KindInvalidFileName, snackerr.KindExtNotAllowed, snackerr.KindInvalidRequest:
		return http.StatusBadRequest
	case snackerr.KindForbidden:
		return http.StatusForbidden
	case snackerr.KindNotFound:
		return http.StatusNotFound
	case snackerr.KindInstallationNotFound, snackerr.KindBranchConflict:
		return http.StatusConflict
	case snackerr.KindUploadLimit:
		return http.StatusTooManyRequests
	case snackerr.KindShareExpired, snackerr.KindShareRevoked:
		return http.StatusGone
	case snackerr.KindCommitFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// member runs the external membership precondition before any pipeline
// call.
func (h *Handler) member(w http.ResponseWriter, r *http.Request, siteID string) (string, bool) {
	actor := auth.ActorFromRequest(r)
	if err := h.authz.Member(r.Context(), siteID, actor); err != nil {
		respondError(w, snackerr.Wrap(snackerr.KindForbidden, "not a member of this site", err))
		return "", false
	}
	return actor, true
}

func (h *Handler) CommitBatch(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	actor, ok := h.member(w, r, siteID)
	if !ok {
		return
	}
	var req BatchCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, snackerr.New(snackerr.KindInvalidRequest, "invalid json"))
		return
	}
	res, err := h.pipe.CommitBatch(r.Context(), siteID, pipeline.BatchRequest{
		Message: req.Message,
		Branch:  req.Branch,
		Changes: req.Changes,
		Actor:   actor,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) WriteAsset(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	actor, ok := h.member(w, r, siteID)
	if !ok {
		return
	}
	var req AssetWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, snackerr.New(snackerr.KindInvalidRequest, "invalid json"))
		return
	}
	res, err := h.pipe.WriteAsset(r.Context(), siteID, pipeline.WriteRequest{
		Path:            req.Path,
		Content:         req.Content,
		OriginalContent: req.OriginalContent,
		Message:         req.Message,
		Branch:          req.Branch,
		KnownSHA:        req.KnownSHA,
		Actor:           actor,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	if _, ok := h.member(w, r, siteID); !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.pipe.Activity(r.Context(), siteID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ActivityResponse{Entries: entries})
}

func (h *Handler) CreateShare(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	actor, ok := h.member(w, r, siteID)
	if !ok {
		return
	}
	var req CreateShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, snackerr.New(snackerr.KindInvalidRequest, "invalid json"))
		return
	}
	created, err := h.pipe.CreateShare(r.Context(), siteID, pipeline.CreateShareRequest{
		TargetDir:   req.TargetDir,
		AllowedExts: req.AllowedExts,
		MaxUploads:  req.MaxUploads,
		TTL:         time.Duration(req.TTLSeconds) * time.Second,
		Actor:       actor,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, CreateShareResponse{
		ShareID:   created.Share.ID,
		Token:     created.Token,
		ExpiresAt: created.Share.ExpiresAt,
	})
}

func (h *Handler) GuestUpload(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareID")
	var req GuestUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, snackerr.New(snackerr.KindInvalidRequest, "invalid json"))
		return
	}
	res, err := h.pipe.GuestUpload(r.Context(), pipeline.GuestUploadRequest{
		ShareID:  shareID,
		Token:    r.Header.Get("X-Share-Token"),
		FileName: req.FileName,
		Content:  req.Content,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
