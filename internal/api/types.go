package api

import (
	"time"

	"github.com/staticsnack/server/internal/pipeline"
	"github.com/staticsnack/server/internal/store"
)

type BatchCommitRequest struct {
	Message string                   `json:"message"`
	Branch  string                   `json:"branch,omitempty"`
	Changes []pipeline.PendingChange `json:"changes"`
}

type AssetWriteRequest struct {
	Path            string `json:"path"`
	Content         string `json:"content"`
	OriginalContent string `json:"originalContent,omitempty"`
	Message         string `json:"message,omitempty"`
	Branch          string `json:"branch,omitempty"`
	KnownSHA        string `json:"knownSha,omitempty"`
}

type CreateShareRequest struct {
	TargetDir   string   `json:"targetDir"`
	AllowedExts []string `json:"allowedExts,omitempty"`
	MaxUploads  int      `json:"maxUploads"`
	TTLSeconds  int64    `json:"ttlSeconds,omitempty"`
}

type CreateShareResponse struct {
	ShareID   string    `json:"shareId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type GuestUploadRequest struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

type ActivityResponse struct {
	Entries []store.ActivityLogEntry `json:"entries"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
