// Package store persists the pipeline's durable state: sites, asset
// shares, activity log entries and asset version rows. Two backends
// are provided, an in-memory store for development and tests and a
// Redis-backed store for production.
package store

import (
	"context"
	"errors"
	"time"
)

// Site binds a StaticSnack site to its GitHub repository and App
// installation.
type Site struct {
	ID             string    `json:"id"`
	RepoFullName   string    `json:"repoFullName"` // "owner/repo"
	DefaultBranch  string    `json:"defaultBranch"`
	InstallationID int64     `json:"installationId"`
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AssetShare is a time- and count-bounded anonymous upload capability
// tied to one directory of a site. The clear token is never stored;
// only its bcrypt hash is.
type AssetShare struct {
	ID          string    `json:"id"`
	SiteID      string    `json:"siteId"`
	TargetDir   string    `json:"targetDir"`
	TokenHash   []byte    `json:"tokenHash"`
	AllowedExts []string  `json:"allowedExts"`
	MaxUploads  int       `json:"maxUploads"`
	UploadCount int       `json:"uploadCount"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Revoked     bool      `json:"revoked"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ActivityLogEntry is an append-only audit row. UserID is empty for
// guest or system actions.
type ActivityLogEntry struct {
	SiteID    string         `json:"siteId"`
	UserID    string         `json:"userId,omitempty"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AssetVersion tracks one committed file: checksum, size and the
// commit (and batch, when part of one) that produced it.
type AssetVersion struct {
	SiteID    string    `json:"siteId"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	CommitSHA string    `json:"commitSha"`
	BatchID   string    `json:"batchId,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotFoundError signals missing records.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " " + e.Key + " not found"
}

// Share consumption failures. ConsumeShareUpload is the single atomic
// increment-if-below-limit gate for guest uploads.
var (
	ErrUploadLimitReached = errors.New("share upload limit reached")
	ErrShareExpired       = errors.New("share expired")
	ErrShareRevoked       = errors.New("share revoked")
)

// Store defines the persistence operations the pipeline needs.
type Store interface {
	GetSite(ctx context.Context, id string) (Site, error)
	PutSite(ctx context.Context, site Site) error

	CreateShare(ctx context.Context, share AssetShare) error
	GetShare(ctx context.Context, id string) (AssetShare, error)
	// ConsumeShareUpload atomically increments the share's upload count
	// if and only if the share is live and below its limit. It returns
	// the share as of the successful increment.
	ConsumeShareUpload(ctx context.Context, id string) (AssetShare, error)
	RevokeShare(ctx context.Context, id string) error

	AppendActivity(ctx context.Context, entry ActivityLogEntry) error
	// ListActivity returns the most recent entries first.
	ListActivity(ctx context.Context, siteID string, limit int) ([]ActivityLogEntry, error)

	PutAssetVersion(ctx context.Context, v AssetVersion) error
	ListAssetVersions(ctx context.Context, siteID, path string) ([]AssetVersion, error)
}
