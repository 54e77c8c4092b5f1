package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/staticsnack/server/internal/sanitize"
	"github.com/staticsnack/server/internal/snackerr"
	"github.com/staticsnack/server/internal/store"
)

type CreateShareRequest struct {
	TargetDir   string
	AllowedExts []string
	MaxUploads  int
	TTL         time.Duration
	Actor       string
}

// CreatedShare carries the clear token exactly once; only its hash is
// stored.
type CreatedShare struct {
	Share store.AssetShare
	Token string
}

func (s *Service) CreateShare(ctx context.Context, siteID string, req CreateShareRequest) (*CreatedShare, error) {
	site, err := s.site(ctx, siteID)
	if err != nil {
		return nil, err
	}
	dir := ""
	if req.TargetDir != "" {
		dir, err = sanitize.CleanPath(req.TargetDir)
		if err != nil {
			return nil, err
		}
	}
	if req.MaxUploads <= 0 {
		return nil, snackerr.New(snackerr.KindInvalidRequest, "max uploads must be positive")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	token, err := store.GenerateShareToken()
	if err != nil {
		return nil, err
	}
	hash, err := store.HashShareToken(token)
	if err != nil {
		return nil, err
	}
	share := store.AssetShare{
		ID:          newID(),
		SiteID:      site.ID,
		TargetDir:   dir,
		TokenHash:   hash,
		AllowedExts: req.AllowedExts,
		MaxUploads:  req.MaxUploads,
		ExpiresAt:   time.Now().Add(ttl),
		CreatedBy:   req.Actor,
	}
	if err := s.store.CreateShare(ctx, share); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, store.ActivityLogEntry{
		SiteID: site.ID,
		UserID: req.Actor,
		Action: "share.create",
		Metadata: map[string]any{
			"share_id":    share.ID,
			"target_dir":  dir,
			"max_uploads": share.MaxUploads,
			"expires_at":  share.ExpiresAt,
		},
	}, nil)
	return &CreatedShare{Share: share, Token: token}, nil
}

func (s *Service) RevokeShare(ctx context.Context, shareID, actor string) error {
	share, err := s.store.GetShare(ctx, shareID)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			return snackerr.Wrap(snackerr.KindNotFound, "share not found", err)
		}
		return err
	}
	if err := s.store.RevokeShare(ctx, shareID); err != nil {
		return err
	}
	s.recordActivity(ctx, store.ActivityLogEntry{
		SiteID:   share.SiteID,
		UserID:   actor,
		Action:   "share.revoke",
		Metadata: map[string]any{"share_id": shareID},
	}, nil)
	return nil
}

type GuestUploadRequest struct {
	ShareID  string
	Token    string
	FileName string
	Content  string // base64
}

// GuestUpload accepts one anonymous upload against a share. All
// validation, the token check and the atomic count consumption happen
// before any repository write; a rejected upload never touches the
// repo.
func (s *Service) GuestUpload(ctx context.Context, req GuestUploadRequest) (*WriteResult, error) {
	share, err := s.store.GetShare(ctx, req.ShareID)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			return nil, snackerr.Wrap(snackerr.KindNotFound, "share not found", err)
		}
		return nil, err
	}
	if !store.VerifyShareToken(share.TokenHash, req.Token) {
		return nil, snackerr.New(snackerr.KindForbidden, "invalid share token")
	}
	if err := sanitize.CheckFileName(req.FileName, true); err != nil {
		return nil, err
	}
	if !sanitize.ExtAllowed(req.FileName, share.AllowedExts) {
		return nil, snackerr.Newf(snackerr.KindExtNotAllowed, "file type of %q is not accepted by this share", req.FileName)
	}
	if _, err := sanitize.DecodeContent(req.Content); err != nil {
		return nil, err
	}

	if _, err := s.store.ConsumeShareUpload(ctx, req.ShareID); err != nil {
		switch {
		case errors.Is(err, store.ErrUploadLimitReached):
			return nil, snackerr.Wrap(snackerr.KindUploadLimit, "share upload limit reached", err)
		case errors.Is(err, store.ErrShareExpired):
			return nil, snackerr.Wrap(snackerr.KindShareExpired, "share has expired", err)
		case errors.Is(err, store.ErrShareRevoked):
			return nil, snackerr.Wrap(snackerr.KindShareRevoked, "share has been revoked", err)
		}
		return nil, err
	}

	target := req.FileName
	if share.TargetDir != "" {
		target = share.TargetDir + "/" + req.FileName
	}
	return s.WriteAsset(ctx, share.SiteID, WriteRequest{
		Path:    target,
		Content: req.Content,
		Message: fmt.Sprintf("Guest upload %s", req.FileName),
		Guest:   true,
		ShareID: share.ID,
	})
}
