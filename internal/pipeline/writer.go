package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/google/go-github/v66/github"

	"github.com/staticsnack/server/internal/sanitize"
	"github.com/staticsnack/server/internal/snackerr"
	"github.com/staticsnack/server/internal/store"
)

// WriteAsset uploads or updates one file via the content API. The
// manifest update and activity entry run only after the primary write
// succeeds; failures there degrade to warnings, never roll back the
// write.
func (s *Service) WriteAsset(ctx context.Context, siteID string, req WriteRequest) (*WriteResult, error) {
	cleanPath, err := sanitize.CleanPath(req.Path)
	if err != nil {
		return nil, err
	}
	content, err := sanitize.DecodeContent(req.Content)
	if err != nil {
		return nil, err
	}
	fileName := path.Base(cleanPath)
	if err := sanitize.CheckFileName(fileName, req.Guest); err != nil {
		return nil, err
	}

	site, err := s.site(ctx, siteID)
	if err != nil {
		return nil, err
	}
	owner, repo, err := splitRepo(site.RepoFullName)
	if err != nil {
		return nil, err
	}
	gh, err := s.resolver.Resolve(ctx, site.InstallationID)
	if err != nil {
		return nil, err
	}
	branch := siteBranch(site, req.Branch)

	// A known prior hash skips the existence lookup; "not found" on the
	// lookup just means this is a create.
	sha := req.KnownSHA
	if sha == "" {
		existing, _, _, err := gh.Repositories.GetContents(ctx, owner, repo, cleanPath,
			&github.RepositoryContentGetOptions{Ref: branch})
		if err != nil && !isNotFound(err) {
			return nil, snackerr.Wrap(snackerr.KindCommitFailed, "look up current file version", err)
		}
		if existing != nil {
			sha = existing.GetSHA()
		}
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Update %s", cleanPath)
	}
	opts := &github.RepositoryContentFileOptions{
		Message: &message,
		Content: content,
		Branch:  &branch,
	}
	var resp *github.RepositoryContentResponse
	if sha == "" {
		resp, _, err = gh.Repositories.CreateFile(ctx, owner, repo, cleanPath, opts)
	} else {
		opts.SHA = &sha
		resp, _, err = gh.Repositories.UpdateFile(ctx, owner, repo, cleanPath, opts)
	}
	if err != nil {
		if isConflict(err) {
			return nil, snackerr.Wrap(snackerr.KindBranchConflict, "file changed since it was read", err)
		}
		return nil, snackerr.Wrap(snackerr.KindCommitFailed, "write file", err)
	}
	commitSHA := resp.Commit.GetSHA()

	var warnings []string
	dir := path.Dir(cleanPath)
	if dir == "." {
		dir = ""
	}
	if _, err := syncManifest(ctx, gh, owner, repo, dir, []string{fileName}, branch); err != nil {
		warnings = append(warnings, fmt.Sprintf("manifest not updated: %v", err))
	}

	if err := s.store.PutAssetVersion(ctx, store.AssetVersion{
		SiteID:    siteID,
		Path:      cleanPath,
		Checksum:  checksum(content),
		Size:      int64(len(content)),
		CommitSHA: commitSHA,
		Status:    "committed",
	}); err != nil {
		warnings = append(warnings, fmt.Sprintf("asset version not recorded: %v", err))
	}

	action := "asset.write"
	metadata := map[string]any{
		"path":       cleanPath,
		"commit_sha": commitSHA,
		"size":       len(content),
	}
	if req.Guest {
		action = "guest.upload"
		metadata["share_id"] = req.ShareID
	}
	if req.OriginalContent != "" {
		if previous, err := sanitize.DecodeContent(req.OriginalContent); err == nil {
			if d := unifiedDiff(previous, content); d != "" {
				metadata["diff"] = d
			}
		}
	}
	warnings = s.recordActivity(ctx, store.ActivityLogEntry{
		SiteID:   siteID,
		UserID:   req.Actor,
		Action:   action,
		Metadata: metadata,
	}, warnings)

	url := resp.Commit.GetHTMLURL()
	if url == "" {
		url = commitURL(site.RepoFullName, commitSHA)
	}
	return &WriteResult{
		CommitSHA: commitSHA,
		CommitURL: url,
		Path:      cleanPath,
		Warnings:  warnings,
	}, nil
}
