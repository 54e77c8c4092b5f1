package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"slices"

	"github.com/google/go-github/v66/github"

	"github.com/staticsnack/server/internal/sanitize"
	"github.com/staticsnack/server/internal/snackerr"
	"github.com/staticsnack/server/internal/store"
)

// maxCommitAttempts bounds rebase-and-retry when the branch moves
// between reading the base tree and updating the ref. Blobs are
// content-addressed, so retries reuse them instead of re-uploading.
const maxCommitAttempts = 3

// batchChange is a sanitized pending change ready for blob creation.
type batchChange struct {
	path    string
	content []byte
}

// CommitBatch publishes N pending changes as one atomic commit. The
// branch ref is the commit point: nothing is visible before the ref
// update, and the entire batch is visible after it. Any failure before
// the ref update leaves the branch untouched.
func (s *Service) CommitBatch(ctx context.Context, siteID string, req BatchRequest) (*BatchResult, error) {
	if len(req.Changes) == 0 {
		return nil, snackerr.New(snackerr.KindInvalidRequest, "batch contains no changes")
	}
	if req.Message == "" {
		return nil, snackerr.New(snackerr.KindInvalidRequest, "commit message is required")
	}

	// Sanitize every change before any network call. Duplicate paths in
	// one batch take the last writer's content.
	var order []string
	byPath := make(map[string]batchChange)
	for _, change := range req.Changes {
		p, err := sanitize.CleanPath(change.RepoPath)
		if err != nil {
			return nil, err
		}
		content, err := sanitize.DecodeContent(change.Content)
		if err != nil {
			return nil, err
		}
		if err := sanitize.CheckFileName(path.Base(p), false); err != nil {
			return nil, err
		}
		if _, seen := byPath[p]; !seen {
			order = append(order, p)
		}
		byPath[p] = batchChange{path: p, content: content}
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

	// One blob per change, created once: content addressing makes them
	// reusable across ref-conflict retries.
	fileEntries := make([]*github.TreeEntry, 0, len(order))
	for _, p := range order {
		change := byPath[p]
		blob, _, err := gh.Git.CreateBlob(ctx, owner, repo, &github.Blob{
			Content:  github.String(base64.StdEncoding.EncodeToString(change.content)),
			Encoding: github.String("base64"),
		})
		if err != nil {
			return nil, snackerr.Wrap(snackerr.KindCommitFailed, fmt.Sprintf("create blob for %s", p), err)
		}
		fileEntries = append(fileEntries, &github.TreeEntry{
			Path: github.String(p),
			Mode: github.String("100644"),
			Type: github.String("blob"),
			SHA:  blob.SHA,
		})
	}

	namesByDir := groupNamesByDir(order)

	var (
		commitSHA string
		warnings  []string
	)
	for attempt := 1; ; attempt++ {
		ref, _, err := gh.Git.GetRef(ctx, owner, repo, "heads/"+branch)
		if err != nil {
			return nil, snackerr.Wrap(snackerr.KindCommitFailed, fmt.Sprintf("read branch %s", branch), err)
		}
		headSHA := ref.Object.GetSHA()
		baseCommit, _, err := gh.Git.GetCommit(ctx, owner, repo, headSHA)
		if err != nil {
			return nil, snackerr.Wrap(snackerr.KindCommitFailed, "read head commit", err)
		}

		// Manifest updates land in the same tree, not a later commit.
		// They are re-read each attempt since a moved ref may have
		// changed them. Best-effort: a broken manifest never blocks the
		// batch.
		entries := fileEntries
		manifestEntries, manifestWarnings := s.manifestTreeEntries(ctx, gh, owner, repo, namesByDir, branch)
		entries = append(entries, manifestEntries...)
		warnings = manifestWarnings

		tree, _, err := gh.Git.CreateTree(ctx, owner, repo, baseCommit.GetTree().GetSHA(), entries)
		if err != nil {
			return nil, snackerr.Wrap(snackerr.KindCommitFailed, "create tree", err)
		}
		commit, _, err := gh.Git.CreateCommit(ctx, owner, repo, &github.Commit{
			Message: github.String(req.Message),
			Tree:    tree,
			Parents: []*github.Commit{{SHA: github.String(headSHA)}},
		}, nil)
		if err != nil {
			return nil, snackerr.Wrap(snackerr.KindCommitFailed, "create commit", err)
		}

		// Fast-forward only: force would rewrite history.
		_, _, err = gh.Git.UpdateRef(ctx, owner, repo, &github.Reference{
			Ref:    github.String("refs/heads/" + branch),
			Object: &github.GitObject{SHA: commit.SHA},
		}, false)
		if err == nil {
			commitSHA = commit.GetSHA()
			break
		}
		if !isConflict(err) {
			return nil, snackerr.Wrap(snackerr.KindCommitFailed, "update branch ref", err)
		}
		if attempt >= maxCommitAttempts {
			return nil, snackerr.Wrap(snackerr.KindBranchConflict,
				fmt.Sprintf("branch %s moved during the batch; gave up after %d attempts", branch, attempt), err)
		}
	}

	batchID := newID()
	for _, p := range order {
		change := byPath[p]
		if err := s.store.PutAssetVersion(ctx, store.AssetVersion{
			SiteID:    siteID,
			Path:      p,
			Checksum:  checksum(change.content),
			Size:      int64(len(change.content)),
			CommitSHA: commitSHA,
			BatchID:   batchID,
			Status:    "committed",
		}); err != nil {
			warnings = append(warnings, fmt.Sprintf("asset version for %s not recorded: %v", p, err))
		}
	}

	warnings = s.recordActivity(ctx, store.ActivityLogEntry{
		SiteID: siteID,
		UserID: req.Actor,
		Action: "batch.commit",
		Metadata: map[string]any{
			"commit_sha": commitSHA,
			"message":    req.Message,
			"file_count": len(order),
			"files":      order,
			"batch_id":   batchID,
		},
	}, warnings)

	return &BatchResult{
		CommitSHA:      commitSHA,
		CommitURL:      commitURL(site.RepoFullName, commitSHA),
		FilesCommitted: order,
		BatchID:        batchID,
		Warnings:       warnings,
	}, nil
}

// manifestTreeEntries synthesizes one blob + tree entry per directory
// whose manifest exists and is missing any of the batch's new names.
func (s *Service) manifestTreeEntries(ctx context.Context, gh *github.Client, owner, repo string, namesByDir map[string][]string, branch string) ([]*github.TreeEntry, []string) {
	var entries []*github.TreeEntry
	var warnings []string
	for dir, names := range namesByDir {
		// A batch that writes the manifest itself wins over synthesis.
		if slices.Contains(names, manifestFileName) {
			continue
		}
		m, err := loadManifest(ctx, gh, owner, repo, dir, branch)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("manifest for %q not updated: %v", dir, err))
			continue
		}
		if m == nil || !m.merge(names) {
			continue
		}
		blob, _, err := gh.Git.CreateBlob(ctx, owner, repo, &github.Blob{
			Content:  github.String(base64.StdEncoding.EncodeToString(m.render())),
			Encoding: github.String("base64"),
		})
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("manifest for %q not updated: %v", dir, err))
			continue
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.String(m.path),
			Mode: github.String("100644"),
			Type: github.String("blob"),
			SHA:  blob.SHA,
		})
	}
	return entries, warnings
}

func groupNamesByDir(paths []string) map[string][]string {
	byDir := make(map[string][]string)
	for _, p := range paths {
		dir := path.Dir(p)
		if dir == "." {
			dir = ""
		}
		byDir[dir] = append(byDir[dir], path.Base(p))
	}
	return byDir
}
