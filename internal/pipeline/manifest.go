package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/go-github/v66/github"
)

const manifestFileName = "manifest.json"

// manifestState is a directory's manifest.json as read from the
// repository, plus the SHA used as an optimistic-concurrency token on
// write-back.
type manifestState struct {
	path  string
	sha   string
	files []string
}

type manifestDoc struct {
	Files []string `json:"files"`
}

func manifestPath(dir string) string {
	if dir == "" || dir == "." {
		return manifestFileName
	}
	return dir + "/" + manifestFileName
}

// loadManifest fetches a directory's manifest. A missing manifest is
// not an error: it returns nil, meaning the directory is not
// manifest-tracked and sync is a no-op.
func loadManifest(ctx context.Context, gh *github.Client, owner, repo, dir, branch string) (*manifestState, error) {
	p := manifestPath(dir)
	opts := &github.RepositoryContentGetOptions{Ref: branch}
	file, _, _, err := gh.Repositories.GetContents(ctx, owner, repo, p, opts)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch %s: %w", p, err)
	}
	if file == nil {
		return nil, nil
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	var doc manifestDoc
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	return &manifestState{path: p, sha: file.GetSHA(), files: doc.Files}, nil
}

// merge unions names into the manifest's file list and re-sorts it.
// Reports whether the set actually changed, so an unchanged manifest
// produces no write.
func (m *manifestState) merge(names []string) bool {
	changed := false
	for _, name := range names {
		if !slices.Contains(m.files, name) {
			m.files = append(m.files, name)
			changed = true
		}
	}
	if changed {
		slices.Sort(m.files)
	}
	return changed
}

func (m *manifestState) render() []byte {
	out, _ := json.MarshalIndent(manifestDoc{Files: m.files}, "", "  ")
	return append(out, '\n')
}

// syncManifest ensures dir's manifest lists the given file names. The
// write is guarded by the SHA read with the manifest; a stale SHA
// fails the write and the caller records it as a warning. Idempotent:
// a second call with the same inputs writes nothing.
func syncManifest(ctx context.Context, gh *github.Client, owner, repo, dir string, names []string, branch string) (bool, error) {
	m, err := loadManifest(ctx, gh, owner, repo, dir, branch)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	if !m.merge(names) {
		return false, nil
	}
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(fmt.Sprintf("Update manifest for %s", dir)),
		Content: m.render(),
		Branch:  &branch,
		SHA:     &m.sha,
	}
	if _, _, err := gh.Repositories.UpdateFile(ctx, owner, repo, m.path, opts); err != nil {
		return false, fmt.Errorf("update %s: %w", m.path, err)
	}
	return true, nil
}
