// Package pipeline implements the batched commit pipeline: single-file
// asset writes, manifest synchronization, atomic multi-file commits via
// the Git Data API, guest share uploads and activity recording.
package pipeline

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"

	"github.com/staticsnack/server/internal/snackerr"
	"github.com/staticsnack/server/internal/store"
)

// CredentialResolver exchanges an installation id for a scoped GitHub
// client. Implemented by *ghapp.Resolver; inject a fake in tests.
type CredentialResolver interface {
	Resolve(ctx context.Context, installationID int64) (*github.Client, error)
}

type Service struct {
	store    store.Store
	resolver CredentialResolver
}

func NewService(st store.Store, resolver CredentialResolver) *Service {
	return &Service{store: st, resolver: resolver}
}

// PendingChange is one in-browser edit awaiting publication. Content
// arrives base64-encoded from the editing UI; OriginalContent, when
// present, is used only to record a diff in the activity feed.
type PendingChange struct {
	RepoPath        string `json:"repoPath"`
	Content         string `json:"content"`
	OriginalContent string `json:"originalContent,omitempty"`
	FileName        string `json:"fileName,omitempty"`
}

type WriteRequest struct {
	Path            string
	Content         string // base64
	OriginalContent string // base64, optional
	Message         string
	Branch          string
	KnownSHA        string
	Actor           string

	// Guest marks share-originated uploads: stricter filename rules,
	// guest activity action. Set by GuestUpload only.
	Guest   bool
	ShareID string
}

type WriteResult struct {
	CommitSHA string   `json:"commit_sha"`
	CommitURL string   `json:"commit_url"`
	Path      string   `json:"path"`
	Warnings  []string `json:"warnings,omitempty"`
}

type BatchRequest struct {
	Message string
	Branch  string
	Changes []PendingChange
	Actor   string
}

type BatchResult struct {
	CommitSHA      string   `json:"commit_sha"`
	CommitURL      string   `json:"commit_url"`
	FilesCommitted []string `json:"files_committed"`
	BatchID        string   `json:"batch_id"`
	Warnings       []string `json:"warnings,omitempty"`
}

func (s *Service) site(ctx context.Context, siteID string) (store.Site, error) {
	site, err := s.store.GetSite(ctx, siteID)
	if err != nil {
		var nf *store.NotFoundError
		if errors.As(err, &nf) {
			return store.Site{}, snackerr.Wrap(snackerr.KindNotFound, "site not found", err)
		}
		return store.Site{}, err
	}
	return site, nil
}

// splitRepo splits "owner/repo" into its parts.
func splitRepo(fullName string) (string, string, error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", snackerr.Newf(snackerr.KindInvalidRequest, "malformed repository name %q", fullName)
	}
	return owner, repo, nil
}

func siteBranch(site store.Site, override string) string {
	if override != "" {
		return override
	}
	if site.DefaultBranch != "" {
		return site.DefaultBranch
	}
	return "main"
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func commitURL(repoFullName, sha string) string {
	return fmt.Sprintf("https://github.com/%s/commit/%s", repoFullName, sha)
}

func newID() string {
	raw := make([]byte, 8)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// isConflict covers both content-API SHA mismatches (409) and
// non-fast-forward ref updates (422).
func isConflict(err error) bool {
	var ghErr *github.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}
	code := ghErr.Response.StatusCode
	return code == http.StatusConflict || code == http.StatusUnprocessableEntity
}
