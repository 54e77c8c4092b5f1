package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T) *redisStore {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)
	s, err := NewRedisStore(RedisConfig{Addr: mini.Addr()})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return s.(*redisStore)
}

func TestRedisStore_Sites(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	var nf *NotFoundError
	if _, err := s.GetSite(ctx, "missing"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	site := Site{ID: "s1", RepoFullName: "acme/site", DefaultBranch: "main", InstallationID: 42}
	if err := s.PutSite(ctx, site); err != nil {
		t.Fatalf("PutSite: %v", err)
	}
	got, err := s.GetSite(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if got.RepoFullName != "acme/site" || got.DefaultBranch != "main" {
		t.Fatalf("GetSite: %+v", got)
	}
}

func TestRedisStore_ConsumeShareUpload(t *testing.T) {
	s := newTestRedisStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }
	ctx := context.Background()

	share := AssetShare{ID: "sh1", SiteID: "s1", MaxUploads: 2, ExpiresAt: now.Add(time.Hour)}
	if err := s.CreateShare(ctx, share); err != nil {
		t.Fatalf("CreateShare: %v", err)
	}

	got, err := s.ConsumeShareUpload(ctx, "sh1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.UploadCount != 1 {
		t.Fatalf("count %d", got.UploadCount)
	}
	if _, err := s.ConsumeShareUpload(ctx, "sh1"); err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if _, err := s.ConsumeShareUpload(ctx, "sh1"); !errors.Is(err, ErrUploadLimitReached) {
		t.Fatalf("over limit: got %v", err)
	}

	// The stored share reflects the increments.
	stored, err := s.GetShare(ctx, "sh1")
	if err != nil {
		t.Fatalf("GetShare: %v", err)
	}
	if stored.UploadCount != 2 {
		t.Fatalf("stored count %d", stored.UploadCount)
	}
}

func TestRedisStore_ConsumeShareUpload_expired(t *testing.T) {
	s := newTestRedisStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }
	ctx := context.Background()

	share := AssetShare{ID: "old", MaxUploads: 5, ExpiresAt: now.Add(-time.Second)}
	if err := s.CreateShare(ctx, share); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ConsumeShareUpload(ctx, "old"); !errors.Is(err, ErrShareExpired) {
		t.Fatalf("expired: got %v", err)
	}
}

func TestRedisStore_ActivityOrderAndLimit(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	for _, action := range []string{"a", "b", "c"} {
		if err := s.AppendActivity(ctx, ActivityLogEntry{SiteID: "s1", Action: action}); err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}
	entries, err := s.ListActivity(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "c" || entries[1].Action != "b" {
		t.Fatalf("entries: %+v", entries)
	}

	all, err := s.ListActivity(ctx, "s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all: %d", len(all))
	}
}

func TestRedisStore_AssetVersions(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	if err := s.PutAssetVersion(ctx, AssetVersion{SiteID: "s1", Path: "a.md", Checksum: "c1", CommitSHA: "sha1", Status: "committed"}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutAssetVersion(ctx, AssetVersion{SiteID: "s1", Path: "a.md", Checksum: "c2", CommitSHA: "sha2", Status: "committed"}); err != nil {
		t.Fatal(err)
	}
	versions, err := s.ListAssetVersions(ctx, "s1", "a.md")
	if err != nil {
		t.Fatalf("ListAssetVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].CommitSHA != "sha2" {
		t.Fatalf("versions: %+v", versions)
	}
}

func TestShareToken_roundTrip(t *testing.T) {
	token, err := GenerateShareToken()
	if err != nil {
		t.Fatalf("GenerateShareToken: %v", err)
	}
	hash, err := HashShareToken(token)
	if err != nil {
		t.Fatalf("HashShareToken: %v", err)
	}
	if !VerifyShareToken(hash, token) {
		t.Fatal("token should verify against its own hash")
	}
	if VerifyShareToken(hash, "wrong") {
		t.Fatal("wrong token must not verify")
	}
}
