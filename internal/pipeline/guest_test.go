package pipeline

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/staticsnack/server/internal/snackerr"
	"github.com/staticsnack/server/internal/store"
)

func createTestShare(t *testing.T, svc *Service, req CreateShareRequest) *CreatedShare {
	t.Helper()
	created, err := svc.CreateShare(context.Background(), "site1", req)
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}
	return created
}

func TestCreateShare(t *testing.T) {
	svc, st, _, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) { notFound(w) })

	created := createTestShare(t, svc, CreateShareRequest{
		TargetDir:   "uploads",
		AllowedExts: []string{"jpg", "png"},
		MaxUploads:  3,
		TTL:         time.Hour,
		Actor:       "alice",
	})
	if created.Token == "" {
		t.Fatal("clear token must be returned once")
	}
	stored, err := st.GetShare(context.Background(), created.Share.ID)
	if err != nil {
		t.Fatalf("GetShare: %v", err)
	}
	if !store.VerifyShareToken(stored.TokenHash, created.Token) {
		t.Fatal("stored hash does not match issued token")
	}
	if stored.TargetDir != "uploads" || stored.MaxUploads != 3 {
		t.Fatalf("share: %+v", stored)
	}
}

func TestGuestUpload_happyPath(t *testing.T) {
	svc, _, _, reqs := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			notFound(w)
		case http.MethodPut:
			w.Write([]byte(`{"content":{"sha":"f1"},"commit":{"sha":"cg1"}}`))
		default:
			notFound(w)
		}
	})
	created := createTestShare(t, svc, CreateShareRequest{
		TargetDir: "uploads", AllowedExts: []string{"jpg"}, MaxUploads: 2, TTL: time.Hour,
	})

	res, err := svc.GuestUpload(context.Background(), GuestUploadRequest{
		ShareID:  created.Share.ID,
		Token:    created.Token,
		FileName: "photo.jpg",
		Content:  b64("jpegbytes"),
	})
	if err != nil {
		t.Fatalf("GuestUpload: %v", err)
	}
	if res.Path != "uploads/photo.jpg" || res.CommitSHA != "cg1" {
		t.Fatalf("result: %+v", res)
	}
	if reqs.count("PUT", "/repos/acme/site/contents/uploads/photo.jpg") != 1 {
		t.Fatalf("requests: %v", reqs.reqs)
	}
}

func TestGuestUpload_overLimitNoRepoWrite(t *testing.T) {
	svc, st, _, reqs := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no repository write may happen at the limit")
		notFound(w)
	})
	created := createTestShare(t, svc, CreateShareRequest{
		TargetDir: "uploads", MaxUploads: 1, TTL: time.Hour,
	})
	// Exhaust the single slot directly.
	if _, err := st.ConsumeShareUpload(context.Background(), created.Share.ID); err != nil {
		t.Fatal(err)
	}

	_, err := svc.GuestUpload(context.Background(), GuestUploadRequest{
		ShareID:  created.Share.ID,
		Token:    created.Token,
		FileName: "photo.jpg",
		Content:  b64("x"),
	})
	if !snackerr.IsKind(err, snackerr.KindUploadLimit) {
		t.Fatalf("expected upload_limit_reached, got %v", err)
	}
	if reqs.total() != 0 {
		t.Errorf("provider was called: %v", reqs.reqs)
	}
}

func TestGuestUpload_badToken(t *testing.T) {
	svc, _, _, reqs := newTestService(t, func(w http.ResponseWriter, r *http.Request) { notFound(w) })
	created := createTestShare(t, svc, CreateShareRequest{TargetDir: "u", MaxUploads: 1, TTL: time.Hour})

	_, err := svc.GuestUpload(context.Background(), GuestUploadRequest{
		ShareID:  created.Share.ID,
		Token:    "forged",
		FileName: "a.jpg",
		Content:  b64("x"),
	})
	if !snackerr.IsKind(err, snackerr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if reqs.total() != 0 {
		t.Error("forged token must not reach the provider")
	}
}

func TestGuestUpload_disallowedExtensionAndHiddenName(t *testing.T) {
	svc, _, _, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) { notFound(w) })
	created := createTestShare(t, svc, CreateShareRequest{
		TargetDir: "u", AllowedExts: []string{"jpg"}, MaxUploads: 5, TTL: time.Hour,
	})

	_, err := svc.GuestUpload(context.Background(), GuestUploadRequest{
		ShareID: created.Share.ID, Token: created.Token, FileName: "run.exe", Content: b64("x"),
	})
	if !snackerr.IsKind(err, snackerr.KindExtNotAllowed) {
		t.Fatalf("exe: got %v", err)
	}

	_, err = svc.GuestUpload(context.Background(), GuestUploadRequest{
		ShareID: created.Share.ID, Token: created.Token, FileName: ".htaccess", Content: b64("x"),
	})
	if !snackerr.IsKind(err, snackerr.KindInvalidFileName) {
		t.Fatalf("hidden: got %v", err)
	}

	// Rejections consume no upload slots.
	stored, _ := svc.store.GetShare(context.Background(), created.Share.ID)
	if stored.UploadCount != 0 {
		t.Fatalf("upload count: %d", stored.UploadCount)
	}
}

func TestGuestUpload_revokedShare(t *testing.T) {
	svc, _, _, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) { notFound(w) })
	created := createTestShare(t, svc, CreateShareRequest{TargetDir: "u", MaxUploads: 5, TTL: time.Hour})
	if err := svc.RevokeShare(context.Background(), created.Share.ID, "alice"); err != nil {
		t.Fatalf("RevokeShare: %v", err)
	}

	_, err := svc.GuestUpload(context.Background(), GuestUploadRequest{
		ShareID: created.Share.ID, Token: created.Token, FileName: "a.txt", Content: b64("x"),
	})
	if !snackerr.IsKind(err, snackerr.KindShareRevoked) {
		t.Fatalf("expected share_revoked, got %v", err)
	}
}

func TestGuestUpload_unknownShare(t *testing.T) {
	svc, _, _, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) { notFound(w) })
	_, err := svc.GuestUpload(context.Background(), GuestUploadRequest{
		ShareID: "nope", Token: "t", FileName: "a.txt", Content: b64("x"),
	})
	if !snackerr.IsKind(err, snackerr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}
