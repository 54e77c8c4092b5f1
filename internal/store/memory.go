package store

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps everything in-process. Used for development and
// as the reference implementation in tests.
type memoryStore struct {
	mu       sync.RWMutex
	clock    func() time.Time
	sites    map[string]Site
	shares   map[string]AssetShare
	activity map[string][]ActivityLogEntry // newest first
	versions map[string][]AssetVersion     // keyed siteID + "\x00" + path, newest first
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return newMemoryStore(time.Now)
}

func newMemoryStore(clock func() time.Time) *memoryStore {
	return &memoryStore{
		clock:    clock,
		sites:    make(map[string]Site),
		shares:   make(map[string]AssetShare),
		activity: make(map[string][]ActivityLogEntry),
		versions: make(map[string][]AssetVersion),
	}
}

func (s *memoryStore) GetSite(_ context.Context, id string) (Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return Site{}, &NotFoundError{Resource: "site", Key: id}
	}
	return site, nil
}

func (s *memoryStore) PutSite(_ context.Context, site Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if site.CreatedAt.IsZero() {
		site.CreatedAt = s.clock()
	}
	s.sites[site.ID] = site
	return nil
}

func (s *memoryStore) CreateShare(_ context.Context, share AssetShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if share.CreatedAt.IsZero() {
		share.CreatedAt = s.clock()
	}
	s.shares[share.ID] = share
	return nil
}

func (s *memoryStore) GetShare(_ context.Context, id string) (AssetShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	share, ok := s.shares[id]
	if !ok {
		return AssetShare{}, &NotFoundError{Resource: "share", Key: id}
	}
	return share, nil
}

func (s *memoryStore) ConsumeShareUpload(_ context.Context, id string) (AssetShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	share, ok := s.shares[id]
	if !ok {
		return AssetShare{}, &NotFoundError{Resource: "share", Key: id}
	}
	if err := shareLive(share, s.clock()); err != nil {
		return AssetShare{}, err
	}
	share.UploadCount++
	s.shares[id] = share
	return share, nil
}

func (s *memoryStore) RevokeShare(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	share, ok := s.shares[id]
	if !ok {
		return &NotFoundError{Resource: "share", Key: id}
	}
	share.Revoked = true
	s.shares[id] = share
	return nil
}

func (s *memoryStore) AppendActivity(_ context.Context, entry ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock()
	}
	s.activity[entry.SiteID] = append([]ActivityLogEntry{entry}, s.activity[entry.SiteID]...)
	return nil
}

func (s *memoryStore) ListActivity(_ context.Context, siteID string, limit int) ([]ActivityLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.activity[siteID]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]ActivityLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *memoryStore) PutAssetVersion(_ context.Context, v AssetVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.clock()
	}
	key := v.SiteID + "\x00" + v.Path
	s.versions[key] = append([]AssetVersion{v}, s.versions[key]...)
	return nil
}

func (s *memoryStore) ListAssetVersions(_ context.Context, siteID, path string) ([]AssetVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.versions[siteID+"\x00"+path]
	out := make([]AssetVersion, len(versions))
	copy(out, versions)
	return out, nil
}

// shareLive checks revocation, expiry and the upload cap.
func shareLive(share AssetShare, now time.Time) error {
	if share.Revoked {
		return ErrShareRevoked
	}
	if !share.ExpiresAt.IsZero() && now.After(share.ExpiresAt) {
		return ErrShareExpired
	}
	if share.MaxUploads > 0 && share.UploadCount >= share.MaxUploads {
		return ErrUploadLimitReached
	}
	return nil
}
