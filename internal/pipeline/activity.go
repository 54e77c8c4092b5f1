package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/staticsnack/server/internal/store"
)

// recordActivity appends an audit entry. Activity logging is
// best-effort observability: a failed insert becomes a warning on the
// caller's result, never a failure of the write itself.
func (s *Service) recordActivity(ctx context.Context, entry store.ActivityLogEntry, warnings []string) []string {
	if err := s.store.AppendActivity(ctx, entry); err != nil {
		log.Printf("[snack] activity append failed for site %s: %v", entry.SiteID, err)
		return append(warnings, fmt.Sprintf("activity log entry not recorded: %v", err))
	}
	return warnings
}

// Activity returns the most recent audit entries for a site.
func (s *Service) Activity(ctx context.Context, siteID string, limit int) ([]store.ActivityLogEntry, error) {
	if _, err := s.site(ctx, siteID); err != nil {
		return nil, err
	}
	return s.store.ListActivity(ctx, siteID, limit)
}
