package storage

import (
	"sort"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// Query applies every supplied filter conjunctively, sorts and paginates.
// The default order is newest first.
func (s *Store) Query(filter models.QueryFilter) []models.ErrorRecord {
	s.mu.RLock()
	candidates := s.candidatesLocked(filter)
	matched := make([]models.ErrorRecord, 0, len(candidates))
	for _, rec := range candidates {
		if matches(rec, filter) {
			matched = append(matched, rec.Clone())
		}
	}
	s.mu.RUnlock()

	sortRecords(matched, filter.SortBy, filter.SortAsc)
	return paginate(matched, filter.Offset, filter.Limit)
}

// Recent returns records captured within the last minutes, newest first.
func (s *Store) Recent(minutes int, filter models.QueryFilter) []models.ErrorRecord {
	if minutes <= 0 {
		minutes = 60
	}
	filter.Start = s.now().Add(-time.Duration(minutes) * time.Minute)
	return s.Query(filter)
}

// candidatesLocked narrows the scan using the most selective exact-match index.
func (s *Store) candidatesLocked(filter models.QueryFilter) []*models.ErrorRecord {
	var (
		ids  map[string]struct{}
		used bool
	)
	pick := func(ix index, key string) {
		if key == "" {
			return
		}
		set := ix[key]
		if !used || len(set) < len(ids) {
			ids = set
			used = true
		}
	}
	pick(s.byWorkflow, filter.WorkflowID)
	pick(s.byUser, filter.UserID)
	pick(s.bySeverity, string(filter.Severity))
	pick(s.byType, string(filter.Type))

	if used {
		out := make([]*models.ErrorRecord, 0, len(ids))
		for id := range ids {
			out = append(out, s.records[id])
		}
		return out
	}

	lo, hi := 0, len(s.byTime)
	if !filter.Start.IsZero() {
		lo = sort.Search(len(s.byTime), func(i int) bool { return !s.byTime[i].ts.Before(filter.Start) })
	}
	if !filter.End.IsZero() {
		hi = sort.Search(len(s.byTime), func(i int) bool { return s.byTime[i].ts.After(filter.End) })
	}
	if lo > hi {
		return nil
	}
	out := make([]*models.ErrorRecord, 0, hi-lo)
	for _, entry := range s.byTime[lo:hi] {
		out = append(out, s.records[entry.id])
	}
	return out
}

func matches(rec *models.ErrorRecord, filter models.QueryFilter) bool {
	if !filter.Start.IsZero() && rec.Timestamp.Before(filter.Start) {
		return false
	}
	if !filter.End.IsZero() && rec.Timestamp.After(filter.End) {
		return false
	}
	if filter.Type != "" && rec.Type != filter.Type {
		return false
	}
	if filter.Severity != "" && rec.Severity != filter.Severity {
		return false
	}
	if filter.WorkflowID != "" && rec.Context.WorkflowID != filter.WorkflowID {
		return false
	}
	if filter.UserID != "" && rec.Context.UserID != filter.UserID {
		return false
	}
	if filter.Resolved != nil && rec.Resolved != *filter.Resolved {
		return false
	}
	return true
}

func sortRecords(records []models.ErrorRecord, field models.SortField, asc bool) {
	less := func(i, j int) bool {
		a, b := records[i], records[j]
		switch field {
		case models.SortBySeverity:
			if a.Severity.Rank() != b.Severity.Rank() {
				return a.Severity.Rank() < b.Severity.Rank()
			}
		case models.SortByType:
			if a.Type != b.Type {
				return a.Type < b.Type
			}
		}
		if a.Timestamp.Equal(b.Timestamp) {
			return a.ID < b.ID
		}
		return a.Timestamp.Before(b.Timestamp)
	}
	if asc {
		sort.SliceStable(records, less)
		return
	}
	sort.SliceStable(records, func(i, j int) bool { return less(j, i) })
}

func paginate(records []models.ErrorRecord, offset, limit int) []models.ErrorRecord {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []models.ErrorRecord{}
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

// Matches reports whether rec satisfies every filter criterion.
func Matches(rec models.ErrorRecord, filter models.QueryFilter) bool {
	return matches(&rec, filter)
}

// SortAndPage applies the filter's ordering and pagination to records.
func SortAndPage(records []models.ErrorRecord, filter models.QueryFilter) []models.ErrorRecord {
	sortRecords(records, filter.SortBy, filter.SortAsc)
	return paginate(records, filter.Offset, filter.Limit)
}
