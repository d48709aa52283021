// Package storage keeps error records in memory behind secondary indices and
// optionally writes them through to a Persister.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// ErrNotFound is returned when a record id is unknown.
var ErrNotFound = errors.New("record not found")

// Persister is the durable backing store used for write-through persistence.
type Persister interface {
	SaveRecords(ctx context.Context, records []models.ErrorRecord) error
	DeleteRecords(ctx context.Context, ids []string) error
	LoadRecords(ctx context.Context) ([]models.ErrorRecord, error)
}

// Options configures a Store.
type Options struct {
	MaxRecords    int
	RetentionDays int
	Persister     Persister
	Logger        *slog.Logger
}

const (
	defaultMaxRecords    = 10000
	defaultRetentionDays = 30
)

type timeEntry struct {
	ts time.Time
	id string
}

type index map[string]map[string]struct{}

func (ix index) add(key, id string) {
	if key == "" {
		return
	}
	set, ok := ix[key]
	if !ok {
		set = make(map[string]struct{})
		ix[key] = set
	}
	set[id] = struct{}{}
}

func (ix index) remove(key, id string) {
	set, ok := ix[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix, key)
	}
}

// Store is an in-memory record store with a sorted timestamp index and
// secondary indices by fingerprint, severity, type, workflow and user.
type Store struct {
	mu            sync.RWMutex
	maxRecords    int
	retention     time.Duration
	records       map[string]*models.ErrorRecord
	sizes         map[string]int64
	totalSize     int64
	byTime        []timeEntry
	byFingerprint index
	bySeverity    index
	byType        index
	byWorkflow    index
	byUser        index

	persister Persister
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore constructs an empty Store.
func NewStore(opts Options) *Store {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = defaultMaxRecords
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = defaultRetentionDays
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Store{
		maxRecords: opts.MaxRecords,
		retention:  time.Duration(opts.RetentionDays) * 24 * time.Hour,
		persister:  opts.Persister,
		logger:     opts.Logger,
		now:        time.Now,
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.records = make(map[string]*models.ErrorRecord)
	s.sizes = make(map[string]int64)
	s.totalSize = 0
	s.byTime = nil
	s.rebuildIndicesLocked()
}

// SetLimits adjusts capacity and retention. A smaller capacity evicts immediately.
func (s *Store) SetLimits(maxRecords, retentionDays int) {
	s.mu.Lock()
	if maxRecords > 0 {
		s.maxRecords = maxRecords
	}
	if retentionDays > 0 {
		s.retention = time.Duration(retentionDays) * 24 * time.Hour
	}
	evicted := s.evictLocked()
	s.mu.Unlock()
	s.deletePersisted(context.Background(), evicted)
}

// Load replaces the in-memory contents with the persisted records.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	records, err := s.persister.LoadRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("load persisted records: %w", err)
	}
	s.mu.Lock()
	s.reset()
	for i := range records {
		s.insertLocked(records[i])
	}
	evicted := s.evictLocked()
	count := len(s.records)
	s.mu.Unlock()
	s.deletePersisted(ctx, evicted)
	return count, nil
}

// Store inserts a single record.
func (s *Store) Store(ctx context.Context, record models.ErrorRecord) error {
	return s.StoreMany(ctx, []models.ErrorRecord{record})
}

// StoreMany inserts records, evicting the oldest ones once capacity is exceeded.
// Records are persisted before they become visible, so a persistence failure
// leaves the store unchanged.
func (s *Store) StoreMany(ctx context.Context, records []models.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("store record: empty id")
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	if s.persister != nil {
		if err := s.persister.SaveRecords(ctx, records); err != nil {
			return fmt.Errorf("persist records: %w", err)
		}
	}

	s.mu.Lock()
	for _, rec := range records {
		s.insertLocked(rec)
	}
	evicted := s.evictLocked()
	s.mu.Unlock()

	s.deletePersisted(ctx, evicted)
	return nil
}

func (s *Store) insertLocked(rec models.ErrorRecord) {
	if _, exists := s.records[rec.ID]; exists {
		s.removeLocked(rec.ID)
	}
	stored := rec.Clone()
	s.records[stored.ID] = &stored
	size := estimateSize(stored)
	s.sizes[stored.ID] = size
	s.totalSize += size

	entry := timeEntry{ts: stored.Timestamp, id: stored.ID}
	pos := sort.Search(len(s.byTime), func(i int) bool {
		return entryAfter(s.byTime[i], entry)
	})
	s.byTime = append(s.byTime, timeEntry{})
	copy(s.byTime[pos+1:], s.byTime[pos:])
	s.byTime[pos] = entry

	s.indexLocked(&stored)
}

func entryAfter(a, b timeEntry) bool {
	if a.ts.Equal(b.ts) {
		return a.id > b.id
	}
	return a.ts.After(b.ts)
}

func (s *Store) indexLocked(rec *models.ErrorRecord) {
	s.byFingerprint.add(rec.Fingerprint, rec.ID)
	s.bySeverity.add(string(rec.Severity), rec.ID)
	s.byType.add(string(rec.Type), rec.ID)
	s.byWorkflow.add(rec.Context.WorkflowID, rec.ID)
	s.byUser.add(rec.Context.UserID, rec.ID)
}

func (s *Store) removeLocked(id string) bool {
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	pos := sort.Search(len(s.byTime), func(i int) bool {
		return !entryAfter(timeEntry{ts: rec.Timestamp, id: id}, s.byTime[i])
	})
	if pos < len(s.byTime) && s.byTime[pos].id == id {
		s.byTime = append(s.byTime[:pos], s.byTime[pos+1:]...)
	}
	s.byFingerprint.remove(rec.Fingerprint, id)
	s.bySeverity.remove(string(rec.Severity), id)
	s.byType.remove(string(rec.Type), id)
	s.byWorkflow.remove(rec.Context.WorkflowID, id)
	s.byUser.remove(rec.Context.UserID, id)
	s.totalSize -= s.sizes[id]
	delete(s.sizes, id)
	delete(s.records, id)
	return true
}

// evictLocked drops oldest records until the capacity bound holds.
func (s *Store) evictLocked() []string {
	var evicted []string
	for len(s.records) > s.maxRecords && len(s.byTime) > 0 {
		oldest := s.byTime[0].id
		s.removeLocked(oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

func (s *Store) rebuildIndicesLocked() {
	s.byFingerprint = make(index)
	s.bySeverity = make(index)
	s.byType = make(index)
	s.byWorkflow = make(index)
	s.byUser = make(index)
	for _, rec := range s.records {
		s.indexLocked(rec)
	}
}

func (s *Store) deletePersisted(ctx context.Context, ids []string) {
	if s.persister == nil || len(ids) == 0 {
		return
	}
	if err := s.persister.DeleteRecords(ctx, ids); err != nil {
		s.logger.Warn("persisted record delete failed", slog.Int("count", len(ids)), slog.Any("error", err))
	}
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (models.ErrorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return models.ErrorRecord{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Update merges a partial update into an existing record. Changing severity,
// type or resolution rebuilds every secondary index.
func (s *Store) Update(ctx context.Context, id string, upd models.RecordUpdate) (models.ErrorRecord, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return models.ErrorRecord{}, ErrNotFound
	}
	rebuild := upd.Apply(rec)
	if rebuild {
		s.rebuildIndicesLocked()
	}
	size := estimateSize(*rec)
	s.totalSize += size - s.sizes[id]
	s.sizes[id] = size
	out := rec.Clone()
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.SaveRecords(ctx, []models.ErrorRecord{out}); err != nil {
			return out, fmt.Errorf("persist update: %w", err)
		}
	}
	return out, nil
}

// Delete removes a record and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	removed := s.removeLocked(id)
	s.mu.Unlock()
	if removed {
		s.deletePersisted(ctx, []string{id})
	}
	return removed
}

// Cleanup deletes every record older than the retention window.
func (s *Store) Cleanup(ctx context.Context) int {
	cutoff := s.now().Add(-s.retention)
	s.mu.Lock()
	var expired []string
	for _, entry := range s.byTime {
		if !entry.ts.Before(cutoff) {
			break
		}
		expired = append(expired, entry.id)
	}
	for _, id := range expired {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	s.deletePersisted(ctx, expired)
	if len(expired) > 0 {
		s.logger.Debug("retention cleanup", slog.Int("deleted", len(expired)), slog.Time("cutoff", cutoff))
	}
	return len(expired)
}

// Stats summarises the store.
func (s *Store) Stats() models.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := models.StoreStats{Total: len(s.records), SizeBytes: s.totalSize}
	for _, rec := range s.records {
		if rec.Resolved {
			stats.Resolved++
		}
	}
	stats.Unresolved = stats.Total - stats.Resolved
	return stats
}

// Counts returns record counts per type and severity straight from the indices.
func (s *Store) Counts() (map[models.ErrorType]int, map[models.Severity]int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byType := make(map[models.ErrorType]int, len(s.byType))
	for key, ids := range s.byType {
		byType[models.ErrorType(key)] = len(ids)
	}
	bySeverity := make(map[models.Severity]int, len(s.bySeverity))
	for key, ids := range s.bySeverity {
		bySeverity[models.Severity(key)] = len(ids)
	}
	return byType, bySeverity
}

// ByFingerprint returns every record sharing a fingerprint, oldest first.
func (s *Store) ByFingerprint(fingerprint string) []models.ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byFingerprint[fingerprint]
	out := make([]models.ErrorRecord, 0, len(ids))
	for id := range ids {
		out = append(out, s.records[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Export returns every record ordered by timestamp.
func (s *Store) Export() []models.ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ErrorRecord, 0, len(s.byTime))
	for _, entry := range s.byTime {
		out = append(out, s.records[entry.id].Clone())
	}
	return out
}

// Import inserts previously exported records.
func (s *Store) Import(ctx context.Context, records []models.ErrorRecord) (int, error) {
	if err := s.StoreMany(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func estimateSize(rec models.ErrorRecord) int64 {
	size := 256 + len(rec.ID) + len(rec.Message) + len(rec.StackTrace) + len(rec.Fingerprint) + len(rec.ResolutionDetails)
	size += len(rec.Context.UserID) + len(rec.Context.WorkflowID) + len(rec.Context.NodeID) +
		len(rec.Context.ExecutionID) + len(rec.Context.OriginURL) + len(rec.Context.Version)
	for k, v := range rec.Metadata {
		size += len(k) + 16
		if str, ok := v.(string); ok {
			size += len(str)
		}
	}
	return int64(size)
}
