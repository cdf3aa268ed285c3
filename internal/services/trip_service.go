package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tripstats/internal/aggregate"
	"tripstats/internal/amqp"
	"tripstats/internal/cache"
	"tripstats/internal/core"
	"tripstats/internal/extract"
	applog "tripstats/internal/log"
	"tripstats/internal/trips"
)

// ErrNotFound is returned by car and driver lookups without a match.
var ErrNotFound = errors.New("not found")

// Outcome is the per-file result of an upload.
type Outcome string

const (
	OutcomeAdded       Outcome = "added"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeUnparseable Outcome = "unparseable"
	OutcomeFailed      Outcome = "failed"
	OutcomeRejected    Outcome = "rejected"
)

// Publisher announces changes of a user's trip collection.
type Publisher interface {
	Publish(ctx context.Context, event *amqp.TripEvent) error
}

// Upload is one named workbook received from a user.
type Upload struct {
	Name string
	Data []byte
}

// FileResult reports what happened to one upload.
type FileResult struct {
	File     string  `json:"file"`
	Outcome  Outcome `json:"outcome"`
	Records  int     `json:"records"`
	Inserted int     `json:"inserted"`
	Dropped  int     `json:"dropped"`
	Message  string  `json:"message,omitempty"`
}

// IngestReport summarises one upload request.
type IngestReport struct {
	Files        []FileResult `json:"files"`
	Added        int          `json:"added"`
	TotalRecords int          `json:"total_records"`
}

// TripServiceConfig tunes ingestion and queries.
type TripServiceConfig struct {
	Layout      extract.Layout
	Concurrency int
	TopN        int
	CacheSize   int
	CacheTTL    time.Duration
}

// DefaultTripServiceConfig returns the trip invoice layout with default limits.
func DefaultTripServiceConfig() TripServiceConfig {
	return TripServiceConfig{
		Layout:      extract.TripInvoiceLayout(),
		Concurrency: 4,
		TopN:        aggregate.DefaultTopN,
		CacheSize:   256,
		CacheTTL:    5 * time.Minute,
	}
}

// TripService ingests invoices into a trips.Store and answers summary
// queries. Summaries are cached per user and dropped on every change.
type TripService struct {
	store     trips.Store
	publisher Publisher
	config    TripServiceConfig
	summaries *cache.LRUCache[core.Summary]
	log       *applog.StructuredLogger

	// generations counts changes per user; a summary is cached only if
	// no change happened while it was being computed.
	mu          sync.Mutex
	generations map[int64]uint64
}

// NewTripService wires a store and an optional event publisher.
func NewTripService(store trips.Store, publisher Publisher, config TripServiceConfig, logger *applog.Logger) *TripService {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.TopN < 1 {
		config.TopN = aggregate.DefaultTopN
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &TripService{
		store:     store,
		publisher: publisher,
		config:    config,
		summaries: cache.NewLRUCache[core.Summary](config.CacheSize, config.CacheTTL),
		log:       applog.NewStructuredLogger(logger.WithComponent(applog.ComponentIngest)),

		generations: make(map[int64]uint64),
	}
}

// SummaryCache exposes the summary cache for periodic expiry.
func (s *TripService) SummaryCache() cache.Cleaner {
	return s.summaries
}

// AcceptsUpload reports whether a file name looks like an xlsx workbook.
func AcceptsUpload(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".xlsx")
}

type parsed struct {
	result extract.Result
	err    error
}

// Ingest extracts every upload in parallel and appends the results to
// the user's collection in upload order. Per-file problems are reported
// in the FileResult; the returned error is reserved for an invalid user
// or a cancelled context.
func (s *TripService) Ingest(ctx context.Context, userID int64, uploads []Upload) (IngestReport, error) {
	if err := trips.CheckUser(userID); err != nil {
		return IngestReport{}, err
	}

	known, err := s.store.DistinctFiles(ctx, userID)
	if err != nil {
		return IngestReport{}, fmt.Errorf("list ingested files: %w", err)
	}
	seen := make(map[string]bool, len(known))
	for _, f := range known {
		seen[f] = true
	}

	results := make([]parsed, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, u := range uploads {
		if !AcceptsUpload(u.Name) || seen[u.Name] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := extract.ParseWorkbook(u.Data, u.Name, s.config.Layout)
			results[i] = parsed{result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IngestReport{}, err
	}

	report := IngestReport{Files: make([]FileResult, 0, len(uploads))}
	var added []string
	for i, u := range uploads {
		fr := s.appendOne(ctx, userID, u, seen, results[i])
		if fr.Outcome == OutcomeAdded {
			report.Added += fr.Inserted
			added = append(added, fr.File)
			seen[fr.File] = true
		}
		s.log.LogFileIngested(ctx, userID, fr.File, string(fr.Outcome), fr.Records, fr.Inserted, fr.Dropped)
		report.Files = append(report.Files, fr)
	}

	if len(added) > 0 {
		s.invalidate(userID)
		s.publish(ctx, amqp.NewTripEvent(amqp.EventTripsIngested, userID, added, report.Added))
	}

	records, err := s.store.List(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("count records: %w", err)
	}
	report.TotalRecords = len(records)
	return report, nil
}

func (s *TripService) appendOne(ctx context.Context, userID int64, u Upload, seen map[string]bool, p parsed) FileResult {
	fr := FileResult{File: u.Name}
	switch {
	case !AcceptsUpload(u.Name):
		fr.Outcome = OutcomeRejected
		fr.Message = "only .xlsx workbooks are accepted"
		return fr
	case seen[u.Name]:
		fr.Outcome = OutcomeDuplicate
		fr.Message = "already processed, skipped"
		return fr
	}

	fr.Records = len(p.result.Records)
	fr.Dropped = p.result.Stats.Dropped()
	switch {
	case errors.Is(p.err, extract.ErrUnreadableWorkbook):
		slog.WarnContext(ctx, "Unreadable workbook", "user_id", userID, "source_file", u.Name, "error", p.err)
		fr.Outcome = OutcomeFailed
		fr.Message = "could not read this file"
		return fr
	case p.err != nil || fr.Records == 0:
		fr.Outcome = OutcomeUnparseable
		fr.Message = "could not extract data from this file"
		return fr
	}

	n, err := s.store.Append(ctx, userID, p.result.Records)
	switch {
	case errors.Is(err, trips.ErrDuplicateFile):
		fr.Outcome = OutcomeDuplicate
		fr.Message = "already processed, skipped"
	case err != nil:
		s.log.LogError(ctx, "Failed to store trip records", err, applog.ComponentStorage, applog.OpAppend,
			applog.NewFields().WithFile(userID, u.Name))
		fr.Outcome = OutcomeFailed
		fr.Message = "could not store the records"
	default:
		fr.Outcome = OutcomeAdded
		fr.Inserted = n
	}
	return fr
}

// Records returns the user's records in insertion order.
func (s *TripService) Records(ctx context.Context, userID int64) ([]core.TripRecord, error) {
	if err := trips.CheckUser(userID); err != nil {
		return nil, err
	}
	return s.store.List(ctx, userID)
}

// Summary aggregates the user's collection.
func (s *TripService) Summary(ctx context.Context, userID int64) (core.Summary, error) {
	if err := trips.CheckUser(userID); err != nil {
		return core.Summary{}, err
	}
	key := cacheKey(userID)
	if sum, ok := s.summaries.Get(key); ok {
		return sum, nil
	}
	gen := s.generation(userID)
	records, err := s.store.List(ctx, userID)
	if err != nil {
		return core.Summary{}, fmt.Errorf("list records: %w", err)
	}
	sum := aggregate.Aggregate(records)

	s.mu.Lock()
	if s.generations[userID] == gen {
		s.summaries.Set(key, sum)
	}
	s.mu.Unlock()
	return sum, nil
}

// Top ranks cars and drivers by total amount. n <= 0 uses the configured default.
func (s *TripService) Top(ctx context.Context, userID int64, n int) (core.Ranking, error) {
	sum, err := s.Summary(ctx, userID)
	if err != nil {
		return core.Ranking{}, err
	}
	if n <= 0 {
		n = s.config.TopN
	}
	return aggregate.Top(sum, n), nil
}

func (s *TripService) Car(ctx context.Context, userID int64, plate string) (core.CarSummary, error) {
	sum, err := s.Summary(ctx, userID)
	if err != nil {
		return core.CarSummary{}, err
	}
	car, ok := aggregate.FindCar(sum, plate)
	if !ok {
		return core.CarSummary{}, fmt.Errorf("car %q: %w", plate, ErrNotFound)
	}
	return car, nil
}

func (s *TripService) Driver(ctx context.Context, userID int64, name string) (core.DriverSummary, error) {
	sum, err := s.Summary(ctx, userID)
	if err != nil {
		return core.DriverSummary{}, err
	}
	d, ok := aggregate.FindDriver(sum, name)
	if !ok {
		return core.DriverSummary{}, fmt.Errorf("driver %q: %w", name, ErrNotFound)
	}
	return d, nil
}

// Files lists the user's ingested files in first-ingest order.
func (s *TripService) Files(ctx context.Context, userID int64) ([]string, error) {
	if err := trips.CheckUser(userID); err != nil {
		return nil, err
	}
	files, err := s.store.DistinctFiles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []string{}
	}
	return files, nil
}

// Clear removes the user's collection and returns the number of removed records.
func (s *TripService) Clear(ctx context.Context, userID int64) (int, error) {
	if err := trips.CheckUser(userID); err != nil {
		return 0, err
	}
	n, err := s.store.Clear(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear records: %w", err)
	}
	s.invalidate(userID)
	if n > 0 {
		s.publish(ctx, amqp.NewTripEvent(amqp.EventTripsCleared, userID, nil, n))
	}
	return n, nil
}

func (s *TripService) generation(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

func (s *TripService) invalidate(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[userID]++
	s.summaries.Delete(cacheKey(userID))
}

// publish never fails the caller; the records are already stored.
func (s *TripService) publish(ctx context.Context, event *amqp.TripEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping event", applog.FieldEventType, event.Type)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish trip event",
			applog.FieldOperation, applog.OpPublish,
			applog.FieldEventType, event.Type,
			applog.FieldMessageID, event.ID,
			applog.FieldUserID, event.UserID,
			applog.FieldError, err)
	}
}

func cacheKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
