// Package app implements the streak compute service: cached projection
// reads, stepwise explanations, and bounded-concurrency batch refreshes.
package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	platformerrors "github.com/morningpages/streakd/internal/platform/errors"
	"github.com/morningpages/streakd/internal/platform/timeouts"
	"github.com/morningpages/streakd/internal/services/streak/domain/boundary"
	"github.com/morningpages/streakd/internal/services/streak/domain/calendar"
	"github.com/morningpages/streakd/internal/services/streak/domain/event"
	"github.com/morningpages/streakd/internal/services/streak/domain/explain"
	"github.com/morningpages/streakd/internal/services/streak/domain/projection"
	"github.com/morningpages/streakd/internal/services/streak/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	// eventPageSize bounds each journal read while folding.
	eventPageSize = 200
	// maxIncrementalLag caps how far behind a cached projection may be
	// before the service folds the journal from scratch instead.
	maxIncrementalLag = 10_000
	// batchConcurrency bounds parallel per-user computes in a batch.
	batchConcurrency = 15
)

// Service computes streak projections over the event journal with a
// write-behind projection cache.
type Service struct {
	store    storage.Store
	policy   projection.Policy
	tracer   trace.Tracer
	now      func() time.Time
	readOnly bool

	writeBehind sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithNow overrides the evaluation clock.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPolicy overrides the fold policy.
func WithPolicy(policy projection.Policy) Option {
	return func(s *Service) { s.policy = policy.WithDefaults() }
}

// WithoutCacheWrites disables write-behind projection saves. Computes still
// read the cache; they just never refresh it.
func WithoutCacheWrites() Option {
	return func(s *Service) { s.readOnly = true }
}

// NewService builds a streak compute service over the given store.
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: projection.Policy{}.WithDefaults(),
		tracer: otel.Tracer("streakd/streak"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Flush waits for in-flight write-behind cache saves to settle.
func (s *Service) Flush() {
	s.writeBehind.Wait()
}

// ComputeProjection returns the user's current streak projection, folding
// only the journal suffix past the cached projection when possible. The
// refreshed document is cached asynchronously; the response never waits on
// the cache write.
func (s *Service) ComputeProjection(ctx context.Context, userID string) (projection.Projection, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return projection.Projection{}, platformerrors.New(platformerrors.CodeUserIDRequired, "user id is required")
	}

	ctx, span := s.tracer.Start(ctx, "streak.ComputeProjection",
		trace.WithAttributes(attribute.String("streak.user_id", userID)))
	defer span.End()

	result, err := s.compute(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return projection.Projection{}, err
	}
	span.SetAttributes(
		attribute.Int64("streak.applied_seq", int64(result.projection.AppliedSeq)),
		attribute.String("streak.status", string(result.projection.Status.Type)),
		attribute.Bool("streak.cache_hit", result.cacheHit),
	)

	if result.dirty && !s.readOnly {
		s.scheduleCacheWrite(userID, result.persist)
	}
	return result.projection, nil
}

type computeResult struct {
	// projection is the served document, including any provisional early
	// closure of the still-open evaluation day.
	projection projection.Projection
	// persist is the document safe to cache. When the evaluation day was
	// closed early it stops just before that closure, so a later fold can
	// re-evaluate the open day once a post arrives.
	persist  projection.Projection
	cacheHit bool
	dirty    bool
}

func (s *Service) compute(ctx context.Context, userID string) (computeResult, error) {
	timezone := s.profileTimezone(ctx, userID)

	cached, cacheErr := s.store.GetProjection(ctx, userID)
	if cacheErr != nil && !errors.Is(cacheErr, storage.ErrNotFound) {
		return computeResult{}, platformerrors.Wrap(platformerrors.CodeStoreFailed, "load cached projection", cacheErr)
	}
	cacheHit := cacheErr == nil && cached.Projection.ProjectorVersion == projection.ProjectorVersion

	afterSeq := uint64(0)
	resumeDay := calendar.DayKey("")
	resumeContribution := calendar.DayKey("")
	if cacheHit {
		lastSeq, err := s.store.LastSeq(ctx, userID)
		if err != nil {
			return computeResult{}, platformerrors.Wrap(platformerrors.CodeStoreFailed, "read journal head", err)
		}
		if lastSeq >= cached.Projection.AppliedSeq && lastSeq-cached.Projection.AppliedSeq <= maxIncrementalLag {
			afterSeq = cached.Projection.AppliedSeq
			resumeDay = cached.Projection.LastEvaluatedDayKey
			resumeContribution = cached.Projection.LastContributionDate
		} else {
			// The cache is from a journal we no longer recognize (or has
			// fallen too far behind); rebuild from the start.
			cacheHit = false
		}
	}

	window, err := s.loadEvents(ctx, userID, afterSeq)
	if err != nil {
		return computeResult{}, err
	}

	reducer, err := s.newReducer(ctx)
	if err != nil {
		return computeResult{}, err
	}

	startTZ := boundary.StartTimezone(window, timezone)
	var state projection.State
	if cacheHit && afterSeq > 0 {
		state = reducer.Resume(cached.Projection, startTZ)
	} else {
		state = reducer.Initial(startTZ)
	}

	synth := boundary.New(window, boundary.Config{
		UserID:           userID,
		Timezone:         timezone,
		ResumeAfterDay:   resumeDay,
		LastContribution: resumeContribution,
		Cutoff:           s.now(),
	})
	beforeLast := state
	for {
		evt, ok := synth.Next()
		if !ok {
			break
		}
		next, err := reducer.Apply(state, evt)
		if err != nil {
			return computeResult{}, platformerrors.Wrap(platformerrors.CodeUnknown, "fold event", err)
		}
		beforeLast = state
		state = next
	}

	// An early closure of the still-open evaluation day is served but never
	// cached: persisting it would make a resumed fold skip the open day and
	// misread a later same-day post as recovery progress.
	persist := state
	if synth.ClosedEvaluationDayEarly() {
		persist = beforeLast
	}

	dirty := !cacheHit ||
		persist.AppliedSeq != cached.Projection.AppliedSeq ||
		persist.LastEvaluatedDayKey != cached.Projection.LastEvaluatedDayKey ||
		persist.Status.Type != cached.Projection.Status.Type
	return computeResult{
		projection: state.Projection,
		persist:    persist.Projection,
		cacheHit:   cacheHit,
		dirty:      dirty,
	}, nil
}

// ExplainOptions narrows a replay report. UntilSeq stops the replay after
// the given journal sequence; Days keeps only steps from the most recent
// N local days (the fold itself still starts from the beginning so every
// snapshot stays accurate).
type ExplainOptions struct {
	UntilSeq uint64
	Days     int
}

// ExplainProjection replays the user's journal step by step.
func (s *Service) ExplainProjection(ctx context.Context, userID string, opts ExplainOptions) (explain.Explanation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return explain.Explanation{}, platformerrors.New(platformerrors.CodeUserIDRequired, "user id is required")
	}

	ctx, span := s.tracer.Start(ctx, "streak.ExplainProjection",
		trace.WithAttributes(attribute.String("streak.user_id", userID)))
	defer span.End()

	timezone := s.profileTimezone(ctx, userID)
	journal, err := s.loadEvents(ctx, userID, 0)
	if err != nil {
		span.RecordError(err)
		return explain.Explanation{}, err
	}
	if opts.UntilSeq > 0 {
		kept := journal[:0]
		for _, evt := range journal {
			if evt.Seq <= opts.UntilSeq {
				kept = append(kept, evt)
			}
		}
		journal = kept
	}
	reducer, err := s.newReducer(ctx)
	if err != nil {
		span.RecordError(err)
		return explain.Explanation{}, err
	}
	reducer.SetLogf(nil)

	merged := boundary.New(journal, boundary.Config{
		UserID:   userID,
		Timezone: timezone,
		Cutoff:   s.now(),
	}).Collect()

	report := explain.New(reducer).Replay(userID, boundary.StartTimezone(journal, timezone), merged)
	if opts.Days > 0 {
		report.Steps = recentSteps(report.Steps, s.now(), timezone, opts.Days)
	}
	span.SetAttributes(attribute.Int("streak.explain_steps", len(report.Steps)))
	return report, nil
}

// recentSteps keeps replay steps from the last days local days.
func recentSteps(steps []explain.Step, now time.Time, timezone string, days int) []explain.Step {
	floor := calendar.DayKeyOf(now, calendar.Location(timezone)).AddDays(-(days - 1))
	kept := steps[:0]
	for _, step := range steps {
		if !step.Event.DayKey.Before(floor) {
			kept = append(kept, step)
		}
	}
	return kept
}

// BatchItem is the outcome of one user's projection inside a batch.
type BatchItem struct {
	UserID     string
	Projection projection.Projection
	Err        error
}

// ComputeBatch refreshes projections for many users with bounded
// concurrency. An empty userIDs list means every known user. Individual
// failures are recorded per user and never abort the rest of the batch.
func (s *Service) ComputeBatch(ctx context.Context, userIDs []string) ([]BatchItem, error) {
	ctx, span := s.tracer.Start(ctx, "streak.ComputeBatch",
		trace.WithAttributes(attribute.Int("streak.batch_size", len(userIDs))))
	defer span.End()

	if len(userIDs) == 0 {
		ids, err := s.store.ListUserIDs(ctx)
		if err != nil {
			err = platformerrors.Wrap(platformerrors.CodeStoreFailed, "list users for batch", err)
			span.RecordError(err)
			return nil, err
		}
		userIDs = ids
	}

	items := make([]BatchItem, len(userIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, userID := range userIDs {
		i, userID := i, userID
		g.Go(func() error {
			p, err := s.ComputeProjection(ctx, userID)
			items[i] = BatchItem{UserID: userID, Projection: p, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	for _, item := range items {
		if item.Err != nil {
			failures++
		}
	}
	span.SetAttributes(attribute.Int("streak.batch_failures", failures))
	return items, nil
}

// ListUserEvents returns a slice of the user's journal for timeline views.
// Events come back ascending by sequence, or newest first when desc is set.
func (s *Service) ListUserEvents(ctx context.Context, userID string, from, to calendar.DayKey, desc bool, limit int) ([]event.Event, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, platformerrors.New(platformerrors.CodeUserIDRequired, "user id is required")
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	events, err := s.store.ListEventsByDay(ctx, userID, from, to, desc, limit)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeStoreFailed, "list user events", err)
	}
	return events, nil
}

// RecordEvent validates and appends one journal event, assigning an ID when
// the producer did not provide one.
func (s *Service) RecordEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if strings.TrimSpace(evt.ID) == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now()
	}
	if evt.DayKey.IsZero() {
		timezone := s.profileTimezone(ctx, evt.UserID)
		evt.DayKey = calendar.DayKeyOf(evt.CreatedAt, calendar.Location(timezone))
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, platformerrors.Wrap(platformerrors.CodeInvalidRequest, "invalid event", err)
	}
	stored, err := s.store.AppendEvent(ctx, evt)
	if err != nil {
		return event.Event{}, platformerrors.Wrap(platformerrors.CodeStoreFailed, "append event", err)
	}
	return stored, nil
}

// OverviewRow summarizes one user for operator dashboards.
type OverviewRow struct {
	UserID      string
	DisplayName string
	Timezone    string
	LastSeq     uint64
	Projection  *projection.Projection
}

// Overview lists every known user with their cached projection, without
// forcing a recompute.
func (s *Service) Overview(ctx context.Context) ([]OverviewRow, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeStoreFailed, "list users", err)
	}

	rows := make([]OverviewRow, 0, len(ids))
	for _, id := range ids {
		row := OverviewRow{UserID: id}
		if profile, err := s.store.GetUserProfile(ctx, id); err == nil {
			row.DisplayName = displayName(profile)
			row.Timezone = profile.Timezone
		}
		if row.Timezone == "" {
			row.Timezone = s.policy.DefaultTimezone
		}
		if last, err := s.store.LastSeq(ctx, id); err == nil {
			row.LastSeq = last
		}
		if record, err := s.store.GetProjection(ctx, id); err == nil {
			p := record.Projection
			row.Projection = &p
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// displayName falls back to the email address when the profile carries no
// display name.
func displayName(profile storage.UserProfile) string {
	if name := strings.TrimSpace(profile.DisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(profile.Email)
}

func (s *Service) profileTimezone(ctx context.Context, userID string) string {
	profile, err := s.store.GetUserProfile(ctx, userID)
	if err == nil && strings.TrimSpace(profile.Timezone) != "" {
		return profile.Timezone
	}
	return s.policy.DefaultTimezone
}

func (s *Service) loadEvents(ctx context.Context, userID string, afterSeq uint64) ([]event.Event, error) {
	var window []event.Event
	for {
		page, err := s.store.ListEvents(ctx, userID, afterSeq, eventPageSize)
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.CodeStoreFailed, "list events", err)
		}
		window = append(window, page...)
		if len(page) < eventPageSize {
			return window, nil
		}
		afterSeq = page[len(page)-1].Seq
	}
}

func (s *Service) newReducer(ctx context.Context) (*projection.Reducer, error) {
	holidays, err := s.store.ListHolidays(ctx)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeStoreFailed, "load holidays", err)
	}
	return projection.NewReducer(s.policy, calendar.NewCalendar(holidays)), nil
}

// scheduleCacheWrite persists the refreshed projection without blocking the
// response. A stale CAS loss means a fresher fold already won; that is fine.
func (s *Service) scheduleCacheWrite(userID string, p projection.Projection) {
	s.writeBehind.Add(1)
	go func() {
		defer s.writeBehind.Done()
		record := storage.ProjectionRecord{
			UserID:     userID,
			Projection: p,
			UpdatedAt:  s.now(),
		}
		var err error
		for attempt := 0; attempt < 2; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), timeouts.CacheWrite)
			err = s.store.SaveProjection(ctx, record)
			cancel()
			if err == nil || errors.Is(err, storage.ErrStaleProjection) {
				return
			}
			if attempt == 0 {
				time.Sleep(100 * time.Millisecond)
			}
		}
		log.Printf("streak: cache projection user=%s: %v", userID, err)
	}()
}
