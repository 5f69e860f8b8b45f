package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/azuminxx/simple-redger-sub000/pkg/metrics"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

// Recorder receives the flagged records of every completed search.
type Recorder interface {
	Record(ctx context.Context, searchID string, records []*models.MergedRecord)
}

// Request is one user-initiated search.
type Request struct {
	Filter models.Filter `json:"filter" validate:"required"`
	// Append adds results to the displayed set instead of replacing it.
	Append bool `json:"append"`
}

// Result describes what a search changed in the displayed set.
type Result struct {
	SearchID string                 `json:"search_id"`
	Records  []*models.MergedRecord `json:"records"`
	Dropped  int                    `json:"dropped"`
	Total    int                    `json:"total"`
}

// Session owns a displayed result set. A new search cancels the one still running, and
// results from two invocations are never combined.
type Session struct {
	ID string

	engine   *Engine
	cache    rowcache.Cache
	recorder Recorder
	logger   ectologger.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	displayed  []*models.MergedRecord
	index      map[string]struct{}
	lastUsed   time.Time
	now        func() time.Time
}

// NewSession creates a session. The session owns cache, clearing it on every fresh search;
// cache and recorder may be nil.
func NewSession(id string, engine *Engine, cache rowcache.Cache, recorder Recorder, logger ectologger.Logger) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:       id,
		engine:   engine,
		cache:    cache,
		recorder: recorder,
		logger:   logger,
		index:    make(map[string]struct{}),
		lastUsed: time.Now(),
		now:      time.Now,
	}
}

// Cache returns the session's row cache, or nil.
func (s *Session) Cache() rowcache.Cache {
	return s.cache
}

// Search runs a search. Records whose integration key is already displayed are dropped in
// append mode. On failure the displayed set is left as it was.
func (s *Session) Search(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Session.Search", tracing.SessionKey.String(s.ID))
	defer span.End()

	mode := "fresh"
	if req.Append {
		mode = "append"
	}
	if len(req.Filter.Active()) == 0 {
		metrics.RecordSearch(mode, "invalid")
		return nil, ErrEmptyFilter
	}

	runCtx, gen := s.begin(ctx)
	defer s.finish(gen)

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id": s.ID,
		"mode":       mode,
	})

	if s.cache != nil {
		if !req.Append {
			if err := s.cache.Clear(runCtx); err != nil {
				metrics.RecordSearch(mode, "error")
				return nil, err
			}
		}
		runCtx = rowcache.WithCache(runCtx, s.cache)
	}

	records, err := s.engine.Run(runCtx, req.Filter)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		metrics.RecordSearch(mode, "superseded")
		log.Info("Search superseded, discarding results")
		return nil, ErrSuperseded
	}
	if err != nil {
		s.mu.Unlock()
		status := "error"
		if IsUsageError(err) {
			status = "invalid"
		}
		metrics.RecordSearch(mode, status)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		log.WithError(err).Warn("Search failed")
		return nil, err
	}

	result := &Result{SearchID: uuid.NewString()}
	if !req.Append {
		s.displayed = nil
		s.index = make(map[string]struct{}, len(records))
	}
	for _, record := range records {
		if _, shown := s.index[record.IntegrationKey]; shown {
			result.Dropped++
			continue
		}
		s.index[record.IntegrationKey] = struct{}{}
		s.displayed = append(s.displayed, record)
		result.Records = append(result.Records, record)
	}
	result.Total = len(s.displayed)
	s.mu.Unlock()

	metrics.RecordSearch(mode, "success")
	log.WithFields(map[string]any{
		"search_id": result.SearchID,
		"added":     len(result.Records),
		"dropped":   result.Dropped,
		"total":     result.Total,
	}).Info("Search complete")

	if s.recorder != nil {
		var flagged []*models.MergedRecord
		for _, record := range result.Records {
			if record.Flagged() {
				flagged = append(flagged, record)
			}
		}
		if len(flagged) > 0 {
			s.recorder.Record(ctx, result.SearchID, flagged)
		}
	}

	return result, nil
}

// begin cancels any running search and starts a new generation.
func (s *Session) begin(ctx context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	s.lastUsed = s.now()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return runCtx, s.generation
}

func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUsed = s.now()
	if s.generation == gen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// idleSince reports when the session was last used, and false while a search is running.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastUsed, s.cancel == nil
}

// Records returns the displayed set.
func (s *Session) Records() []*models.MergedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUsed = s.now()
	out := make([]*models.MergedRecord, len(s.displayed))
	copy(out, s.displayed)
	return out
}

// Cancel stops the running search, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}
