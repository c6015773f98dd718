package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/navigation"
)

// SessionLister is the part of the session store a sweep needs.
type SessionLister interface {
	List(ctx context.Context) []*navigation.Session
	Delete(ctx context.Context, id string) error
}

// SweepJob removes sessions that stopped receiving positions.
type SweepJob struct {
	config SweepConfig
	store  SessionLister
	logger zerolog.Logger
	now    func() time.Time

	metrics *SweepMetrics
}

// SweepMetrics tracks sweep job statistics.
type SweepMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalSweeps     int64
	ScannedSessions int64
	RemovedSessions int64
	FailedRemovals  int64

	// Timings
	LastSweepAt       time.Time
	LastSweepDuration time.Duration
	TotalDuration     time.Duration
}

// SweepJobConfig holds configuration for creating a SweepJob.
type SweepJobConfig struct {
	Config SweepConfig
	Store  SessionLister
	Logger zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// NewSweepJob creates a new sweep job.
func NewSweepJob(cfg SweepJobConfig) *SweepJob {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SweepJob{
		config:  cfg.Config.withDefaults(),
		store:   cfg.Store,
		logger:  cfg.Logger,
		now:     now,
		metrics: &SweepMetrics{},
	}
}

// SweepResult contains the result of a sweep.
type SweepResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Scanned   int
	Idle      int
	Removed   int
	Failed    int
	Errors    []SweepError
}

// SweepError records a session that could not be removed.
type SweepError struct {
	SessionID string
	Error     string
}

// Run removes every session idle for longer than the configured maximum.
func (j *SweepJob) Run(ctx context.Context) *SweepResult {
	startTime := time.Now()
	result := &SweepResult{StartTime: startTime}

	cutoff := j.now().UTC().Add(-j.config.MaxIdle)
	sessions := j.store.List(ctx)
	result.Scanned = len(sessions)

	idle := make([]string, 0)
	for _, s := range sessions {
		if s.UpdatedAt().Before(cutoff) {
			idle = append(idle, s.ID)
		}
	}
	result.Idle = len(idle)

	if len(idle) > 0 {
		j.logger.Debug().
			Int("idle", len(idle)).
			Int("concurrency", j.config.Concurrency).
			Msg("removing idle sessions")
	}

	// Create work channels
	idsChan := make(chan string, len(idle))
	resultsChan := make(chan removeResult, len(idle))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.removeWorker(ctx, idsChan, resultsChan)
		}()
	}

	for _, id := range idle {
		idsChan <- id
	}
	close(idsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results
	for rr := range resultsChan {
		if rr.err == nil {
			result.Removed++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, SweepError{SessionID: rr.id, Error: rr.err.Error()})
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	event := j.logger.Debug()
	if result.Removed > 0 || result.Failed > 0 {
		event = j.logger.Info()
	}
	event.
		Dur("duration", result.Duration).
		Int("scanned", result.Scanned).
		Int("removed", result.Removed).
		Int("failed", result.Failed).
		Msg("session sweep completed")

	return result
}

// Start runs a sweep every interval until ctx is done.
func (j *SweepJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info().
		Dur("interval", j.config.Interval).
		Dur("max_idle", j.config.MaxIdle).
		Msg("session sweep started")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("session sweep stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

type removeResult struct {
	id  string
	err error
}

func (j *SweepJob) removeWorker(ctx context.Context, ids <-chan string, results chan<- removeResult) {
	for id := range ids {
		select {
		case <-ctx.Done():
			results <- removeResult{id: id, err: ctx.Err()}
		default:
			results <- removeResult{id: id, err: j.remove(ctx, id)}
		}
	}
}

func (j *SweepJob) remove(ctx context.Context, id string) error {
	removeCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	err := j.store.Delete(removeCtx, id)
	if err != nil {
		j.logger.Warn().Err(err).Str("session_id", id).Msg("failed to remove idle session")
	}
	return err
}

func (j *SweepJob) updateMetrics(result *SweepResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalSweeps++
	j.metrics.ScannedSessions += int64(result.Scanned)
	j.metrics.RemovedSessions += int64(result.Removed)
	j.metrics.FailedRemovals += int64(result.Failed)
	j.metrics.LastSweepAt = result.EndTime
	j.metrics.LastSweepDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *SweepJob) GetMetrics() SweepMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return SweepMetrics{
		TotalSweeps:       j.metrics.TotalSweeps,
		ScannedSessions:   j.metrics.ScannedSessions,
		RemovedSessions:   j.metrics.RemovedSessions,
		FailedRemovals:    j.metrics.FailedRemovals,
		LastSweepAt:       j.metrics.LastSweepAt,
		LastSweepDuration: j.metrics.LastSweepDuration,
		TotalDuration:     j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *SweepJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_sweeps":        m.TotalSweeps,
		"scanned_sessions":    m.ScannedSessions,
		"removed_sessions":    m.RemovedSessions,
		"failed_removals":     m.FailedRemovals,
		"last_sweep_at":       m.LastSweepAt,
		"last_sweep_duration": m.LastSweepDuration.String(),
	}
}
