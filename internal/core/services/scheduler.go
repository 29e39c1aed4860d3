package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/quarry/internal/core/domain"
	"github.com/custodia-labs/quarry/internal/core/ports/driven"
	"github.com/custodia-labs/quarry/internal/logger"
)

// Scheduler runs recurring maintenance: cache eviction and vector
// index persistence. Task state is persisted so intervals survive
// restarts. It is a pure core service with no external control API.
type Scheduler struct {
	config domain.SchedulerConfig
	cache  domain.CacheConfig
	store  driven.SchedulerStore
	evict  driven.ResultCache
	index  driven.VectorIndex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration. evict and index
// may be nil; their tasks are skipped.
func NewScheduler(
	config domain.SchedulerConfig,
	cache domain.CacheConfig,
	store driven.SchedulerStore,
	evict driven.ResultCache,
	index driven.VectorIndex,
) *Scheduler {
	return &Scheduler{
		config: config,
		cache:  cache,
		store:  store,
		evict:  evict,
		index:  index,
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	// Initialise tasks in store
	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("Scheduler: failed to initialise tasks: %v", err)
	}

	// Run the main scheduler loop
	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	if taskCfg := s.config.GetTaskConfig(domain.TaskIDCacheEviction); taskCfg.Enabled {
		if err := s.ensureTask(ctx, domain.TaskIDCacheEviction, "Cache Eviction", taskCfg); err != nil {
			return err
		}
	}

	if taskCfg := s.config.GetTaskConfig(domain.TaskIDIndexPersist); taskCfg.Enabled {
		if err := s.ensureTask(ctx, domain.TaskIDIndexPersist, "Index Persist", taskCfg); err != nil {
			return err
		}
	}

	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		// Create new task
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		// Update interval if changed
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			// Recalculate next run from now
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	// Check for due tasks immediately on startup
	s.checkAndRunDueTasks(ctx)

	// Use a 1-minute ticker to check for due tasks
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("Scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || task.NextRun.Before(now) || task.NextRun.Equal(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDCacheEviction:
			result.ItemsProcessed, err = s.runCacheEviction(ctx)
		case domain.TaskIDIndexPersist:
			err = s.runIndexPersist(ctx)
		default:
			logger.Warn("Scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Success = false
			result.Error = err.Error()
			task.LastError = err.Error()
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		// Update task state
		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			logger.Warn("Scheduler: failed to save task %s: %v", task.ID, saveErr)
		}

		// Record result for history
		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			logger.Warn("Scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}

		// Prune old history (keep last 100 results per task)
		if pruneErr := s.store.PruneHistory(ctx, 100); pruneErr != nil {
			logger.Warn("Scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runCacheEviction applies the configured cache bounds.
func (s *Scheduler) runCacheEviction(ctx context.Context) (int, error) {
	if s.evict == nil {
		return 0, nil
	}

	removed, err := s.evict.Evict(ctx, s.cache.MaxAge, s.cache.MaxEntries)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Debug("Scheduler: evicted %d cache entries", removed)
	}
	return removed, nil
}

// runIndexPersist flushes the vector index to disk.
func (s *Scheduler) runIndexPersist(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	return s.index.Persist(ctx)
}
