package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/metrics"
	"github.com/GSSJacky/Aroma-Agents-ADK-Project-Github/internal/music"
)

const cleanupInterval = 30 * time.Second

// ErrStopped is returned when work is submitted after Stop.
var ErrStopped = errors.New("job registry is stopped")

// State is the lifecycle of a tracked song request.
type State string

const (
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// Song is a snapshot of one background song generation.
type Song struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	State      State            `json:"state"`
	Kind       music.ResultKind `json:"kind,omitempty"`
	TaskID     string           `json:"task_id,omitempty"`
	Message    string           `json:"message,omitempty"`
	Paths      []string         `json:"paths,omitempty"`
	Attempts   int              `json:"attempts,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// Runner performs the work of a job. It must return when ctx is cancelled.
type Runner func(ctx context.Context) music.Result

// Registry tracks background song generations so callers can query them later.
type Registry struct {
	mu        sync.RWMutex
	songs     map[string]*Song
	retention time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	cleanup chan struct{}
	stopped bool
}

// NewRegistry creates a registry that forgets finished songs after retention.
func NewRegistry(retention time.Duration, logger *slog.Logger, m *metrics.Metrics) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		songs:     make(map[string]*Song),
		retention: retention,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		cleanup:   make(chan struct{}),
	}

	go r.startCleanupRoutine()

	return r
}

// Run registers a new song and executes runner in the background.
func (r *Registry) Run(title string, runner Runner) (Song, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return Song{}, ErrStopped
	}

	song := &Song{
		ID:        uuid.NewString(),
		Title:     title,
		State:     StateRunning,
		CreatedAt: r.now(),
	}
	r.songs[song.ID] = song
	r.wg.Add(1)
	snapshot := *song
	r.mu.Unlock()

	r.updateActive()

	r.logger.Info("Song job started",
		slog.String("job_id", song.ID),
		slog.String("title", title),
	)

	go func() {
		defer r.wg.Done()
		r.Complete(song.ID, runner(r.ctx))
	}()

	return snapshot, nil
}

// Complete records the result of a running song. It reports false for
// unknown or already finished jobs.
func (r *Registry) Complete(id string, res music.Result) bool {
	r.mu.Lock()
	song, exists := r.songs[id]
	if !exists || song.State == StateFinished {
		r.mu.Unlock()
		return false
	}

	finished := r.now()
	song.State = StateFinished
	song.Kind = res.Kind
	song.TaskID = res.TaskID
	song.Message = res.Message()
	song.Paths = append([]string(nil), res.Paths...)
	if res.Outcome != nil {
		song.Attempts = res.Outcome.Attempts
	}
	song.FinishedAt = &finished
	r.mu.Unlock()

	r.updateActive()

	r.logger.Info("Song job finished",
		slog.String("job_id", id),
		slog.String("kind", string(res.Kind)),
		slog.Int("saved", len(res.Paths)),
	)
	return true
}

// Get returns a snapshot of the song with the given id.
func (r *Registry) Get(id string) (Song, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	song, exists := r.songs[id]
	if !exists {
		return Song{}, false
	}
	return *song, true
}

// List returns snapshots of all tracked songs, oldest first.
func (r *Registry) List() []Song {
	r.mu.RLock()
	songs := make([]Song, 0, len(r.songs))
	for _, song := range r.songs {
		songs = append(songs, *song)
	}
	r.mu.RUnlock()

	sort.Slice(songs, func(i, j int) bool {
		return songs[i].CreatedAt.Before(songs[j].CreatedAt)
	})
	return songs
}

// ActiveCount returns the number of songs still being generated.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, song := range r.songs {
		if song.State == StateRunning {
			count++
		}
	}
	return count
}

// Stop cancels running generations, waits for them to record their result
// and stops the cleanup routine.
func (r *Registry) Stop() {
	r.logger.Info("Stopping job registry...")

	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	<-r.cleanup

	r.logger.Info("Job registry stopped",
		slog.Int("tracked_songs", len(r.List())),
	)
}

func (r *Registry) updateActive() {
	r.metrics.SetActiveJobs(r.ActiveCount())
}

// startCleanupRoutine periodically forgets finished songs past retention
func (r *Registry) startCleanupRoutine() {
	defer close(r.cleanup)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.cleanupExpired()
		}
	}
}

// cleanupExpired removes finished songs older than the retention period.
// Running songs are never removed.
func (r *Registry) cleanupExpired() int {
	now := r.now()

	r.mu.Lock()
	removed := 0
	for id, song := range r.songs {
		if song.FinishedAt != nil && now.Sub(*song.FinishedAt) > r.retention {
			delete(r.songs, id)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Info("Cleaned up finished song jobs",
			slog.Int("expired_count", removed),
		)
	}
	return removed
}
