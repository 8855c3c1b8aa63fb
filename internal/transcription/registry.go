package transcription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pagescribe/internal/llm"
)

var ErrJobNotFound = errors.New("job not found")

// Registry holds the live jobs of all users. Jobs left untouched for longer
// than the idle timeout are dropped unless they are submitting.
type Registry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
	idle time.Duration
}

func NewRegistry(idle time.Duration) *Registry {
	return &Registry{jobs: make(map[uuid.UUID]*Job), idle: idle}
}

func (r *Registry) Create(userID uuid.UUID, provider llm.ProviderID) *Job {
	job := NewJob(userID, provider)
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return job
}

// Get returns the job only to its owner.
func (r *Registry) Get(userID, id uuid.UUID) (*Job, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok || job.UserID != userID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Delete discards a job. A job that is submitting keeps running to
// completion; it is only removed from the table.
func (r *Registry) Delete(userID, id uuid.UUID) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok || job.UserID != userID {
		r.mu.Unlock()
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	r.mu.Unlock()

	job.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Evict drops idle jobs and returns how many were removed.
func (r *Registry) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, job := range r.jobs {
		if now.Sub(job.idleSince()) < r.idle || !job.Close() {
			continue
		}
		delete(r.jobs, id)
		n++
	}
	return n
}

// Run evicts idle jobs every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := r.Evict(now); n > 0 {
				slog.Info("evicted idle jobs", "count", n, "remaining", r.Len())
			}
		}
	}
}
