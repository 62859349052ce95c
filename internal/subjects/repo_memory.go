package subjects

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu       sync.RWMutex
	subjects map[string]Subject
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{subjects: make(map[string]Subject)}
}

func (r *MemoryRepo) Upsert(ctx context.Context, subject Subject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.subjects[subject.ID]
	now := time.Now().UTC()
	if !ok {
		subject.CreatedAt = now
	} else {
		subject.CreatedAt = existing.CreatedAt
	}
	if subject.Status == "" {
		subject.Status = StatusActive
	}
	subject.UpdatedAt = now
	r.subjects[subject.ID] = subject
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, subjectID string) (Subject, error) {
	if err := ctx.Err(); err != nil {
		return Subject{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	subject, ok := r.subjects[subjectID]
	if !ok {
		return Subject{}, ErrNotFound
	}
	return subject, nil
}

func (r *MemoryRepo) ListActive(ctx context.Context) ([]Subject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Subject{}
	for _, subject := range r.subjects {
		if subject.Status == StatusActive {
			out = append(out, subject)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
