package sessions

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]Session)}
}

func (r *MemoryRepo) Create(ctx context.Context, session Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Stage1Status == "" {
		session.Stage1Status = StagePending
	}
	if session.Stage2Status == "" {
		session.Stage2Status = StagePending
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (r *MemoryRepo) ListBySubject(ctx context.Context, subjectID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Session{}
	for _, session := range r.sessions {
		if session.SubjectID == subjectID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SessionDate.Equal(out[j].SessionDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].SessionDate.Before(out[j].SessionDate)
	})
	return out, nil
}

func (r *MemoryRepo) SetStage1Status(ctx context.Context, sessionID, status string) error {
	return r.update(ctx, sessionID, func(s *Session) { s.Stage1Status = status })
}

func (r *MemoryRepo) SetStage2Status(ctx context.Context, sessionID, status string) error {
	return r.update(ctx, sessionID, func(s *Session) { s.Stage2Status = status })
}

func (r *MemoryRepo) SaveStage1Result(ctx context.Context, sessionID string, result json.RawMessage) error {
	return r.update(ctx, sessionID, func(s *Session) {
		s.Stage1Result = result
		s.Stage1Status = StageDone
	})
}

func (r *MemoryRepo) SaveStage2Result(ctx context.Context, sessionID string, result json.RawMessage, contextRef int) error {
	return r.update(ctx, sessionID, func(s *Session) {
		s.Stage2Result = result
		s.Stage2Status = StageDone
		ref := contextRef
		s.ContextRef = &ref
	})
}

func (r *MemoryRepo) update(ctx context.Context, sessionID string, apply func(*Session)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	apply(&session)
	session.UpdatedAt = time.Now().UTC()
	r.sessions[sessionID] = session
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
