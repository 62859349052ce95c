package sessions

import (
	"context"
	"encoding/json"
)

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "session not found" }

// Repo defines persistence operations for sessions. ListBySubject
// returns sessions in session_date order, oldest first; the pipeline
// depends on that ordering for its sequential second stage.
type Repo interface {
	Create(ctx context.Context, session Session) error
	GetByID(ctx context.Context, sessionID string) (Session, error)
	ListBySubject(ctx context.Context, subjectID string) ([]Session, error)
	SetStage1Status(ctx context.Context, sessionID, status string) error
	SetStage2Status(ctx context.Context, sessionID, status string) error
	SaveStage1Result(ctx context.Context, sessionID string, result json.RawMessage) error
	SaveStage2Result(ctx context.Context, sessionID string, result json.RawMessage, contextRef int) error
}
