package sessions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListBySubjectOrdersBySessionDate(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, Session{ID: "s3", SubjectID: "subj-1", SessionDate: base.AddDate(0, 0, 14)}))
	require.NoError(t, repo.Create(ctx, Session{ID: "s1", SubjectID: "subj-1", SessionDate: base}))
	require.NoError(t, repo.Create(ctx, Session{ID: "s2", SubjectID: "subj-1", SessionDate: base.AddDate(0, 0, 7)}))
	require.NoError(t, repo.Create(ctx, Session{ID: "other", SubjectID: "subj-2", SessionDate: base}))

	list, err := repo.ListBySubject(ctx, "subj-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "s1", list[0].ID)
	assert.Equal(t, "s2", list[1].ID)
	assert.Equal(t, "s3", list[2].ID)
	assert.Equal(t, StagePending, list[0].Stage1Status)
}

func TestSaveStageResultsUpdateStatus(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, Session{ID: "s1", SubjectID: "subj-1", SessionDate: time.Now()}))

	require.NoError(t, repo.SaveStage1Result(ctx, "s1", json.RawMessage(`{"moodScore":4}`)))
	require.NoError(t, repo.SaveStage2Result(ctx, "s1", json.RawMessage(`{"summary":"x"}`), 2))

	session, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StageDone, session.Stage1Status)
	assert.Equal(t, StageDone, session.Stage2Status)
	require.NotNil(t, session.ContextRef)
	assert.Equal(t, 2, *session.ContextRef)
}

func TestUpdateUnknownSessionReturnsNotFound(t *testing.T) {
	repo := NewMemoryRepo()
	err := repo.SetStage1Status(context.Background(), "missing", StageRunning)
	assert.ErrorIs(t, err, ErrNotFound)
}
