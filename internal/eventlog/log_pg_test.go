package eventlog

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGLogAppendReturnsAssignedSeq(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO subject_event_counters").
		WithArgs("subj-1", PhaseStage1, TypeStart, nil, nil, StatusRunning, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	log := &PGLog{DB: db}
	seq, err := log.Append(context.Background(), "subj-1", Event{
		Phase:  PhaseStage1,
		Type:   TypeStart,
		Status: StatusRunning,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGLogReadFromScansNullableColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	sessionDate := now.AddDate(0, 0, -3)
	rows := sqlmock.NewRows([]string{"seq", "subject_id", "phase", "type", "session_id", "session_date", "status", "details", "created_at"}).
		AddRow(int64(3), "subj-1", PhaseStage1, TypeSessionComplete, "sess-9", sessionDate, StatusDone, []byte(`{"moodScore":6}`), now).
		AddRow(int64(4), "subj-1", PhaseStage2, TypeStart, nil, nil, StatusRunning, nil, now)

	mock.ExpectQuery("SELECT seq, subject_id, phase, type").
		WithArgs("subj-1", int64(2)).
		WillReturnRows(rows)

	log := &PGLog{DB: db}
	events, err := log.ReadFrom(context.Background(), "subj-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "sess-9", events[0].SessionID)
	require.NotNil(t, events[0].SessionDate)
	assert.JSONEq(t, `{"moodScore":6}`, string(events[0].Details))

	assert.Empty(t, events[1].SessionID)
	assert.Nil(t, events[1].SessionDate)
	assert.Nil(t, events[1].Details)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGLogSeqContinuesAfterPurge(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectExec("DELETE FROM subject_events").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 40))
	// The counter row survives the purge, so the next append keeps
	// counting past every cursor handed out before it.
	mock.ExpectQuery("INSERT INTO subject_event_counters").
		WithArgs("subj-1", PhaseStage2, TypeStart, nil, nil, StatusRunning, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(41)))

	log := &PGLog{DB: db}
	purged, err := log.PurgeOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(40), purged)

	seq, err := log.Append(context.Background(), "subj-1", Event{
		Phase:  PhaseStage2,
		Type:   TypeStart,
		Status: StatusRunning,
	})
	require.NoError(t, err)
	assert.Greater(t, seq, int64(40), "seq must stay above pre-purge cursors")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGLogPurgeOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	mock.ExpectExec("DELETE FROM subject_events").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	log := &PGLog{DB: db}
	purged, err := log.PurgeOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
