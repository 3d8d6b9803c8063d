package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencesim/pkg/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func completedSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New()
	require.NoError(t, sess.SetScenario("A scenario.", "A rubric."))
	require.NoError(t, sess.AppendExchange("first move", "first reply"))
	require.NoError(t, sess.AppendExchange("second move", "second reply"))
	require.NoError(t, sess.SetFinished())
	require.NoError(t, sess.SetFeedback("Good effort."))
	return sess
}

func TestRecordSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sess := completedSession(t)

	require.NoError(t, store.RecordSession(ctx, sess, "FINISHED"))

	rec, err := store.GetSession(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, sess.ID(), rec.SessionID)
	assert.Equal(t, "FINISHED", rec.FinalState)
	assert.Equal(t, "A scenario.", rec.Scenario)
	assert.Equal(t, "A rubric.", rec.Rubric)
	assert.Equal(t, "Good effort.", rec.Feedback)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.False(t, rec.ArchivedAt.IsZero())

	turns, err := store.GetTranscript(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, sess.Transcript(), turns)
}

func TestRecordSessionRejectsDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sess := completedSession(t)

	require.NoError(t, store.RecordSession(ctx, sess, "FINISHED"))
	require.Error(t, store.RecordSession(ctx, sess, "FINISHED"))

	// The failed second insert left no extra turns behind.
	turns, err := store.GetTranscript(ctx, sess.ID())
	require.NoError(t, err)
	assert.Len(t, turns, 4)
}

func TestGetSessionNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetSession(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestGetTranscriptEmptyForUnknownSession(t *testing.T) {
	store := openTestStore(t)

	turns, err := store.GetTranscript(context.Background(), "no-such-id")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestListSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := completedSession(t)
	second := completedSession(t)
	require.NoError(t, store.RecordSession(ctx, first, "FINISHED"))
	require.NoError(t, store.RecordSession(ctx, second, "FINISHED"))

	sessions, err := store.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	ids := []string{sessions[0].SessionID, sessions[1].SessionID}
	assert.Contains(t, ids, first.ID())
	assert.Contains(t, ids, second.ID())

	limited, err := store.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
