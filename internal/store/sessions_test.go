package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codewarden/internal/types"
)

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	sess, err := s.StartSession(ctx, "p1", "implement parser")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.SessionID)
	assert.Nil(t, sess.EndTime)

	ended, err := s.EndSession(ctx, sess.SessionID, EndSessionParams{
		Achievements:  "parser done",
		NextSteps:     "wire tests",
		FilesModified: []string{"parser.go"},
	})
	require.NoError(t, err)
	require.NotNil(t, ended.EndTime)
	assert.False(t, ended.EndTime.Before(ended.StartTime))
	assert.Equal(t, "parser done", ended.Achievements)
	assert.Equal(t, []string{"parser.go"}, ended.FilesModified)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	sess, err := s.StartSession(ctx, "p1", "goals")
	require.NoError(t, err)

	first, err := s.EndSession(ctx, sess.SessionID, EndSessionParams{Achievements: "a"})
	require.NoError(t, err)

	second, err := s.EndSession(ctx, sess.SessionID, EndSessionParams{Achievements: "different"})
	require.NoError(t, err)
	assert.Equal(t, first.Achievements, second.Achievements)
	assert.Equal(t, first.EndTime.Unix(), second.EndTime.Unix())
	assert.Equal(t, first.DurationMinutes, second.DurationMinutes)
}

func TestEndSessionUnknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.EndSession(context.Background(), "missing", EndSessionParams{})
	require.Error(t, err)
}

func TestLastSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	none, err := s.LastSession(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.StartSession(ctx, "p1", "first")
	require.NoError(t, err)
	s2, err := s.StartSession(ctx, "p1", "second")
	require.NoError(t, err)

	last, err := s.LastSession(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, s2.SessionID, last.SessionID)
}

func TestNoteOrderingAndResolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestProject(t, s, "p1")

	low, err := s.CreateNote(ctx, &types.Note{
		ProjectID: "p1", Category: types.NoteTip, Title: "low", Content: "c", Importance: 2,
	})
	require.NoError(t, err)
	_, err = s.CreateNote(ctx, &types.Note{
		ProjectID: "p1", Category: types.NotePitfall, Title: "high", Content: "c", Importance: 5,
	})
	require.NoError(t, err)

	notes, err := s.ListNotes(ctx, "p1", "", 1, false, 0)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "high", notes[0].Title)

	resolved, err := s.ResolveNote(ctx, low.NoteID, "fixed upstream")
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "fixed upstream", resolved.ResolvedNote)

	unresolved, err := s.ListNotes(ctx, "p1", "", 1, true, 0)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "high", unresolved[0].Title)
}

func TestNoteImportanceValidation(t *testing.T) {
	s := newTestStore(t)
	newTestProject(t, s, "p1")
	_, err := s.CreateNote(context.Background(), &types.Note{
		ProjectID: "p1", Category: types.NoteTip, Title: "t", Content: "c", Importance: 9,
	})
	require.Error(t, err)
}
